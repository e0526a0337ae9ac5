package docpipe

// Format identifies a document type. Only PDF is resolved from feeds.
type Format string

const FormatPDF Format = "pdf"

// Engine names the parser that produced a Document's text.
type Engine string

const (
	EnginePDFCPU     Engine = "pdfcpu"
	EngineLedongthuc Engine = "ledongthuc"
	// EngineMixed marks a document whose empty pdfcpu pages were filled by
	// the fallback engine.
	EngineMixed Engine = "pdfcpu+ledongthuc"
)

// Page is the text of one PDF page. Text is empty when the page has none.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Document is the result of extracting text from a PDF payload.
type Document struct {
	Format  Format             `json:"format"`
	Engine  Engine             `json:"engine"`
	Title   string             `json:"title"`
	Pages   []Page             `json:"pages"`
	RawText string             `json:"raw_text"` // page texts joined by "\n"
	Quality *ExtractionQuality `json:"quality,omitempty"`
}
