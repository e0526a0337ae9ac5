package docpipe

import "log/slog"

// Config configures a Pipeline. The zero value is usable.
type Config struct {
	// MaxFileSize rejects larger payloads with ErrUnsupportedContent.
	// Default: 100 MB. The veille service sets it to its fetch cap.
	MaxFileSize int64 `yaml:"max_file_size"`

	// NoFallback keeps pdfcpu as the only engine.
	NoFallback bool `yaml:"no_fallback"`

	// TitleRunes bounds Document.Title, taken from the first non-empty
	// line of text. Default: 200.
	TitleRunes int `yaml:"title_runes"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 << 20
	}
	if c.TitleRunes <= 0 {
		c.TitleRunes = 200
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
