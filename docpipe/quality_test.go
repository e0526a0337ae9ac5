package docpipe

import "testing"

func TestMeasureQuality(t *testing.T) {
	pages := []Page{{Number: 1, Text: "abcdef"}, {Number: 2, Text: "  "}}
	q := measureQuality(pages, false)
	if q.PageCount != 2 || q.EmptyPages != 1 {
		t.Fatalf("counts: got %+v", q)
	}
	if q.CharsPerPage != 3 {
		t.Errorf("chars per page: got %v, want 3", q.CharsPerPage)
	}
	if q.NeedsOCR() {
		t.Error("clean text without images should not need OCR")
	}
}

func TestNeedsOCR_ImagesWithoutText(t *testing.T) {
	q := measureQuality([]Page{{Number: 1}}, true)
	if !q.NeedsOCR() {
		t.Error("image-only page should need OCR")
	}
}

func TestComputePrintableRatio(t *testing.T) {
	if r := computePrintableRatio(""); r != 1.0 {
		t.Errorf("empty: got %v", r)
	}
	if r := computePrintableRatio("ab�"); r != 0.5 {
		t.Errorf("garbage: got %v, want 0.5", r)
	}
}
