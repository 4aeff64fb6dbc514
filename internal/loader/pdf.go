package loader

import (
	"bytes"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFLoader extracts embedded text from PDF files. Scanned PDFs without a
// text layer yield empty text and are flagged in metadata; an OCR-capable
// loader registered at higher priority supersedes this one.
type PDFLoader struct{}

func (l *PDFLoader) Name() string         { return "PDFLoader" }
func (l *PDFLoader) Extensions() []string { return []string{"pdf"} }
func (l *PDFLoader) Priority() int        { return 0 }

func (l *PDFLoader) Load(r io.Reader, filename string) (*Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{
		"filename":   filename,
		"type":       "pdf",
		"page_count": reader.NumPage(),
	}

	var parts []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page should not sink the document.
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}

	if len(parts) == 0 {
		metadata["extraction_failed"] = true
	}

	return &Document{
		Text:     strings.Join(parts, "\n\n"),
		Metadata: metadata,
	}, nil
}
