package loader

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

// DOCX, PPTX, and EPUB are all zip archives of XML parts; the loaders below
// walk the relevant parts and collect character data. Layout, styling, and
// embedded media are ignored.

// DocxLoader extracts paragraph text from Word documents.
type DocxLoader struct{}

func (l *DocxLoader) Name() string         { return "DocxLoader" }
func (l *DocxLoader) Extensions() []string { return []string{"docx"} }
func (l *DocxLoader) Priority() int        { return 0 }

func (l *DocxLoader) Load(r io.Reader, filename string) (*Document, error) {
	archive, err := openZip(r)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filename, err)
	}

	part, err := zipPart(archive, "word/document.xml")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	text, err := wordprocessingText(part)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}

	return &Document{
		Text:     text,
		Metadata: map[string]any{"filename": filename, "type": "docx"},
	}, nil
}

// PptxLoader extracts slide text from PowerPoint presentations.
type PptxLoader struct{}

func (l *PptxLoader) Name() string         { return "PptxLoader" }
func (l *PptxLoader) Extensions() []string { return []string{"pptx"} }
func (l *PptxLoader) Priority() int        { return 0 }

func (l *PptxLoader) Load(r io.Reader, filename string) (*Document, error) {
	archive, err := openZip(r)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filename, err)
	}

	var slides []string
	for _, f := range archive.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			slides = append(slides, f.Name)
		}
	}
	sort.Strings(slides)

	var parts []string
	for _, name := range slides {
		part, err := zipPart(archive, name)
		if err != nil {
			continue
		}
		text, err := wordprocessingText(part)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}

	return &Document{
		Text: strings.Join(parts, "\n\n"),
		Metadata: map[string]any{
			"filename":    filename,
			"type":        "pptx",
			"slide_count": len(slides),
		},
	}, nil
}

// EpubLoader extracts body text from EPUB content documents.
type EpubLoader struct{}

func (l *EpubLoader) Name() string         { return "EpubLoader" }
func (l *EpubLoader) Extensions() []string { return []string{"epub"} }
func (l *EpubLoader) Priority() int        { return 0 }

func (l *EpubLoader) Load(r io.Reader, filename string) (*Document, error) {
	archive, err := openZip(r)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filename, err)
	}

	var chapters []string
	for _, f := range archive.File {
		switch strings.ToLower(path.Ext(f.Name)) {
		case ".xhtml", ".html", ".htm":
			chapters = append(chapters, f.Name)
		}
	}
	sort.Strings(chapters)

	var parts []string
	for _, name := range chapters {
		part, err := zipPart(archive, name)
		if err != nil {
			continue
		}
		text, err := markupText(part)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, strings.TrimSpace(text))
		}
	}

	return &Document{
		Text:     strings.Join(parts, "\n\n"),
		Metadata: map[string]any{"filename": filename, "type": "epub"},
	}, nil
}

func openZip(r io.Reader) (*zip.Reader, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
}

func zipPart(archive *zip.Reader, name string) ([]byte, error) {
	for _, f := range archive.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("archive part %s not found", name)
}

// wordprocessingText pulls the run text (<w:t>, <a:t>) out of an OOXML part,
// inserting a newline at each paragraph end.
func wordprocessingText(part []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(part))

	var sb strings.Builder
	inRun := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inRun = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inRun = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inRun {
				sb.Write(t)
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// markupText strips tags from an (X)HTML document, skipping script and style
// content.
func markupText(part []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(part))
	decoder.Strict = false
	decoder.AutoClose = xml.HTMLAutoClose
	decoder.Entity = xml.HTMLEntity

	var sb strings.Builder
	skip := 0
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "script", "style", "head":
				skip++
			case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "script", "style", "head":
				if skip > 0 {
					skip--
				}
			}
		case xml.CharData:
			if skip == 0 {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}
