package loader

import (
	"io"
	"strings"
)

// TextLoader handles plain text files.
type TextLoader struct{}

func (l *TextLoader) Name() string         { return "TextLoader" }
func (l *TextLoader) Extensions() []string { return []string{"txt"} }
func (l *TextLoader) Priority() int        { return 0 }

func (l *TextLoader) Load(r io.Reader, filename string) (*Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return &Document{
		Text:     string(raw),
		Metadata: map[string]any{"filename": filename, "type": "text"},
	}, nil
}

// MarkdownLoader handles Markdown files, recording the first level-one
// heading as the document title.
type MarkdownLoader struct{}

func (l *MarkdownLoader) Name() string         { return "MarkdownLoader" }
func (l *MarkdownLoader) Extensions() []string { return []string{"md", "markdown"} }
func (l *MarkdownLoader) Priority() int        { return 0 }

func (l *MarkdownLoader) Load(r io.Reader, filename string) (*Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text := string(raw)

	metadata := map[string]any{"filename": filename, "type": "markdown"}
	for _, line := range strings.Split(text, "\n") {
		if title, ok := strings.CutPrefix(line, "# "); ok {
			metadata["title"] = strings.TrimSpace(title)
			break
		}
	}

	return &Document{Text: text, Metadata: metadata}, nil
}
