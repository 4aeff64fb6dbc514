package loader

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// OCRImageLoader extracts text from images by shelling out to the tesseract
// binary. When tesseract is missing or OCR fails, the loader degrades to
// empty text instead of returning an error; the pipeline then records the
// file as skipped rather than failed.
type OCRImageLoader struct {
	logger *slog.Logger

	// run is replaceable in tests; defaults to invoking tesseract.
	run func(inputPath string) (string, error)
}

// NewOCRImageLoader builds the image OCR loader. Register it through
// WithProviders so a missing tesseract install degrades rather than breaking
// registry construction.
func NewOCRImageLoader(logger *slog.Logger) *OCRImageLoader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &OCRImageLoader{logger: logger}
	l.run = l.runTesseract
	return l
}

// OCRImageProvider is the registry provider for OCR image support. It fails
// (and is skipped with a warning) when tesseract is not installed.
func OCRImageProvider(logger *slog.Logger) Provider {
	return func() (Loader, error) {
		if _, err := exec.LookPath("tesseract"); err != nil {
			return nil, err
		}
		return NewOCRImageLoader(logger), nil
	}
}

func (l *OCRImageLoader) Name() string { return "OCRImageLoader" }

func (l *OCRImageLoader) Extensions() []string {
	return []string{"jpg", "jpeg", "png", "tiff", "tif", "bmp", "gif"}
}

func (l *OCRImageLoader) Priority() int { return 5 }

func (l *OCRImageLoader) Load(r io.Reader, filename string) (*Document, error) {
	metadata := map[string]any{"source": filename}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "stache-ocr-*")
	if err != nil {
		l.logger.Warn("OCR temp dir failed", "file", filename, "error", err)
		return &Document{Text: "", Metadata: metadata}, nil
	}
	defer os.RemoveAll(tmpDir)

	inputPath := filepath.Join(tmpDir, filepath.Base(filename))
	if err := os.WriteFile(inputPath, raw, 0o600); err != nil {
		l.logger.Warn("OCR temp write failed", "file", filename, "error", err)
		return &Document{Text: "", Metadata: metadata}, nil
	}

	text, err := l.run(inputPath)
	if err != nil {
		l.logger.Warn("OCR failed", "file", filename, "error", err)
		return &Document{Text: "", Metadata: metadata}, nil
	}

	l.logger.Info("OCR extracted text", "file", filename, "chars", len(text))
	return &Document{Text: text, Metadata: metadata}, nil
}

func (l *OCRImageLoader) runTesseract(inputPath string) (string, error) {
	var out bytes.Buffer
	cmd := exec.Command("tesseract", inputPath, "stdout")
	cmd.Stdout = &out
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return strings.TrimRight(out.String(), "\n") + "\n", nil
}
