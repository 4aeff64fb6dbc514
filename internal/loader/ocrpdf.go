package loader

import (
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// OCRPDFLoader extracts text from scanned PDFs by shelling out to ocrmypdf,
// which rasterizes pages and runs tesseract over them. It registers at a
// priority that supersedes PDFLoader, so when OCR support is installed every
// PDF goes through it. Like OCRImageLoader, failures degrade to empty text
// instead of an error; the pipeline then records the file as skipped.
type OCRPDFLoader struct {
	logger *slog.Logger

	// run is replaceable in tests; defaults to invoking ocrmypdf.
	run func(inputPath string) (string, error)
}

// NewOCRPDFLoader builds the PDF OCR loader. Register it through
// WithProviders so a missing ocrmypdf install degrades rather than breaking
// registry construction.
func NewOCRPDFLoader(logger *slog.Logger) *OCRPDFLoader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &OCRPDFLoader{logger: logger}
	l.run = l.runOCRmyPDF
	return l
}

// OCRPDFProvider is the registry provider for PDF OCR support. It fails (and
// is skipped with a warning) when ocrmypdf is not installed.
func OCRPDFProvider(logger *slog.Logger) Provider {
	return func() (Loader, error) {
		if _, err := exec.LookPath("ocrmypdf"); err != nil {
			return nil, err
		}
		return NewOCRPDFLoader(logger), nil
	}
}

func (l *OCRPDFLoader) Name() string { return "OCRPDFLoader" }

func (l *OCRPDFLoader) Extensions() []string { return []string{"pdf"} }

func (l *OCRPDFLoader) Priority() int { return 10 }

func (l *OCRPDFLoader) Load(r io.Reader, filename string) (*Document, error) {
	metadata := map[string]any{"source": filename}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "stache-ocrpdf-*")
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
		l.logger.Warn("PDF OCR failed", "file", filename, "error", err)
		return &Document{Text: "", Metadata: metadata}, nil
	}

	l.logger.Info("PDF OCR extracted text", "file", filename, "chars", len(text))
	return &Document{Text: text, Metadata: metadata}, nil
}

// runOCRmyPDF asks ocrmypdf for a sidecar text file; the OCRed PDF itself is
// discarded with the temp dir.
func (l *OCRPDFLoader) runOCRmyPDF(inputPath string) (string, error) {
	dir := filepath.Dir(inputPath)
	sidecarPath := filepath.Join(dir, "sidecar.txt")
	outputPath := filepath.Join(dir, "ocr-output.pdf")

	cmd := exec.Command("ocrmypdf", "--force-ocr", "--sidecar", sidecarPath, inputPath, outputPath)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return "", err
	}

	text, err := os.ReadFile(sidecarPath)
	if err != nil {
		return "", err
	}
	return string(text), nil
}
