package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// minPageTextChars is the threshold below which a page is assumed to be
// scanned and re-run through OCR.
const minPageTextChars = 50

type ExtractorConfig struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for scanned pages, default 300
	MaxPages      int    // 0 = no limit
}

type ExtractionResult struct {
	Text     string
	Pages    int
	OCRPages int // pages that went through the OCR fallback
	Duration time.Duration
	Warnings []string
}

// Extractor turns a PDF into plain text: pdftotext first, with a per-page
// pdftoppm + tesseract fallback for scanned pages.
type Extractor struct {
	cfg    ExtractorConfig
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg ExtractorConfig, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &Extractor{cfg: cfg, runner: execRunner{}, logger: logger}
}

// WithRunner swaps the command runner; tests stub the external binaries here.
func (e *Extractor) WithRunner(r Runner) *Extractor {
	e.runner = r
	return e
}

// Extract returns the document's text with pages joined by blank lines.
func (e *Extractor) Extract(ctx context.Context, path string) (ExtractionResult, error) {
	start := time.Now()
	e.logger.Debug("ingest.extract.start", "path", path)

	text, _, warns, err := e.pdfToText(ctx, path)
	if err != nil {
		return ExtractionResult{Warnings: warns}, fmt.Errorf("pdftotext: %w", err)
	}

	pageTexts := strings.Split(text, "\f")
	if e.cfg.MaxPages > 0 && len(pageTexts) > e.cfg.MaxPages {
		pageTexts = pageTexts[:e.cfg.MaxPages]
	}

	res := ExtractionResult{Pages: len(pageTexts), Warnings: warns}
	for i, pt := range pageTexts {
		if len(strings.TrimSpace(pt)) >= minPageTextChars {
			continue
		}
		ocrText, w, ocrErr := e.ocrPage(ctx, path, i+1)
		res.Warnings = append(res.Warnings, w...)
		if ocrErr != nil {
			// scanned page we could not read; keep whatever pdftotext gave us
			res.Warnings = append(res.Warnings, fmt.Sprintf("page %d ocr: %v", i+1, ocrErr))
			continue
		}
		pageTexts[i] = ocrText
		res.OCRPages++
	}

	res.Text = strings.Join(pageTexts, "\n\n")
	res.Duration = time.Since(start)
	if strings.TrimSpace(res.Text) == "" {
		return res, fmt.Errorf("no text extracted from %d pages", res.Pages)
	}
	e.logger.Info("ingest.extract.ok",
		"path", path,
		"pages", res.Pages,
		"ocr_pages", res.OCRPages,
		"chars", len(res.Text),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (e *Extractor) pdfToText(ctx context.Context, path string) (text string, pages int, warnings []string, err error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", 0, []string{string(errb)}, err
	}
	text = string(out)
	// A form-feed \f is used as page separator by default
	pages = 1 + strings.Count(text, "\f")
	return text, pages, nil, nil
}

// ocrPage rasterizes a single page and runs tesseract over it.
func (e *Extractor) ocrPage(ctx context.Context, path string, page int) (string, []string, error) {
	tmpDir, err := os.MkdirTemp("", "ls-pp-*")
	if err != nil {
		return "", nil, err
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			e.logger.Warn("ingest.extract.tmpdir_remove_failed", "dir", tmpDir, "error", rmErr)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	pageArg := fmt.Sprintf("%d", page)
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm,
		"-r", fmt.Sprintf("%d", e.cfg.DPI), "-png", "-f", pageArg, "-l", pageArg, path, prefix)
	if err != nil {
		return "", []string{string(errb)}, err
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return "", []string{"pdftoppm produced no images"}, fmt.Errorf("page %d not rendered", page)
	}

	// tesseract <img> stdout -l eng
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, matches[0], "stdout", "-l", e.cfg.TesseractLang)
	if err != nil {
		return "", []string{string(errb)}, err
	}
	return string(out), nil, nil
}
