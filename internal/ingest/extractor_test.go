package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRunner answers for the three external binaries by name.
type scriptedRunner struct {
	pdftotextOut string
	pdftotextErr error
	ocrOut       string
	pdftoppmErr  error
	tesseractErr error
}

func (r scriptedRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	switch name {
	case "pdftotext":
		if r.pdftotextErr != nil {
			return nil, []byte("pdftotext exploded"), r.pdftotextErr
		}
		return []byte(r.pdftotextOut), nil, nil
	case "pdftoppm":
		if r.pdftoppmErr != nil {
			return nil, []byte("pdftoppm exploded"), r.pdftoppmErr
		}
		// The extractor globs for <prefix>-*.png afterwards.
		prefix := args[len(args)-1]
		if err := os.WriteFile(prefix+"-1.png", []byte("png"), 0o644); err != nil {
			return nil, nil, err
		}
		return nil, nil, nil
	case "tesseract":
		if r.tesseractErr != nil {
			return nil, []byte("tesseract exploded"), r.tesseractErr
		}
		return []byte(r.ocrOut), nil, nil
	}
	return nil, nil, fmt.Errorf("unexpected command %q", name)
}

func longPage(label string) string {
	return strings.Repeat("This "+label+" page carries plenty of extracted contract text. ", 3)
}

func newStubExtractor(r Runner) *Extractor {
	return NewExtractor(ExtractorConfig{}, nil).WithRunner(r)
}

func TestExtract_TextPDF(t *testing.T) {
	runner := scriptedRunner{pdftotextOut: longPage("first") + "\f" + longPage("second")}
	res, err := newStubExtractor(runner).Extract(context.Background(), "contract.pdf")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pages)
	assert.Zero(t, res.OCRPages)
	assert.Contains(t, res.Text, "first")
	assert.Contains(t, res.Text, "second")
}

func TestExtract_OCRFallbackForSparsePage(t *testing.T) {
	runner := scriptedRunner{
		pdftotextOut: longPage("readable") + "\f" + "  ",
		ocrOut:       longPage("scanned"),
	}
	res, err := newStubExtractor(runner).Extract(context.Background(), "contract.pdf")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 1, res.OCRPages)
	assert.Contains(t, res.Text, "scanned")
}

func TestExtract_OCRFailureKeepsPdftotextOutput(t *testing.T) {
	runner := scriptedRunner{
		pdftotextOut: longPage("readable") + "\f" + "thin",
		tesseractErr: errors.New("exit status 1"),
	}
	res, err := newStubExtractor(runner).Extract(context.Background(), "contract.pdf")
	require.NoError(t, err)

	assert.Zero(t, res.OCRPages)
	assert.Contains(t, res.Text, "thin")
	assert.NotEmpty(t, res.Warnings)
}

func TestExtract_PdftotextFailure(t *testing.T) {
	runner := scriptedRunner{pdftotextErr: errors.New("exit status 1")}
	_, err := newStubExtractor(runner).Extract(context.Background(), "contract.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext")
}

func TestExtract_NoTextAnywhere(t *testing.T) {
	runner := scriptedRunner{pdftotextOut: "  ", tesseractErr: errors.New("unreadable")}
	_, err := newStubExtractor(runner).Extract(context.Background(), "contract.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text extracted")
}

func TestExtract_MaxPagesCap(t *testing.T) {
	runner := scriptedRunner{
		pdftotextOut: longPage("one") + "\f" + longPage("two") + "\f" + longPage("three"),
	}
	e := NewExtractor(ExtractorConfig{MaxPages: 2}, nil).WithRunner(runner)
	res, err := e.Extract(context.Background(), "contract.pdf")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pages)
	assert.NotContains(t, res.Text, "three")
}
