package ingest

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// stderrLogLimit caps how much tool stderr lands in a single log record.
// Tesseract in particular can emit pages of per-glyph warnings.
const stderrLogLimit = 8 << 10

// Runner executes one PDF tool invocation (pdftotext, pdftoppm, tesseract)
// and hands back both streams. Stderr comes back separately because the
// poppler tools report recoverable page damage there while still producing
// usable output on stdout. Tests swap in a scripted implementation.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		slog.Error("ingest.tool.failed",
			"tool", name,
			"args", strings.Join(args, " "),
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", err,
			"stderr", clipStderr(errb.String()),
		)
		return out.Bytes(), errb.Bytes(), err
	}

	slog.Debug("ingest.tool.ok",
		"tool", name,
		"elapsed_ms", time.Since(start).Milliseconds(),
		"stdout_bytes", out.Len(),
		"stderr_bytes", errb.Len(),
	)
	return out.Bytes(), errb.Bytes(), nil
}

func clipStderr(s string) string {
	if len(s) <= stderrLogLimit {
		return s
	}
	return s[:stderrLogLimit] + "...(truncated)"
}
