// Package export produces downloadable XLSX workbooks of analysis findings.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/legalsift/legalsift/internal/store"
)

// Service is a tiny façade over the persistence gateway that produces XLSX
// bytes for findings exports.
type Service struct {
	gateway store.Gateway
	logger  *slog.Logger
}

func NewService(gateway store.Gateway, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{gateway: gateway, logger: logger}
}

// ExportFindingsXLSX returns an XLSX workbook (as bytes) of every flagged
// clause recorded for the document.
func (s *Service) ExportFindingsXLSX(ctx context.Context, documentID string) ([]byte, error) {
	start := time.Now()

	doc, err := s.gateway.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	findings, err := s.gateway.GetRiskyChunks(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Risk Findings"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	// Drop the default sheet excelize seeds the workbook with.
	_ = f.DeleteSheet("Sheet1")

	headers := []string{
		"Clause ID",
		"Risk Type",
		"Confidence",
		"Severity",
		"Clause Text",
		"AI Analysis",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range findings {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.ChunkID)
		write(2, r.RiskLabel)
		write(3, fmt.Sprintf("%.1f%%", r.Confidence*100))
		write(4, r.Severity)
		write(5, truncate(r.ChunkText, 500))
		write(6, truncate(r.LLMAnalysis, 1000))

		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 10)
	_ = f.SetColWidth(sheet, "B", "B", 28)
	_ = f.SetColWidth(sheet, "C", "D", 12)
	_ = f.SetColWidth(sheet, "E", "E", 60)
	_ = f.SetColWidth(sheet, "F", "F", 80)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"document_id", documentID,
		"file_name", doc.FileName,
		"rows", len(findings),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// truncate caps cell text at n bytes, ending on a rune boundary so
// multibyte characters never come out mangled in the sheet.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n - 1
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
