package report

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"

	apperrors "github.com/kevinb28-21/CropView-sub001/internal/errors"
	"github.com/kevinb28-21/CropView-sub001/pkg/models"
)

// WritePDF renders the printable batch report: run counts, the per-capture
// verdict table and, when provided, the aggregate stress heatmap on its own
// page.
func (w *Writer) WritePDF(entries []Entry, failures []Failure, heatmapPNG []byte) (string, error) {
	pdf := gofpdf.New("L", "mm", "Letter", "")
	pdf.SetTitle("Crop Field Health Analysis", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Crop Field Health Analysis", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated %s", time.Now().UTC().Format("2006-01-02 15:04 UTC")),
		"", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Captures: %d analyzed, %d failed", len(entries), len(failures)),
		"", 1, "L", false, 0, "")
	pdf.Ln(4)

	headers := []string{"Filename", "Channels", "NDVI Mean", "SAVI Mean", "GNDVI Mean", "Health", "Score"}
	widths := []float64{80, 20, 24, 24, 26, 36, 18}

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, e := range entries {
		res := e.Result
		cells := []string{
			e.Filename,
			strconv.Itoa(res.Channels),
			meanCell(res.NDVI),
			meanCell(res.SAVI),
			meanCell(res.GNDVI),
			displayCategory(res.Classification.Category),
			fmt.Sprintf("%.1f", res.HealthScore),
		}
		for i, cell := range cells {
			pdf.CellFormat(widths[i], 6, cell, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if len(failures) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(0, 7, "Failed Captures", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		for _, f := range failures {
			pdf.MultiCell(0, 5, fmt.Sprintf("%s: %v", f.Filename, f.Err), "", "L", false)
		}
	}

	if len(heatmapPNG) > 0 {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, "Aggregate Stress Distribution", "", 1, "L", false, 0, "")
		pdf.RegisterImageReader("stress-heatmap", "PNG", bytes.NewReader(heatmapPNG))
		pdf.Image("stress-heatmap", 15, 30, 150, 0, false, "", 0, "")
	}

	path := filepath.Join(w.dir, PDFReportName)
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", apperrors.NewStorageError("failed to write PDF report", err)
	}
	return path, nil
}

// meanCell formats an index mean, or a dash when the capture had no NIR
func meanCell(stats *models.IndexStatistics) string {
	if stats == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", stats.Mean)
}
