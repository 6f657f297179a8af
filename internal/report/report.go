// Package report renders batch survey artifacts: per-capture JSON, a
// summary CSV, a plain-text report, overlay PNGs, an aggregate stress
// heatmap and a printable PDF.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kevinb28-21/CropView-sub001/internal/analyzer"
	apperrors "github.com/kevinb28-21/CropView-sub001/internal/errors"
	"github.com/kevinb28-21/CropView-sub001/pkg/models"
)

// Artifact filenames inside the output directory
const (
	SummaryCSVName = "analysis_summary.csv"
	TextReportName = "analysis_report.txt"
	HeatmapName    = "stress_heatmap.png"
	PDFReportName  = "analysis_report.pdf"
)

// Entry is one successfully analyzed capture in a batch run
type Entry struct {
	Filename string
	Result   *models.AnalysisResult
}

// Failure is one capture the batch could not analyze
type Failure struct {
	Filename string
	Err      error
}

// Writer renders batch artifacts into one output directory
type Writer struct {
	dir string
}

// NewWriter creates the output directory if it does not exist yet
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		return nil, apperrors.NewValidationError("output directory must not be empty", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.NewStorageError("failed to create output directory", err)
	}
	return &Writer{dir: dir}, nil
}

// Dir returns the output directory
func (w *Writer) Dir() string {
	return w.dir
}

// WriteResultJSON writes one capture's full analysis as {stem}_analysis.json
func (w *Writer) WriteResultJSON(entry Entry) (string, error) {
	payload := struct {
		Filename    string                 `json:"filename"`
		ProcessedAt time.Time              `json:"processed_at"`
		Analysis    *models.AnalysisResult `json:"analysis"`
	}{
		Filename:    entry.Filename,
		ProcessedAt: time.Now().UTC(),
		Analysis:    entry.Result,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", apperrors.NewInternalError("failed to encode analysis", err)
	}
	path := filepath.Join(w.dir, stem(entry.Filename)+"_analysis.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", apperrors.NewStorageError("failed to write analysis JSON", err)
	}
	return path, nil
}

// WriteOverlay writes the capture's rendered overlay PNG
func (w *Writer) WriteOverlay(entry Entry) (string, error) {
	if len(entry.Result.OverlayPNG) == 0 {
		return "", apperrors.NewInternalError("result carries no overlay", nil)
	}
	path := filepath.Join(w.dir, stem(entry.Filename)+"_overlay.png")
	if err := os.WriteFile(path, entry.Result.OverlayPNG, 0o644); err != nil {
		return "", apperrors.NewStorageError("failed to write overlay", err)
	}
	return path, nil
}

// summaryHeader lists the CSV columns in write order
var summaryHeader = []string{
	"filename", "channels",
	"ndvi_mean", "ndvi_std", "ndvi_min", "ndvi_max",
	"savi_mean", "savi_std", "savi_min", "savi_max",
	"gndvi_mean", "gndvi_std", "gndvi_min", "gndvi_max",
	"health_status", "health_score", "stressed_zones",
}

// WriteSummaryCSV writes one row per analyzed capture. Index cells stay
// empty for captures without a NIR band.
func (w *Writer) WriteSummaryCSV(entries []Entry) (string, error) {
	path := filepath.Join(w.dir, SummaryCSVName)
	f, err := os.Create(path)
	if err != nil {
		return "", apperrors.NewStorageError("failed to create summary CSV", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(summaryHeader); err != nil {
		return "", apperrors.NewStorageError("failed to write CSV header", err)
	}
	for _, entry := range entries {
		if err := cw.Write(summaryRow(entry)); err != nil {
			return "", apperrors.NewStorageError("failed to write CSV row", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", apperrors.NewStorageError("failed to flush summary CSV", err)
	}
	return path, nil
}

func summaryRow(entry Entry) []string {
	res := entry.Result
	row := []string{entry.Filename, strconv.Itoa(res.Channels)}
	row = append(row, statCells(res.NDVI)...)
	row = append(row, statCells(res.SAVI)...)
	row = append(row, statCells(res.GNDVI)...)
	return append(row,
		string(res.Classification.Category),
		formatFloat(res.HealthScore),
		strconv.Itoa(stressedZoneCount(res.StressZones)),
	)
}

func statCells(stats *models.IndexStatistics) []string {
	if stats == nil {
		return []string{"", "", "", ""}
	}
	return []string{
		formatFloat(stats.Mean), formatFloat(stats.StdDev),
		formatFloat(stats.Min), formatFloat(stats.Max),
	}
}

// WriteTextReport renders the human-readable batch summary: run counts,
// index statistics across captures, the health distribution and the
// reference threshold table.
func (w *Writer) WriteTextReport(entries []Entry, failures []Failure) (string, error) {
	var b strings.Builder
	rule := strings.Repeat("=", 60)
	sub := strings.Repeat("-", 60)

	b.WriteString(rule + "\n")
	b.WriteString("Crop Field Health Analysis Summary Report\n")
	b.WriteString("Vegetation Indices: NDVI, SAVI, GNDVI\n")
	b.WriteString(rule + "\n\n")
	fmt.Fprintf(&b, "Processed: %s\n", time.Now().UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Total Images: %d\n", len(entries)+len(failures))
	fmt.Fprintf(&b, "Successful: %d\n", len(entries))
	fmt.Fprintf(&b, "Failed: %d\n", len(failures))

	if len(entries) > 0 {
		b.WriteString("\nVegetation Index Statistics:\n")
		b.WriteString(sub + "\n")
		writeIndexBlock(&b, "NDVI (Normalized Difference Vegetation Index)", entries,
			func(r *models.AnalysisResult) *models.IndexStatistics { return r.NDVI })
		writeIndexBlock(&b, "SAVI (Soil-Adjusted Vegetation Index)", entries,
			func(r *models.AnalysisResult) *models.IndexStatistics { return r.SAVI })
		writeIndexBlock(&b, "GNDVI (Green Normalized Difference Vegetation Index)", entries,
			func(r *models.AnalysisResult) *models.IndexStatistics { return r.GNDVI })

		b.WriteString("\n\nCrop Health Status Distribution:\n")
		b.WriteString(sub + "\n")
		counts := make(map[models.HealthCategory]int)
		for _, e := range entries {
			counts[e.Result.Classification.Category]++
		}
		for _, cat := range models.AllHealthCategories() {
			if counts[cat] == 0 {
				continue
			}
			pct := float64(counts[cat]) / float64(len(entries)) * 100
			fmt.Fprintf(&b, "  %s: %d (%.1f%%)\n", cat, counts[cat], pct)
		}

		b.WriteString("\n\nReference Vegetation Index Thresholds:\n")
		b.WriteString(sub + "\n")
		writeThresholdTable(&b)
	}

	if len(failures) > 0 {
		b.WriteString("\n\nFailed Images:\n")
		b.WriteString(sub + "\n")
		for _, f := range failures {
			fmt.Fprintf(&b, "  %s: %v\n", f.Filename, f.Err)
		}
	}

	path := filepath.Join(w.dir, TextReportName)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", apperrors.NewStorageError("failed to write text report", err)
	}
	return path, nil
}

// writeIndexBlock summarizes one index's means across the batch
func writeIndexBlock(b *strings.Builder, title string, entries []Entry,
	pick func(*models.AnalysisResult) *models.IndexStatistics) {

	var means []float64
	for _, e := range entries {
		if stats := pick(e.Result); stats != nil {
			means = append(means, stats.Mean)
		}
	}

	fmt.Fprintf(b, "\n%s:\n", title)
	if len(means) == 0 {
		b.WriteString("  No captures carried this index\n")
		return
	}
	sort.Float64s(means)
	var sum float64
	for _, m := range means {
		sum += m
	}
	fmt.Fprintf(b, "  Mean - Average: %.3f\n", sum/float64(len(means)))
	fmt.Fprintf(b, "  Mean - Min: %.3f\n", means[0])
	fmt.Fprintf(b, "  Mean - Max: %.3f\n", means[len(means)-1])
}

// writeThresholdTable renders the classifier's bounds, one range line per
// category
func writeThresholdTable(b *strings.Builder) {
	columns := analyzer.ReferenceThresholds()
	categories := analyzer.ThresholdCategories()

	for row, cat := range categories {
		parts := make([]string, 0, len(columns))
		for _, col := range columns {
			parts = append(parts, fmt.Sprintf("%s %s", col.Index, boundRange(col.Bounds, row)))
		}
		fmt.Fprintf(b, "%-14s%s\n", displayCategory(cat)+":", strings.Join(parts, ", "))
	}
}

// boundRange formats one threshold table cell. Lower bounds are inclusive.
func boundRange(bounds [4]float64, row int) string {
	switch {
	case row == 0:
		return fmt.Sprintf(">= %.2f", bounds[0])
	case row < len(bounds):
		return fmt.Sprintf("%.2f-%.2f", bounds[row], bounds[row-1])
	default:
		return fmt.Sprintf("< %.2f", bounds[len(bounds)-1])
	}
}

// displayCategory turns very_poor into "Very Poor"
func displayCategory(cat models.HealthCategory) string {
	words := strings.Split(string(cat), "_")
	for i, word := range words {
		if word != "" {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

// stressedZoneCount counts grid cells with non-zero severity
func stressedZoneCount(zones []models.StressZone) int {
	n := 0
	for _, z := range zones {
		if z.Severity > 0 {
			n++
		}
	}
	return n
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// stem strips the filename extension
func stem(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}
