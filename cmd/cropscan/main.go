package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kevinb28-21/CropView-sub001/internal/analyzer"
	"github.com/kevinb28-21/CropView-sub001/internal/logger"
	"github.com/kevinb28-21/CropView-sub001/internal/report"
	"github.com/kevinb28-21/CropView-sub001/internal/worker"
)

// supportedExtensions lists the capture formats the scanner picks up
var supportedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tiff": true,
	".tif":  true,
}

var (
	scanOutputDir   string
	scanChannels    int
	scanSoilFactor  float64
	scanGrid        int
	scanThreshold   float64
	scanModelPath   string
	scanConcurrency int
	scanOverlays    bool
	scanPDF         bool
)

var rootCmd = &cobra.Command{
	Use:   "cropscan [folder]",
	Short: "Analyze a folder of drone field captures",
	Long: `cropscan runs the crop health pipeline over every image in a folder and
writes the batch artifacts into an output directory: one JSON file per
capture, a summary CSV, a plain-text report with index statistics and the
reference thresholds, and an aggregate stress heatmap. Overlay PNGs and a
printable PDF report are opt-in.

All captures in the folder are read with the same declared channel count:
4 for NIR survey rigs, 3 for visible-light cameras.

Examples:
  # Analyze a survey folder of 4-channel TIFFs
  cropscan ./flight-0823

  # Visible-light captures, overlays and PDF included
  cropscan --channels 3 --overlays --pdf ./flight-0823

  # Model-backed classification with a custom stress threshold
  cropscan --model crop_model.json --healthy-threshold 0.4 ./flight-0823`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runScan,
}

func init() {
	defaults := analyzer.DefaultOptions()
	rootCmd.Flags().StringVarP(&scanOutputDir, "output", "o", "analysis_results", "Directory for batch artifacts")
	rootCmd.Flags().IntVarP(&scanChannels, "channels", "c", 4, "Declared channel count for every capture (3 or 4)")
	rootCmd.Flags().Float64Var(&scanSoilFactor, "soil-factor", defaults.SoilFactor, "SAVI soil adjustment factor L")
	rootCmd.Flags().IntVar(&scanGrid, "grid-resolution", defaults.GridResolution, "Stress grid resolution (cells per side)")
	rootCmd.Flags().Float64Var(&scanThreshold, "healthy-threshold", defaults.HealthyThreshold, "Cell means below this index value count as stressed")
	rootCmd.Flags().StringVarP(&scanModelPath, "model", "m", "", "Model bundle path; empty runs rule-based classification")
	rootCmd.Flags().IntVarP(&scanConcurrency, "concurrency", "j", 0, "Concurrent analyses (0 uses all CPUs)")
	rootCmd.Flags().BoolVar(&scanOverlays, "overlays", false, "Write a stress overlay PNG per capture")
	rootCmd.Flags().BoolVar(&scanPDF, "pdf", false, "Write a printable PDF report")
}

func runScan(cmd *cobra.Command, args []string) error {
	logger.UseTextFormatter()

	if scanChannels != 3 && scanChannels != 4 {
		return fmt.Errorf("channels must be 3 or 4, got %d", scanChannels)
	}
	opts := analyzer.DefaultOptions().
		WithSoilFactor(scanSoilFactor).
		WithGridResolution(scanGrid).
		WithHealthyThreshold(scanThreshold).
		WithModel(scanModelPath)
	if err := opts.Validate(); err != nil {
		return err
	}

	folder := args[0]
	files, err := listFieldImages(folder)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no field images found in %s", folder)
	}

	logger.WithFields(logrus.Fields{
		"folder":   folder,
		"captures": len(files),
		"channels": scanChannels,
		"output":   scanOutputDir,
	}).Info("Starting batch analysis")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	entries, failures := analyzeAll(ctx, folder, files, opts)

	w, err := report.NewWriter(scanOutputDir)
	if err != nil {
		return err
	}
	if err := writeArtifacts(w, entries, failures); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"analyzed": len(entries),
		"failed":   len(failures),
		"output":   w.Dir(),
	}).Info("Batch analysis complete")

	if len(entries) == 0 {
		return fmt.Errorf("all %d captures failed analysis", len(failures))
	}
	return nil
}

// listFieldImages returns the folder's capture filenames in name order
func listFieldImages(folder string) ([]string, error) {
	dirEntries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to read folder: %w", err)
	}
	var files []string
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		if supportedExtensions[strings.ToLower(filepath.Ext(de.Name()))] {
			files = append(files, de.Name())
		}
	}
	return files, nil
}

// analyzeAll runs the pipeline over every capture through a bounded pool
func analyzeAll(ctx context.Context, folder string, files []string, opts analyzer.Options) ([]report.Entry, []report.Failure) {
	pipeline := analyzer.NewPipeline(analyzer.NewModelProvider())
	pool := worker.NewPool(scanConcurrency)
	pool.Start()
	defer pool.Close()

	var (
		mu       sync.Mutex
		entries  []report.Entry
		failures []report.Failure
	)

	for _, name := range files {
		if ctx.Err() != nil {
			break
		}
		name := name
		pool.Submit(func() {
			entry, failure := analyzeOne(ctx, pipeline, filepath.Join(folder, name), name, opts)
			mu.Lock()
			defer mu.Unlock()
			if failure != nil {
				failures = append(failures, *failure)
				return
			}
			entries = append(entries, entry)
		})
	}
	pool.Wait()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Filename < entries[j].Filename })
	sort.Slice(failures, func(i, j int) bool { return failures[i].Filename < failures[j].Filename })
	return entries, failures
}

func analyzeOne(ctx context.Context, pipeline *analyzer.Pipeline, path, name string, opts analyzer.Options) (report.Entry, *report.Failure) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.WithError(err).WithField("file", name).Warn("Failed to read capture")
		return report.Entry{}, &report.Failure{Filename: name, Err: err}
	}

	result, err := pipeline.Process(ctx, data, scanChannels, opts)
	if err != nil {
		logger.WithError(err).WithField("file", name).Warn("Failed to analyze capture")
		return report.Entry{}, &report.Failure{Filename: name, Err: err}
	}

	logger.WithFields(logrus.Fields{
		"file":         name,
		"category":     string(result.Classification.Category),
		"health_score": result.HealthScore,
	}).Info("Analyzed capture")
	return report.Entry{Filename: name, Result: result}, nil
}

// writeArtifacts renders every batch output the flags ask for
func writeArtifacts(w *report.Writer, entries []report.Entry, failures []report.Failure) error {
	for _, entry := range entries {
		if _, err := w.WriteResultJSON(entry); err != nil {
			logger.WithError(err).WithField("file", entry.Filename).Warn("Failed to write analysis JSON")
		}
		if scanOverlays {
			if _, err := w.WriteOverlay(entry); err != nil {
				logger.WithError(err).WithField("file", entry.Filename).Warn("Failed to write overlay")
			}
		}
	}

	if _, err := w.WriteSummaryCSV(entries); err != nil {
		return err
	}
	if _, err := w.WriteTextReport(entries, failures); err != nil {
		return err
	}

	var heatmapPNG []byte
	if len(entries) > 0 {
		png, err := report.RenderSeverityHeatmap(report.AggregateSeverity(entries, scanGrid))
		if err != nil {
			return err
		}
		heatmapPNG = png
		if _, err := w.WriteHeatmapPNG(heatmapPNG); err != nil {
			return err
		}
	}

	if scanPDF {
		if _, err := w.WritePDF(entries, failures, heatmapPNG); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
