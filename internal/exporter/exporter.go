package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"vidbrief/internal/metrics"
)

// Input carries everything an export format needs to render a summary file.
type Input struct {
	TaskID  string
	Title   string
	Summary string
	Dir     string
}

// Exporter writes a summary in one output format.
type Exporter interface {
	Format() string
	Export(ctx context.Context, in Input) (string, error)
}

// Result is the outcome of exporting into every requested format. Paths maps
// format name to the written file; Warnings lists formats that failed.
type Result struct {
	Paths    map[string]string
	Warnings []string
}

// ExportAll renders the summary in every format concurrently. Per-format
// failures are isolated: a failed format becomes a warning, not an error, and
// the remaining formats still produce files.
func ExportAll(ctx context.Context, exporters []Exporter, in Input) Result {
	paths := make([]string, len(exporters))
	failures := make([]error, len(exporters))

	g, gctx := errgroup.WithContext(ctx)
	for i, exp := range exporters {
		g.Go(func() error {
			path, err := exp.Export(gctx, in)
			if err != nil {
				failures[i] = err
				return nil
			}
			paths[i] = path
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Paths: make(map[string]string)}
	for i, exp := range exporters {
		if failures[i] != nil {
			slog.Warn("export format failed",
				"task_id", in.TaskID, "format", exp.Format(), "error", failures[i])
			metrics.ExportFailures.WithLabelValues(exp.Format()).Inc()
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", exp.Format(), failures[i]))
			continue
		}
		res.Paths[exp.Format()] = paths[i]
	}
	return res
}

// ForFormats builds the exporter set for the configured format names.
// Unknown names were already rejected by config validation.
func ForFormats(formats []string) []Exporter {
	var exporters []Exporter
	for _, f := range formats {
		switch f {
		case "markdown":
			exporters = append(exporters, Markdown{})
		case "docx":
			exporters = append(exporters, Docx{})
		case "txt":
			exporters = append(exporters, Text{})
		}
	}
	return exporters
}

func stripInlineMarkdown(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	s = strings.ReplaceAll(s, "`", "")
	return s
}
