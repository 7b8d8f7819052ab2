package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"GradePipeline/internal/domain"
	"GradePipeline/internal/ports"
)

// ErrNothingToExport is returned for an empty result set.
var ErrNothingToExport = errors.New("no results to export")

// CSVExporter writes <dir>/<assignment>_grades.csv.
type CSVExporter struct {
	dir string
}

var _ ports.Exporter = (*CSVExporter)(nil)

// NewCSVExporter writes files into dir.
func NewCSVExporter(dir string) *CSVExporter {
	return &CSVExporter{dir: dir}
}

// Export writes all results; the header comes from the first result's row.
func (e *CSVExporter) Export(_ context.Context, assignmentID, _ string, results []domain.RunResult) (string, error) {
	if len(results) == 0 {
		return "", ErrNothingToExport
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	target := filepath.Join(e.dir, assignmentID+"_grades.csv")
	tmp, err := os.CreateTemp(e.dir, ".grades-*.csv")
	if err != nil {
		return "", fmt.Errorf("create temp export: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	header := Header(Row(results[0]))
	if err := w.Write(header); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write header: %w", err)
	}
	for _, r := range results {
		if err := w.Write(values(Row(r))); err != nil {
			_ = tmp.Close()
			return "", fmt.Errorf("write row %s: %w", r.AnonLabel, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("flush csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close csv: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("publish csv: %w", err)
	}
	return target, nil
}
