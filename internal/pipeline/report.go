// Package pipeline composes report generation with file output.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/orbitearn/valence-protocol/internal/domain"
	"github.com/orbitearn/valence-protocol/internal/reporting"
	"github.com/orbitearn/valence-protocol/internal/storage"
)

// Output file names written by the report pipeline.
const (
	ReportFile      = "DISTRIBUTION_REPORT.md"
	RunsFile        = "runs.csv"
	TokenTotalsFile = "token_totals.csv"
)

// ReportPipeline generates a distribution report and writes it to disk.
type ReportPipeline struct {
	gen       *reporting.Generator
	outputDir string
}

// NewReportPipeline creates a pipeline writing into outputDir.
func NewReportPipeline(events storage.EventStore, library domain.Address, outputDir string) *ReportPipeline {
	return &ReportPipeline{
		gen:       reporting.NewGenerator(events, library),
		outputDir: outputDir,
	}
}

// WithClock sets a custom clock function for deterministic output.
func (p *ReportPipeline) WithClock(clock func() time.Time) *ReportPipeline {
	p.gen = p.gen.WithClock(clock)
	return p
}

// Run generates the report over [start, end] (Unix ms, inclusive) and
// writes output files:
//   - DISTRIBUTION_REPORT.md
//   - runs.csv
//   - token_totals.csv
func (p *ReportPipeline) Run(ctx context.Context, start, end int64) error {
	// Ensure output directory exists
	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return err
	}

	report, err := p.gen.Generate(ctx, start, end)
	if err != nil {
		return err
	}

	reportMD := reporting.RenderMarkdown(report)
	reportPath := filepath.Join(p.outputDir, ReportFile)
	if err := os.WriteFile(reportPath, []byte(reportMD), 0644); err != nil {
		return err
	}

	runsCSV := reporting.RenderRunsCSV(report.Runs)
	runsPath := filepath.Join(p.outputDir, RunsFile)
	if err := os.WriteFile(runsPath, []byte(runsCSV), 0644); err != nil {
		return err
	}

	totalsCSV := reporting.RenderTokenTotalsCSV(report.TokenTotals)
	totalsPath := filepath.Join(p.outputDir, TokenTotalsFile)
	if err := os.WriteFile(totalsPath, []byte(totalsCSV), 0644); err != nil {
		return err
	}

	return nil
}
