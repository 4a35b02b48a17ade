// Package reporting produces distribution reports from stored run history.
package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/holiman/uint256"

	"github.com/orbitearn/valence-protocol/internal/domain"
	"github.com/orbitearn/valence-protocol/internal/storage"
)

// Generator produces reports for one library from the event store.
type Generator struct {
	events  storage.EventStore
	library domain.Address
	now     func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a report generator.
func NewGenerator(events storage.EventStore, library domain.Address) *Generator {
	return &Generator{
		events:  events,
		library: library,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the report over [start, end] (Unix ms, inclusive).
func (g *Generator) Generate(ctx context.Context, start, end int64) (*Report, error) {
	runs, err := g.events.SplitRunsBetween(ctx, g.library, start, end)
	if err != nil {
		return nil, fmt.Errorf("load runs: %w", err)
	}
	transfers, err := g.events.SplitTransfersBetween(ctx, g.library, start, end)
	if err != nil {
		return nil, fmt.Errorf("load transfers: %w", err)
	}
	totals, err := g.events.TotalsByToken(ctx, g.library, start, end)
	if err != nil {
		return nil, fmt.Errorf("load token totals: %w", err)
	}
	failures, err := g.events.OracleFailureCount(ctx, g.library, start, end)
	if err != nil {
		return nil, fmt.Errorf("count oracle failures: %w", err)
	}

	return &Report{
		GeneratedAt:  g.now(),
		Library:      g.library.String(),
		WindowStart:  start,
		WindowEnd:    end,
		Summary:      buildSummary(runs, transfers, failures),
		TokenTotals:  buildTokenTotals(totals, transfers),
		OutputTotals: buildOutputTotals(transfers),
		Runs:         buildRunRows(runs),
	}, nil
}

func buildSummary(runs []*domain.SplitRun, transfers []*domain.SplitTransfer, failures int64) RunSummary {
	total := new(uint256.Int)
	var durations int64
	for _, run := range runs {
		if run.TotalDistributed != nil {
			total.Add(total, run.TotalDistributed)
		}
		durations += run.DurationMs
	}

	var avg float64
	if len(runs) > 0 {
		avg = float64(durations) / float64(len(runs))
	}

	return RunSummary{
		TotalRuns:         len(runs),
		TotalTransfers:    len(transfers),
		TotalDistributed:  total.Dec(),
		AverageDurationMs: avg,
		OracleFailures:    failures,
	}
}

// buildTokenTotals joins the store-side sums with per-token transfer counts.
func buildTokenTotals(totals map[domain.Token]*uint256.Int, transfers []*domain.SplitTransfer) []TokenTotalRow {
	counts := make(map[domain.Token]int)
	for _, tr := range transfers {
		counts[tr.Token]++
	}

	rows := make([]TokenTotalRow, 0, len(totals))
	for token, total := range totals {
		rows = append(rows, TokenTotalRow{
			Token:         string(token),
			Total:         total.Dec(),
			TransferCount: counts[token],
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Token < rows[j].Token
	})
	return rows
}

func buildOutputTotals(transfers []*domain.SplitTransfer) []OutputTotalRow {
	type key struct {
		output string
		token  string
	}
	type acc struct {
		total *uint256.Int
		count int
	}
	groups := make(map[key]*acc)
	for _, tr := range transfers {
		if tr.Amount == nil {
			continue
		}
		k := key{output: tr.OutputAccount.String(), token: string(tr.Token)}
		a := groups[k]
		if a == nil {
			a = &acc{total: new(uint256.Int)}
			groups[k] = a
		}
		a.total.Add(a.total, tr.Amount)
		a.count++
	}

	rows := make([]OutputTotalRow, 0, len(groups))
	for k, a := range groups {
		rows = append(rows, OutputTotalRow{
			OutputAccount: k.output,
			Token:         k.token,
			Total:         a.total.Dec(),
			TransferCount: a.count,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].OutputAccount != rows[j].OutputAccount {
			return rows[i].OutputAccount < rows[j].OutputAccount
		}
		return rows[i].Token < rows[j].Token
	})
	return rows
}

func buildRunRows(runs []*domain.SplitRun) []RunRow {
	rows := make([]RunRow, 0, len(runs))
	for _, run := range runs {
		total := "0"
		if run.TotalDistributed != nil {
			total = run.TotalDistributed.Dec()
		}
		rows = append(rows, RunRow{
			RunID:            run.RunID,
			ExecutedAt:       run.ExecutedAt,
			PolicyVersion:    run.PolicyVersion,
			TotalDistributed: total,
			TransferCount:    run.TransferCount,
			DurationMs:       run.DurationMs,
		})
	}
	return rows
}
