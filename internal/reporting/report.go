package reporting

import "time"

// Report summarizes split distribution activity over one time window.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	Library     string
	WindowStart int64 // Unix ms, inclusive
	WindowEnd   int64 // Unix ms, inclusive

	// Run Summary
	Summary RunSummary

	// Totals (sorted by token, then output account)
	TokenTotals  []TokenTotalRow
	OutputTotals []OutputTotalRow

	// Runs in execution order
	Runs []RunRow
}

// RunSummary aggregates the window's runs.
type RunSummary struct {
	TotalRuns         int
	TotalTransfers    int
	TotalDistributed  string // decimal, sum across all tokens
	AverageDurationMs float64
	OracleFailures    int64 // soft-failed oracle resolutions
}

// TokenTotalRow is the distributed total of one token.
type TokenTotalRow struct {
	Token         string
	Total         string // decimal
	TransferCount int
}

// OutputTotalRow is the total received by one output account in one token.
type OutputTotalRow struct {
	OutputAccount string
	Token         string
	Total         string // decimal
	TransferCount int
}

// RunRow represents one split run.
type RunRow struct {
	RunID            string
	ExecutedAt       int64 // Unix ms
	PolicyVersion    int64
	TotalDistributed string // decimal
	TransferCount    int
	DurationMs       int64
}
