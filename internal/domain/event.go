package domain

import "github.com/holiman/uint256"

// SplitRun records one completed split() invocation.
type SplitRun struct {
	RunID            string       // deterministic run identifier
	Library          Address      // splitter library that ran
	InputAccount     Address      // distributed account
	Caller           Address      // processor that triggered the run
	PolicyVersion    int64        // policy generation used
	TotalDistributed *uint256.Int // sum of all transfer amounts across tokens
	TransferCount    int          // number of executed transfers
	DurationMs       int64        // wall-clock run duration
	ExecutedAt       int64        // Unix timestamp in milliseconds
}

// SplitTransfer records one transfer issued by a split run.
type SplitTransfer struct {
	RunID         string       // owning run
	Seq           int          // position within the run, from 0
	Library       Address      // splitter library
	Token         Token        // asset moved
	OutputAccount Address      // receiver
	Type          SplitType    // strategy that produced the amount
	Ratio         *uint256.Int // ratio used, nil for FIXED_AMOUNT
	Amount        *uint256.Int // transferred amount
	ExecutedAt    int64        // Unix timestamp in milliseconds
}

// OracleSample records one dynamic-ratio resolution, including soft-failed
// queries absorbed as zero.
type OracleSample struct {
	RunID      string       // owning run
	Library    Address      // splitter library
	Token      Token        // asset the ratio applies to
	Oracle     Address      // queried oracle program
	ParamsHash string       // cache key of (token, oracle, params)
	Ratio      *uint256.Int // resolved ratio, zero when the query failed
	OK         bool         // false when the oracle call failed
	Cached     bool         // true when served from the per-run cache
	QueriedAt  int64        // Unix timestamp in milliseconds
}

// ForwardRun records one completed forward() invocation.
type ForwardRun struct {
	RunID         string       // deterministic run identifier
	Library       Address      // forwarder library that ran
	InputAccount  Address      // source account
	OutputAccount Address      // destination account
	Caller        Address      // processor that triggered the run
	TotalMoved    *uint256.Int // sum of all transfer amounts across tokens
	TransferCount int          // number of executed transfers
	ExecutedAt    int64        // Unix timestamp in milliseconds
}
