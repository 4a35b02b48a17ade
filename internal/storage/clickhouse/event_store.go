package clickhouse

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/orbitearn/valence-protocol/internal/domain"
	"github.com/orbitearn/valence-protocol/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse.
// Run history is append-only; MergeTree tables are never updated in place.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// InsertSplitRun adds one split run record.
func (s *EventStore) InsertSplitRun(ctx context.Context, run *domain.SplitRun) error {
	query := `
		INSERT INTO split_runs (
			run_id, library, input_account, caller, policy_version,
			total_distributed, transfer_count, duration_ms, executed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		run.RunID, run.Library.String(), run.InputAccount.String(), run.Caller.String(),
		run.PolicyVersion, amountColumn(run.TotalDistributed), run.TransferCount,
		run.DurationMs, run.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("insert split run: %w", err)
	}
	return nil
}

// InsertSplitTransfers adds the per-transfer records of a run.
func (s *EventStore) InsertSplitTransfers(ctx context.Context, transfers []*domain.SplitTransfer) error {
	if len(transfers) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO split_transfers (
			run_id, seq, library, token, output_account,
			split_type, ratio, amount, executed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range transfers {
		err = batch.Append(
			t.RunID, t.Seq, t.Library.String(), string(t.Token), t.OutputAccount.String(),
			t.Type.String(), amountColumn(t.Ratio), amountColumn(t.Amount), t.ExecutedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// InsertOracleSamples adds the oracle resolutions observed by a run.
func (s *EventStore) InsertOracleSamples(ctx context.Context, samples []*domain.OracleSample) error {
	if len(samples) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO oracle_samples (
			run_id, library, token, oracle, params_hash,
			ratio, ok, cached, queried_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, m := range samples {
		err = batch.Append(
			m.RunID, m.Library.String(), string(m.Token), m.Oracle.String(), m.ParamsHash,
			amountColumn(m.Ratio), m.OK, m.Cached, m.QueriedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// InsertForwardRun adds one forward run record.
func (s *EventStore) InsertForwardRun(ctx context.Context, run *domain.ForwardRun) error {
	query := `
		INSERT INTO forward_runs (
			run_id, library, input_account, output_account, caller,
			total_moved, transfer_count, executed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		run.RunID, run.Library.String(), run.InputAccount.String(), run.OutputAccount.String(),
		run.Caller.String(), amountColumn(run.TotalMoved), run.TransferCount, run.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("insert forward run: %w", err)
	}
	return nil
}

// SplitRunsBetween retrieves runs executed in [start, end], oldest first.
func (s *EventStore) SplitRunsBetween(ctx context.Context, library domain.Address, start, end int64) ([]*domain.SplitRun, error) {
	query := `
		SELECT run_id, library, input_account, caller, policy_version,
			total_distributed, transfer_count, duration_ms, executed_at
		FROM split_runs
		WHERE library = ? AND executed_at >= ? AND executed_at <= ?
		ORDER BY executed_at ASC, run_id ASC
	`

	rows, err := s.conn.Query(ctx, query, library.String(), start, end)
	if err != nil {
		return nil, fmt.Errorf("query split runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.SplitRun
	for rows.Next() {
		run, err := scanSplitRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate split run rows: %w", err)
	}

	return runs, nil
}

// SplitTransfersBetween retrieves transfers executed in [start, end], oldest first.
func (s *EventStore) SplitTransfersBetween(ctx context.Context, library domain.Address, start, end int64) ([]*domain.SplitTransfer, error) {
	query := `
		SELECT run_id, seq, library, token, output_account,
			split_type, ratio, amount, executed_at
		FROM split_transfers
		WHERE library = ? AND executed_at >= ? AND executed_at <= ?
		ORDER BY executed_at ASC, run_id ASC, seq ASC
	`

	rows, err := s.conn.Query(ctx, query, library.String(), start, end)
	if err != nil {
		return nil, fmt.Errorf("query split transfers: %w", err)
	}
	defer rows.Close()

	var transfers []*domain.SplitTransfer
	for rows.Next() {
		t, err := scanSplitTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate split transfer rows: %w", err)
	}

	return transfers, nil
}

// TotalsByToken sums transferred amounts per token over [start, end].
// Amounts are stored as decimal strings; the sum runs server-side as UInt256
// and comes back as a string again.
func (s *EventStore) TotalsByToken(ctx context.Context, library domain.Address, start, end int64) (map[domain.Token]*uint256.Int, error) {
	query := `
		SELECT token, toString(sum(toUInt256(amount)))
		FROM split_transfers
		WHERE library = ? AND executed_at >= ? AND executed_at <= ?
		GROUP BY token
	`

	rows, err := s.conn.Query(ctx, query, library.String(), start, end)
	if err != nil {
		return nil, fmt.Errorf("query token totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[domain.Token]*uint256.Int)
	for rows.Next() {
		var token, sum string
		if err := rows.Scan(&token, &sum); err != nil {
			return nil, fmt.Errorf("scan token total: %w", err)
		}
		amount, err := amountFromColumn(sum)
		if err != nil {
			return nil, fmt.Errorf("token %s total: %w", token, err)
		}
		totals[domain.Token(token)] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token total rows: %w", err)
	}

	return totals, nil
}

// OracleFailureCount counts soft-failed oracle resolutions in [start, end].
func (s *EventStore) OracleFailureCount(ctx context.Context, library domain.Address, start, end int64) (int64, error) {
	query := `
		SELECT count(*) FROM oracle_samples
		WHERE library = ? AND queried_at >= ? AND queried_at <= ? AND ok = false
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, library.String(), start, end).Scan(&count); err != nil {
		return 0, fmt.Errorf("count oracle failures: %w", err)
	}
	return int64(count), nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanSplitRun(rows chRows) (*domain.SplitRun, error) {
	var (
		run                    domain.SplitRun
		library, input, caller string
		total                  string
	)
	err := rows.Scan(
		&run.RunID, &library, &input, &caller, &run.PolicyVersion,
		&total, &run.TransferCount, &run.DurationMs, &run.ExecutedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan split run row: %w", err)
	}

	if run.Library, err = domain.ParseAddress(library); err != nil {
		return nil, fmt.Errorf("parse library address: %w", err)
	}
	if run.InputAccount, err = domain.ParseAddress(input); err != nil {
		return nil, fmt.Errorf("parse input account: %w", err)
	}
	if run.Caller, err = domain.ParseAddress(caller); err != nil {
		return nil, fmt.Errorf("parse caller address: %w", err)
	}
	if run.TotalDistributed, err = amountFromColumn(total); err != nil {
		return nil, fmt.Errorf("parse total distributed: %w", err)
	}

	return &run, nil
}

func scanSplitTransfer(rows chRows) (*domain.SplitTransfer, error) {
	var (
		t                              domain.SplitTransfer
		library, token, output, splitT string
		ratio, amount                  string
	)
	err := rows.Scan(
		&t.RunID, &t.Seq, &library, &token, &output,
		&splitT, &ratio, &amount, &t.ExecutedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan split transfer row: %w", err)
	}

	if t.Library, err = domain.ParseAddress(library); err != nil {
		return nil, fmt.Errorf("parse library address: %w", err)
	}
	if t.OutputAccount, err = domain.ParseAddress(output); err != nil {
		return nil, fmt.Errorf("parse output account: %w", err)
	}
	t.Token = domain.Token(token)
	t.Type = domain.SplitType(splitT)
	if t.Ratio, err = amountFromColumn(ratio); err != nil {
		return nil, fmt.Errorf("parse ratio: %w", err)
	}
	if t.Amount, err = amountFromColumn(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}

	return &t, nil
}

// amountColumn renders an amount for a String column. Decimal strings keep
// full 256-bit precision; nil renders empty (fixed-amount transfers carry
// no ratio).
func amountColumn(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.Dec()
}

// amountFromColumn parses a String column back into an amount. Empty means
// the value was absent.
func amountFromColumn(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}
