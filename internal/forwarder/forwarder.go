// Package forwarder implements the rate-limited fund-forwarding library:
// move up to a per-token cap from one account to another, at most once per
// configured interval.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/orbitearn/valence-protocol/internal/domain"
	"github.com/orbitearn/valence-protocol/internal/idhash"
	"github.com/orbitearn/valence-protocol/internal/observability"
	"github.com/orbitearn/valence-protocol/internal/storage"
)

// Configuration rejections. The strings surface verbatim to callers and are
// part of the API.
var (
	ErrNoPolicy         = errors.New("no policy provided")
	ErrNoInputAccount   = errors.New("no input account provided")
	ErrNoOutputAccount  = errors.New("no output account provided")
	ErrZeroAmount       = errors.New("amount cannot be zero")
	ErrDuplicateToken   = errors.New("duplicate token in forward config")
	ErrNegativeInterval = errors.New("forward interval cannot be negative")
)

// Execution rejections.
var (
	ErrIntervalNotElapsed = errors.New("forward interval not elapsed")
	ErrForwardInProgress  = errors.New("forward already in progress")
)

// Authorization rejections, raised before any read or write.
var (
	ErrNotOwner     = errors.New("caller is not the owner")
	ErrNotProcessor = errors.New("caller is not the processor")
)

// Publisher receives completed forward runs for fan-out to stream clients.
type Publisher interface {
	PublishForwardRun(run *domain.ForwardRun)
}

// Engine drives one forwarder library.
type Engine struct {
	logger zerolog.Logger

	library   domain.Address
	owner     domain.Address
	processor domain.Address

	ledger   storage.LedgerStore
	policies storage.PolicyStore
	events   storage.EventStore

	metrics   *observability.Metrics
	publisher Publisher

	// mu serializes forward runs and policy updates, same discipline as the
	// splitter guard.
	mu    sync.Mutex
	nonce atomic.Uint64
}

// Options for creating an Engine.
type Options struct {
	Logger zerolog.Logger

	// Role addresses
	Library   domain.Address
	Owner     domain.Address
	Processor domain.Address

	// Required collaborators
	Ledger   storage.LedgerStore
	Policies storage.PolicyStore

	// Optional collaborators
	Events    storage.EventStore     // run history, nil disables
	Metrics   *observability.Metrics // nil disables
	Publisher Publisher              // nil disables
}

// New creates a new Engine.
func New(opts Options) *Engine {
	return &Engine{
		logger:    opts.Logger,
		library:   opts.Library,
		owner:     opts.Owner,
		processor: opts.Processor,
		ledger:    opts.Ledger,
		policies:  opts.Policies,
		events:    opts.Events,
		metrics:   opts.Metrics,
		publisher: opts.Publisher,
	}
}

// Library returns the address the ledger knows this forwarder by.
func (e *Engine) Library() domain.Address {
	return e.library
}

// Result reports one executed forward run.
type Result struct {
	RunID         string
	PolicyVersion int64
	Total         *uint256.Int
	Moves         []*domain.Transfer
}

// UpdateConfig validates and persists a new forward policy, replacing the
// prior one wholesale. Only the owner may call it. The last-forwarded
// timestamp survives replacement, so a fresh policy cannot sidestep the
// rate limit of the old one.
func (e *Engine) UpdateConfig(ctx context.Context, caller domain.Address, p *domain.ForwardPolicy) error {
	if caller != e.owner {
		return ErrNotOwner
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validatePolicy(p); err != nil {
		e.metrics.RecordPolicyUpdate("forward", "rejected")
		return err
	}

	if err := e.policies.ReplaceForwardPolicy(ctx, e.library, p); err != nil {
		e.metrics.RecordPolicyUpdate("forward", "rejected")
		return fmt.Errorf("replace forward policy: %w", err)
	}

	e.metrics.RecordPolicyUpdate("forward", "ok")
	e.logger.Info().
		Str("library", e.library.String()).
		Int("limits", len(p.Limits)).
		Int64("min_interval_secs", p.MinIntervalSecs).
		Msg("forward policy replaced")

	return nil
}

func validatePolicy(p *domain.ForwardPolicy) error {
	if p == nil || len(p.Limits) == 0 {
		return ErrNoPolicy
	}
	if p.InputAccount.IsZero() {
		return ErrNoInputAccount
	}
	if p.OutputAccount.IsZero() {
		return ErrNoOutputAccount
	}
	if p.MinIntervalSecs < 0 {
		return ErrNegativeInterval
	}

	seen := make(map[domain.Token]struct{}, len(p.Limits))
	for _, l := range p.Limits {
		if l.MaxAmount == nil || l.MaxAmount.IsZero() {
			return ErrZeroAmount
		}
		if _, dup := seen[l.Token]; dup {
			return ErrDuplicateToken
		}
		seen[l.Token] = struct{}{}
	}
	return nil
}

// Forward moves each configured token from the input account to the output
// account, capped per token by its limit and bounded by the available
// balance. Only the processor may call it. The run is atomic and counts
// against the rate limit only when it succeeds.
func (e *Engine) Forward(ctx context.Context, caller domain.Address) (*Result, error) {
	if caller != e.processor {
		return nil, ErrNotProcessor
	}

	if !e.mu.TryLock() {
		return nil, ErrForwardInProgress
	}
	defer e.mu.Unlock()

	startedAt := time.Now().UnixMilli()
	runID := idhash.ComputeRunID(e.library, startedAt, e.nonce.Add(1))

	policy, err := e.policies.GetForwardPolicy(ctx, e.library)
	if err != nil {
		return nil, fmt.Errorf("load forward policy: %w", err)
	}

	if policy.MinIntervalSecs > 0 && policy.LastForwardedAt > 0 {
		if startedAt-policy.LastForwardedAt < policy.MinIntervalSecs*1000 {
			e.metrics.RecordForwardRun("throttled", 0)
			return nil, ErrIntervalNotElapsed
		}
	}

	total := new(uint256.Int)
	var moves []*domain.Transfer
	for _, limit := range policy.Limits {
		balance, err := e.ledger.BalanceOf(ctx, policy.InputAccount, limit.Token)
		if err != nil {
			return nil, fmt.Errorf("read balance of %s: %w", limit.Token, err)
		}

		amount := limit.MaxAmount.Clone()
		if balance.Lt(amount) {
			amount.Set(balance)
		}
		if amount.IsZero() {
			continue
		}

		moves = append(moves, &domain.Transfer{
			From:   policy.InputAccount,
			To:     policy.OutputAccount,
			Token:  limit.Token,
			Amount: amount,
		})
		total.Add(total, amount)
	}

	if len(moves) > 0 {
		if err := e.ledger.TransferBatch(ctx, e.library, moves); err != nil {
			e.metrics.RecordForwardRun("error", 0)
			return nil, fmt.Errorf("execute transfers: %w", err)
		}
	}

	if err := e.policies.RecordForward(ctx, e.library, startedAt); err != nil {
		// Funds already moved; the caller must know the rate limit did not
		// advance before retrying.
		return nil, fmt.Errorf("record forward time: %w", err)
	}

	record := &domain.ForwardRun{
		RunID:         runID,
		Library:       e.library,
		InputAccount:  policy.InputAccount,
		OutputAccount: policy.OutputAccount,
		Caller:        caller,
		TotalMoved:    total.Clone(),
		TransferCount: len(moves),
		ExecutedAt:    startedAt,
	}

	if e.events != nil {
		if err := e.events.InsertForwardRun(ctx, record); err != nil {
			e.logger.Error().Err(err).Str("run_id", runID).Msg("record forward run")
		}
	}
	e.metrics.RecordForwardRun("ok", len(moves))
	if e.publisher != nil {
		e.publisher.PublishForwardRun(record)
	}

	e.logger.Info().
		Str("run_id", runID).
		Str("total", total.Dec()).
		Int("transfers", len(moves)).
		Msg("forward executed")

	return &Result{
		RunID:         runID,
		PolicyVersion: policy.Version,
		Total:         total,
		Moves:         moves,
	}, nil
}
