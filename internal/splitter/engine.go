// Package splitter implements the fund-distribution library: policy
// validation, split execution against the ledger, and per-invocation
// dynamic-ratio caching.
package splitter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/orbitearn/valence-protocol/internal/chain"
	"github.com/orbitearn/valence-protocol/internal/domain"
	"github.com/orbitearn/valence-protocol/internal/idhash"
	"github.com/orbitearn/valence-protocol/internal/observability"
	"github.com/orbitearn/valence-protocol/internal/storage"
)

// Publisher receives completed split runs for fan-out to stream clients.
type Publisher interface {
	PublishSplitRun(run *domain.SplitRun)
}

// Engine drives one splitter library: policy updates through the validator,
// split runs against the ledger.
type Engine struct {
	logger zerolog.Logger

	library   domain.Address
	owner     domain.Address
	processor domain.Address

	ledger    storage.LedgerStore
	policies  storage.PolicyStore
	events    storage.EventStore
	ratios    chain.RatioSource
	validator *Validator

	metrics   *observability.Metrics
	publisher Publisher

	// mu serializes split runs and policy updates. Split takes it without
	// blocking so an overlapping invocation is rejected, not queued.
	mu    sync.Mutex
	nonce atomic.Uint64
}

// Options for creating an Engine.
type Options struct {
	Logger zerolog.Logger

	// Role addresses
	Library   domain.Address // address the ledger knows this splitter by
	Owner     domain.Address // may replace the policy
	Processor domain.Address // may trigger split runs

	// Required collaborators
	Ledger   storage.LedgerStore
	Policies storage.PolicyStore
	Code     chain.CodeChecker
	Ratios   chain.RatioSource

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
		ratios:    opts.Ratios,
		validator: NewValidator(opts.Code),
		metrics:   opts.Metrics,
		publisher: opts.Publisher,
	}
}

// Library returns the address the ledger knows this splitter by.
func (e *Engine) Library() domain.Address {
	return e.library
}

// Result reports one split computation: the executed (or planned) transfers
// and the oracle resolutions that produced them.
type Result struct {
	RunID         string // empty for plans
	PolicyVersion int64
	Total         *uint256.Int
	Transfers     []*domain.SplitTransfer
	Samples       []*domain.OracleSample
}

// UpdateConfig validates and persists a new split policy, replacing the
// prior one wholesale. Only the owner may call it. On rejection nothing is
// persisted and the prior policy stays in force.
func (e *Engine) UpdateConfig(ctx context.Context, caller domain.Address, p *domain.SplitPolicy) error {
	if caller != e.owner {
		return ErrNotOwner
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	aggs, err := e.validator.Validate(ctx, p)
	if err != nil {
		e.metrics.RecordPolicyUpdate("split", "rejected")
		return err
	}

	if err := e.policies.ReplaceSplitPolicy(ctx, e.library, p, aggs); err != nil {
		e.metrics.RecordPolicyUpdate("split", "rejected")
		return fmt.Errorf("replace split policy: %w", err)
	}

	e.metrics.RecordPolicyUpdate("split", "ok")
	e.logger.Info().
		Str("library", e.library.String()).
		Int("rules", len(p.Rules)).
		Int("tokens", len(aggs)).
		Msg("split policy replaced")

	return nil
}

// Split distributes the input account's balances per the active policy and
// returns the executed plan. Only the processor may call it. The run is
// atomic: every transfer lands or none do.
func (e *Engine) Split(ctx context.Context, caller domain.Address) (*Result, error) {
	if caller != e.processor {
		return nil, ErrNotProcessor
	}

	if !e.mu.TryLock() {
		return nil, ErrSplitInProgress
	}
	defer e.mu.Unlock()

	started := time.Now()
	startedAt := started.UnixMilli()
	runID := idhash.ComputeRunID(e.library, startedAt, e.nonce.Add(1))

	policy, err := e.policies.GetSplitPolicy(ctx, e.library)
	if err != nil {
		return nil, fmt.Errorf("load split policy: %w", err)
	}

	run, err := e.compute(ctx, policy, runID, startedAt)
	if err != nil {
		e.metrics.RecordSplitRun("error", 0, time.Since(started).Seconds())
		return nil, err
	}

	if len(run.transfers) > 0 {
		if err := e.ledger.TransferBatch(ctx, e.library, run.transfers); err != nil {
			e.metrics.RecordSplitRun("error", 0, time.Since(started).Seconds())
			return nil, fmt.Errorf("execute transfers: %w", err)
		}
	}

	duration := time.Since(started)
	record := &domain.SplitRun{
		RunID:            runID,
		Library:          e.library,
		InputAccount:     policy.InputAccount,
		Caller:           caller,
		PolicyVersion:    policy.Version,
		TotalDistributed: run.total.Clone(),
		TransferCount:    len(run.transfers),
		DurationMs:       duration.Milliseconds(),
		ExecutedAt:       startedAt,
	}

	e.recordRun(ctx, record, run)
	e.metrics.RecordSplitRun("ok", len(run.transfers), duration.Seconds())
	if e.publisher != nil {
		e.publisher.PublishSplitRun(record)
	}

	e.logger.Info().
		Str("run_id", runID).
		Str("total", run.total.Dec()).
		Int("transfers", len(run.transfers)).
		Dur("duration", duration).
		Msg("split executed")

	return &Result{
		RunID:         runID,
		PolicyVersion: policy.Version,
		Total:         run.total,
		Transfers:     run.records,
		Samples:       run.samples,
	}, nil
}

// Plan computes the transfers a split run would execute right now, without
// touching the ledger. The answer is advisory: balances may shift before a
// later Split.
func (e *Engine) Plan(ctx context.Context) (*Result, error) {
	policy, err := e.policies.GetSplitPolicy(ctx, e.library)
	if err != nil {
		return nil, fmt.Errorf("load split policy: %w", err)
	}

	run, err := e.compute(ctx, policy, "", time.Now().UnixMilli())
	if err != nil {
		return nil, err
	}

	return &Result{
		PolicyVersion: policy.Version,
		Total:         run.total,
		Transfers:     run.records,
		Samples:       run.samples,
	}, nil
}

// computedRun is the output of one distribution computation.
type computedRun struct {
	total     *uint256.Int
	transfers []*domain.Transfer      // ledger transfers, in rule order
	records   []*domain.SplitTransfer // event records, one per transfer
	samples   []*domain.OracleSample  // oracle resolutions, soft-fails included
}

// compute walks the policy's tokens in first-seen order and derives per-rule
// transfer amounts from current balances. A zero balance skips the token; a
// zero computed amount skips the rule. Dust from floor rounding stays in the
// input account.
func (e *Engine) compute(ctx context.Context, policy *domain.SplitPolicy, runID string, at int64) (*computedRun, error) {
	run := &computedRun{total: new(uint256.Int)}
	cache := newRatioCache(e.ratios)

	var tokens []domain.Token
	rulesByToken := make(map[domain.Token][]*domain.SplitRule)
	for _, r := range policy.Rules {
		if _, ok := rulesByToken[r.Token]; !ok {
			tokens = append(tokens, r.Token)
		}
		rulesByToken[r.Token] = append(rulesByToken[r.Token], r)
	}

	for _, token := range tokens {
		balance, err := e.ledger.BalanceOf(ctx, policy.InputAccount, token)
		if err != nil {
			return nil, fmt.Errorf("read balance of %s: %w", token, err)
		}
		if balance.IsZero() {
			continue
		}

		for _, rule := range rulesByToken[token] {
			var amount, ratio *uint256.Int

			switch rule.Type {
			case domain.SplitFixedAmount:
				amount = rule.Amount.Clone()

			case domain.SplitFixedRatio:
				ratio = rule.Ratio.Clone()

			case domain.SplitDynamicRatio:
				res, err := cache.getRatio(ctx, token, rule.Oracle.Address, rule.Oracle.Params)
				if err != nil {
					e.metrics.RecordOracleQuery("out_of_range")
					return nil, err
				}
				run.samples = append(run.samples, &domain.OracleSample{
					RunID:      runID,
					Library:    e.library,
					Token:      token,
					Oracle:     rule.Oracle.Address,
					ParamsHash: res.Key,
					Ratio:      res.Ratio.Clone(),
					OK:         res.OK,
					Cached:     res.Cached,
					QueriedAt:  at,
				})
				e.metrics.RecordOracleQuery(queryResult(res))
				ratio = res.Ratio

			default:
				return nil, ErrInvalidSplitType
			}

			if ratio != nil {
				amount, err = domain.MulRatioFloor(balance, ratio)
				if err != nil {
					return nil, fmt.Errorf("apply ratio for %s: %w", token, err)
				}
			}

			if amount.IsZero() {
				continue
			}

			run.transfers = append(run.transfers, &domain.Transfer{
				From:   policy.InputAccount,
				To:     rule.OutputAccount,
				Token:  token,
				Amount: amount,
			})
			run.records = append(run.records, &domain.SplitTransfer{
				RunID:         runID,
				Seq:           len(run.records),
				Library:       e.library,
				Token:         token,
				OutputAccount: rule.OutputAccount,
				Type:          rule.Type,
				Ratio:         ratio,
				Amount:        amount.Clone(),
				ExecutedAt:    at,
			})
			run.total.Add(run.total, amount)
		}
	}

	return run, nil
}

// recordRun persists run history. The transfers are already applied at this
// point, so a history failure is logged rather than surfaced.
func (e *Engine) recordRun(ctx context.Context, record *domain.SplitRun, run *computedRun) {
	if e.events == nil {
		return
	}
	if err := e.events.InsertSplitRun(ctx, record); err != nil {
		e.logger.Error().Err(err).Str("run_id", record.RunID).Msg("record split run")
	}
	if err := e.events.InsertSplitTransfers(ctx, run.records); err != nil {
		e.logger.Error().Err(err).Str("run_id", record.RunID).Msg("record split transfers")
	}
	if err := e.events.InsertOracleSamples(ctx, run.samples); err != nil {
		e.logger.Error().Err(err).Str("run_id", record.RunID).Msg("record oracle samples")
	}
}

func queryResult(res resolution) string {
	switch {
	case res.Cached:
		return "cached"
	case res.OK:
		return "ok"
	default:
		return "failed"
	}
}
