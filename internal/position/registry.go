// Package position implements the venue position managers: thin adapters
// translating a uniform operation set into ledger transfers against
// per-venue escrow accounts.
package position

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/orbitearn/valence-protocol/internal/domain"
	"github.com/orbitearn/valence-protocol/internal/observability"
	"github.com/orbitearn/valence-protocol/internal/storage"
)

// Rejections. The strings surface verbatim to callers.
var (
	ErrUnknownVenue    = errors.New("unknown venue")
	ErrUnsupportedOp   = errors.New("operation not supported by venue")
	ErrInvalidOp       = errors.New("invalid position operation")
	ErrZeroAmount      = errors.New("amount cannot be zero")
	ErrNoToken         = errors.New("no token provided")
	ErrNoInputAccount  = errors.New("no input account provided")
	ErrNoOutputAccount = errors.New("no output account provided")
	ErrNotProcessor    = errors.New("caller is not the processor")
)

// Request describes one position operation.
type Request struct {
	Venue  domain.Venue
	Op     domain.PositionOp
	Token  domain.Token
	Amount *uint256.Int
	Input  domain.Address // funded account, required for SUPPLY and REPAY
	Output domain.Address // receiving account, required for WITHDRAW and BORROW
}

// Adapter translates uniform operations into the transfers one venue needs.
type Adapter interface {
	Venue() domain.Venue
	Escrow() domain.Address
	Translate(req Request) ([]*domain.Transfer, error)
}

// Registry dispatches position operations to venue adapters and executes
// the resulting transfers atomically.
type Registry struct {
	logger    zerolog.Logger
	library   domain.Address
	processor domain.Address
	ledger    storage.LedgerStore
	metrics   *observability.Metrics
	adapters  map[domain.Venue]Adapter
}

// Options for creating a Registry.
type Options struct {
	Logger    zerolog.Logger
	Library   domain.Address // address the ledger knows the position manager by
	Processor domain.Address
	Ledger    storage.LedgerStore
	Metrics   *observability.Metrics // nil disables
	Adapters  []Adapter
}

// NewRegistry creates a Registry over the given adapters.
func NewRegistry(opts Options) *Registry {
	adapters := make(map[domain.Venue]Adapter, len(opts.Adapters))
	for _, a := range opts.Adapters {
		adapters[a.Venue()] = a
	}
	return &Registry{
		logger:    opts.Logger,
		library:   opts.Library,
		processor: opts.Processor,
		ledger:    opts.Ledger,
		metrics:   opts.Metrics,
		adapters:  adapters,
	}
}

// Library returns the address the ledger knows the position manager by.
func (r *Registry) Library() domain.Address {
	return r.library
}

// Escrows returns the escrow account of every registered venue.
func (r *Registry) Escrows() map[domain.Venue]domain.Address {
	out := make(map[domain.Venue]domain.Address, len(r.adapters))
	for venue, a := range r.adapters {
		out[venue] = a.Escrow()
	}
	return out
}

// Execute runs one position operation. Only the processor may call it. The
// translated transfers apply atomically.
func (r *Registry) Execute(ctx context.Context, caller domain.Address, req Request) ([]*domain.Transfer, error) {
	if caller != r.processor {
		return nil, ErrNotProcessor
	}

	if err := r.checkRequest(req); err != nil {
		r.metrics.RecordPositionOp(req.Venue.String(), req.Op.String(), "rejected")
		return nil, err
	}

	adapter, ok := r.adapters[req.Venue]
	if !ok {
		r.metrics.RecordPositionOp(req.Venue.String(), req.Op.String(), "rejected")
		return nil, ErrUnknownVenue
	}

	transfers, err := adapter.Translate(req)
	if err != nil {
		r.metrics.RecordPositionOp(req.Venue.String(), req.Op.String(), "rejected")
		return nil, err
	}

	if err := r.ledger.TransferBatch(ctx, r.library, transfers); err != nil {
		r.metrics.RecordPositionOp(req.Venue.String(), req.Op.String(), "error")
		return nil, fmt.Errorf("execute transfers: %w", err)
	}

	r.metrics.RecordPositionOp(req.Venue.String(), req.Op.String(), "ok")
	r.logger.Info().
		Str("venue", req.Venue.String()).
		Str("op", req.Op.String()).
		Str("token", req.Token.String()).
		Str("amount", req.Amount.Dec()).
		Msg("position operation executed")

	return transfers, nil
}

func (r *Registry) checkRequest(req Request) error {
	if !req.Op.IsValid() {
		return ErrInvalidOp
	}
	if req.Token == "" {
		return ErrNoToken
	}
	if req.Amount == nil || req.Amount.IsZero() {
		return ErrZeroAmount
	}
	return nil
}
