package storage

import (
	"context"

	"github.com/holiman/uint256"

	"github.com/orbitearn/valence-protocol/internal/domain"
)

// LedgerStore provides access to accounts, balances and library approvals.
// It is the execute/balanceOf capability every library routes funds through.
type LedgerStore interface {
	// CreateAccount adds a new account. Returns ErrDuplicateKey if the
	// address exists, ErrInvalidInput on a zero address or owner.
	CreateAccount(ctx context.Context, a *domain.Account) error

	// GetAccount retrieves an account. Returns ErrNotFound if not exists.
	GetAccount(ctx context.Context, addr domain.Address) (*domain.Account, error)

	// ApproveLibrary grants a library spend authority over an account.
	// Idempotent: approving twice is not an error.
	ApproveLibrary(ctx context.Context, account, library domain.Address) error

	// RevokeLibrary removes a library's spend authority.
	RevokeLibrary(ctx context.Context, account, library domain.Address) error

	// IsApproved reports whether a library may move funds out of an account.
	IsApproved(ctx context.Context, account, library domain.Address) (bool, error)

	// Credit deposits an amount into an account balance.
	Credit(ctx context.Context, account domain.Address, token domain.Token, amount *uint256.Int) error

	// BalanceOf returns the account's balance of one token. A missing
	// balance row reads as zero, not ErrNotFound.
	BalanceOf(ctx context.Context, account domain.Address, token domain.Token) (*uint256.Int, error)

	// Balances returns all non-zero balances of an account.
	Balances(ctx context.Context, account domain.Address) (map[domain.Token]*uint256.Int, error)

	// TransferBatch applies the transfers in order within one atomic unit.
	// Every debit requires the calling library to be approved on the source
	// account (ErrNotApproved) and sufficient balance (ErrInsufficientFunds).
	// Any failure rolls back the whole batch.
	TransferBatch(ctx context.Context, library domain.Address, transfers []*domain.Transfer) error
}

// PolicyStore provides access to split and forward policies plus the
// per-token aggregate index.
type PolicyStore interface {
	// ReplaceSplitPolicy swaps the library's policy wholesale: prior rules
	// and aggregates are fully cleared and the new generation written
	// within one atomic unit. Assigns the next Version.
	ReplaceSplitPolicy(ctx context.Context, library domain.Address, p *domain.SplitPolicy, aggs []*domain.TokenAggregate) error

	// GetSplitPolicy retrieves the library's current split policy.
	// Returns ErrNotFound if none was configured.
	GetSplitPolicy(ctx context.Context, library domain.Address) (*domain.SplitPolicy, error)

	// GetTokenAggregates retrieves the per-token index of the current
	// policy generation, ordered by first appearance in the rule list.
	GetTokenAggregates(ctx context.Context, library domain.Address) ([]*domain.TokenAggregate, error)

	// ReplaceForwardPolicy swaps the library's forward policy wholesale.
	ReplaceForwardPolicy(ctx context.Context, library domain.Address, p *domain.ForwardPolicy) error

	// GetForwardPolicy retrieves the library's current forward policy.
	// Returns ErrNotFound if none was configured.
	GetForwardPolicy(ctx context.Context, library domain.Address) (*domain.ForwardPolicy, error)

	// RecordForward stores the timestamp of the library's last forward run.
	RecordForward(ctx context.Context, library domain.Address, at int64) error
}

// EventStore provides access to run history for audit and reporting.
type EventStore interface {
	// InsertSplitRun adds one split run record.
	InsertSplitRun(ctx context.Context, run *domain.SplitRun) error

	// InsertSplitTransfers adds the per-transfer records of a run.
	InsertSplitTransfers(ctx context.Context, transfers []*domain.SplitTransfer) error

	// InsertOracleSamples adds the oracle resolutions observed by a run.
	InsertOracleSamples(ctx context.Context, samples []*domain.OracleSample) error

	// InsertForwardRun adds one forward run record.
	InsertForwardRun(ctx context.Context, run *domain.ForwardRun) error

	// SplitRunsBetween retrieves runs with ExecutedAt in [start, end],
	// ordered by ExecutedAt ASC.
	SplitRunsBetween(ctx context.Context, library domain.Address, start, end int64) ([]*domain.SplitRun, error)

	// SplitTransfersBetween retrieves transfers with ExecutedAt in
	// [start, end], ordered by ExecutedAt ASC.
	SplitTransfersBetween(ctx context.Context, library domain.Address, start, end int64) ([]*domain.SplitTransfer, error)

	// TotalsByToken sums transferred amounts per token over [start, end].
	TotalsByToken(ctx context.Context, library domain.Address, start, end int64) (map[domain.Token]*uint256.Int, error)

	// OracleFailureCount counts soft-failed oracle resolutions in [start, end].
	OracleFailureCount(ctx context.Context, library domain.Address, start, end int64) (int64, error)
}
