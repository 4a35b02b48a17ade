package postgres

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/orbitearn/valence-protocol/internal/domain"
	"github.com/orbitearn/valence-protocol/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

// CreateAccount adds a new account. Returns ErrDuplicateKey if the address exists.
func (s *LedgerStore) CreateAccount(ctx context.Context, a *domain.Account) error {
	if a == nil || a.Address.IsZero() || a.Owner.IsZero() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO accounts (address, owner_address, created_at)
		VALUES ($1, $2, $3)
	`

	_, err := s.pool.Exec(ctx, query, a.Address.String(), a.Owner.String(), a.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetAccount retrieves an account. Returns ErrNotFound if not exists.
func (s *LedgerStore) GetAccount(ctx context.Context, addr domain.Address) (*domain.Account, error) {
	query := `
		SELECT address, owner_address, created_at
		FROM accounts
		WHERE address = $1
	`

	var addrStr, ownerStr string
	var account domain.Account
	err := s.pool.QueryRow(ctx, query, addr.String()).Scan(&addrStr, &ownerStr, &account.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	if account.Address, err = domain.ParseAddress(addrStr); err != nil {
		return nil, fmt.Errorf("stored account address: %w", err)
	}
	if account.Owner, err = domain.ParseAddress(ownerStr); err != nil {
		return nil, fmt.Errorf("stored account owner: %w", err)
	}
	return &account, nil
}

// ApproveLibrary grants a library spend authority over an account.
// Returns ErrNotFound if the account is not registered.
func (s *LedgerStore) ApproveLibrary(ctx context.Context, account, library domain.Address) error {
	if account.IsZero() || library.IsZero() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO account_approvals (account_address, library_address, approved_at)
		SELECT a.address, $2, (extract(epoch from now()) * 1000)::bigint
		FROM accounts a
		WHERE a.address = $1
		ON CONFLICT (account_address, library_address) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query, account.String(), library.String())
	if err != nil {
		return fmt.Errorf("approve library: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the account does not exist or the approval already does;
		// disambiguate for the caller.
		approved, aerr := s.IsApproved(ctx, account, library)
		if aerr != nil {
			return aerr
		}
		if !approved {
			return storage.ErrNotFound
		}
	}
	return nil
}

// RevokeLibrary removes a library's spend authority. Revoking an approval
// that does not exist is a no-op.
func (s *LedgerStore) RevokeLibrary(ctx context.Context, account, library domain.Address) error {
	query := `
		DELETE FROM account_approvals
		WHERE account_address = $1 AND library_address = $2
	`

	if _, err := s.pool.Exec(ctx, query, account.String(), library.String()); err != nil {
		return fmt.Errorf("revoke library: %w", err)
	}
	return nil
}

// IsApproved reports whether a library may move funds out of an account.
func (s *LedgerStore) IsApproved(ctx context.Context, account, library domain.Address) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM account_approvals
			WHERE account_address = $1 AND library_address = $2
		)
	`

	var approved bool
	if err := s.pool.QueryRow(ctx, query, account.String(), library.String()).Scan(&approved); err != nil {
		return false, fmt.Errorf("check approval: %w", err)
	}
	return approved, nil
}

// Credit deposits an amount into an account balance.
func (s *LedgerStore) Credit(ctx context.Context, account domain.Address, token domain.Token, amount *uint256.Int) error {
	if account.IsZero() || token == "" || amount == nil || amount.IsZero() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO balances (account_address, token, amount)
		VALUES ($1, $2, $3::numeric)
		ON CONFLICT (account_address, token)
		DO UPDATE SET amount = balances.amount + EXCLUDED.amount
	`

	if _, err := s.pool.Exec(ctx, query, account.String(), token.String(), amountParam(amount)); err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	return nil
}

// BalanceOf returns the account's balance of one token; zero if no row.
func (s *LedgerStore) BalanceOf(ctx context.Context, account domain.Address, token domain.Token) (*uint256.Int, error) {
	query := `
		SELECT amount::text
		FROM balances
		WHERE account_address = $1 AND token = $2
	`

	var raw string
	err := s.pool.QueryRow(ctx, query, account.String(), token.String()).Scan(&raw)
	if err != nil {
		if isNotFoundError(err) {
			return new(uint256.Int), nil
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return scanAmount(raw)
}

// Balances returns all non-zero balances of an account.
func (s *LedgerStore) Balances(ctx context.Context, account domain.Address) (map[domain.Token]*uint256.Int, error) {
	query := `
		SELECT token, amount::text
		FROM balances
		WHERE account_address = $1 AND amount > 0
	`

	rows, err := s.pool.Query(ctx, query, account.String())
	if err != nil {
		return nil, fmt.Errorf("get balances: %w", err)
	}
	defer rows.Close()

	result := make(map[domain.Token]*uint256.Int)
	for rows.Next() {
		var token, raw string
		if err := rows.Scan(&token, &raw); err != nil {
			return nil, fmt.Errorf("scan balance row: %w", err)
		}
		amount, err := scanAmount(raw)
		if err != nil {
			return nil, err
		}
		result[domain.Token(token)] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balance rows: %w", err)
	}
	return result, nil
}

// TransferBatch applies the transfers in order within one transaction.
// The conditional debit (amount >= requested) doubles as the sufficiency
// check; zero rows affected means the source lacks funds.
func (s *LedgerStore) TransferBatch(ctx context.Context, library domain.Address, transfers []*domain.Transfer) error {
	if library.IsZero() {
		return storage.ErrInvalidInput
	}
	if len(transfers) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const debitQuery = `
		UPDATE balances
		SET amount = amount - $3::numeric
		WHERE account_address = $1 AND token = $2 AND amount >= $3::numeric
	`
	const creditQuery = `
		INSERT INTO balances (account_address, token, amount)
		VALUES ($1, $2, $3::numeric)
		ON CONFLICT (account_address, token)
		DO UPDATE SET amount = balances.amount + EXCLUDED.amount
	`
	const approvalQuery = `
		SELECT EXISTS (
			SELECT 1 FROM account_approvals
			WHERE account_address = $1 AND library_address = $2
		)
	`

	approvals := make(map[domain.Address]bool)
	for _, t := range transfers {
		if t == nil || t.From.IsZero() || t.To.IsZero() || t.Token == "" || t.Amount == nil || t.Amount.IsZero() {
			return storage.ErrInvalidInput
		}

		approved, checked := approvals[t.From]
		if !checked {
			if err := tx.QueryRow(ctx, approvalQuery, t.From.String(), library.String()).Scan(&approved); err != nil {
				return fmt.Errorf("check approval: %w", err)
			}
			approvals[t.From] = approved
		}
		if !approved {
			return fmt.Errorf("account %s: %w", t.From, storage.ErrNotApproved)
		}

		tag, err := tx.Exec(ctx, debitQuery, t.From.String(), t.Token.String(), amountParam(t.Amount))
		if err != nil {
			return fmt.Errorf("debit %s: %w", t.From, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("account %s token %s: %w", t.From, t.Token, storage.ErrInsufficientFunds)
		}

		if _, err := tx.Exec(ctx, creditQuery, t.To.String(), t.Token.String(), amountParam(t.Amount)); err != nil {
			return fmt.Errorf("credit %s: %w", t.To, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
