package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/orbitearn/valence-protocol/internal/domain"
	"github.com/orbitearn/valence-protocol/internal/storage"
)

// LedgerStore is an in-memory implementation of storage.LedgerStore.
type LedgerStore struct {
	mu        sync.RWMutex
	accounts  map[domain.Address]*domain.Account
	approvals map[string]int64        // account|library -> approved at (ms)
	balances  map[string]*uint256.Int // account|token -> amount
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		accounts:  make(map[domain.Address]*domain.Account),
		approvals: make(map[string]int64),
		balances:  make(map[string]*uint256.Int),
	}
}

// approvalKey generates a unique key for an approval.
func approvalKey(account, library domain.Address) string {
	return fmt.Sprintf("%s|%s", account, library)
}

// balanceKey generates a unique key for a balance row.
func balanceKey(account domain.Address, token domain.Token) string {
	return fmt.Sprintf("%s|%s", account, token)
}

// CreateAccount adds a new account. Returns ErrDuplicateKey if the address exists.
func (s *LedgerStore) CreateAccount(_ context.Context, a *domain.Account) error {
	if a == nil || a.Address.IsZero() || a.Owner.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.Address]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *a
	s.accounts[a.Address] = &copy
	return nil
}

// GetAccount retrieves an account. Returns ErrNotFound if not exists.
func (s *LedgerStore) GetAccount(_ context.Context, addr domain.Address) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.accounts[addr]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *a
	return &copy, nil
}

// ApproveLibrary grants a library spend authority over an account.
// Returns ErrNotFound if the account is not registered.
func (s *LedgerStore) ApproveLibrary(_ context.Context, account, library domain.Address) error {
	if account.IsZero() || library.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account]; !exists {
		return storage.ErrNotFound
	}

	key := approvalKey(account, library)
	if _, exists := s.approvals[key]; !exists {
		s.approvals[key] = time.Now().UnixMilli()
	}
	return nil
}

// RevokeLibrary removes a library's spend authority. Revoking an approval
// that does not exist is a no-op.
func (s *LedgerStore) RevokeLibrary(_ context.Context, account, library domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.approvals, approvalKey(account, library))
	return nil
}

// IsApproved reports whether a library may move funds out of an account.
func (s *LedgerStore) IsApproved(_ context.Context, account, library domain.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.approvals[approvalKey(account, library)]
	return exists, nil
}

// Credit deposits an amount into an account balance.
func (s *LedgerStore) Credit(_ context.Context, account domain.Address, token domain.Token, amount *uint256.Int) error {
	if account.IsZero() || token == "" || amount == nil || amount.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := balanceKey(account, token)
	cur, exists := s.balances[key]
	if !exists {
		cur = new(uint256.Int)
		s.balances[key] = cur
	}
	cur.Add(cur, amount)
	return nil
}

// BalanceOf returns the account's balance of one token; zero if no row.
func (s *LedgerStore) BalanceOf(_ context.Context, account domain.Address, token domain.Token) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cur, exists := s.balances[balanceKey(account, token)]
	if !exists {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Set(cur), nil
}

// Balances returns all non-zero balances of an account.
func (s *LedgerStore) Balances(_ context.Context, account domain.Address) (map[domain.Token]*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := account.String() + "|"
	result := make(map[domain.Token]*uint256.Int)
	for key, amount := range s.balances {
		if len(key) <= len(prefix) || key[:len(prefix)] != prefix || amount.IsZero() {
			continue
		}
		result[domain.Token(key[len(prefix):])] = new(uint256.Int).Set(amount)
	}
	return result, nil
}

// TransferBatch applies the transfers in order within one atomic unit.
// The batch is staged against a scratch view of the balances and committed
// only if every step passes, so a failing transfer leaves no effect.
func (s *LedgerStore) TransferBatch(_ context.Context, library domain.Address, transfers []*domain.Transfer) error {
	if library.IsZero() {
		return storage.ErrInvalidInput
	}
	if len(transfers) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string]*uint256.Int)
	view := func(key string) *uint256.Int {
		if v, ok := staged[key]; ok {
			return v
		}
		v := new(uint256.Int)
		if cur, ok := s.balances[key]; ok {
			v.Set(cur)
		}
		staged[key] = v
		return v
	}

	for _, t := range transfers {
		if t == nil || t.From.IsZero() || t.To.IsZero() || t.Token == "" || t.Amount == nil || t.Amount.IsZero() {
			return storage.ErrInvalidInput
		}
		if _, approved := s.approvals[approvalKey(t.From, library)]; !approved {
			return fmt.Errorf("account %s: %w", t.From, storage.ErrNotApproved)
		}

		from := view(balanceKey(t.From, t.Token))
		if from.Lt(t.Amount) {
			return fmt.Errorf("account %s token %s: %w", t.From, t.Token, storage.ErrInsufficientFunds)
		}
		from.Sub(from, t.Amount)

		to := view(balanceKey(t.To, t.Token))
		to.Add(to, t.Amount)
	}

	for key, amount := range staged {
		s.balances[key] = amount
	}
	return nil
}

var _ storage.LedgerStore = (*LedgerStore)(nil)
