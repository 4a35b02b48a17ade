package memory

import (
	"context"
	"sync"
	"time"

	"github.com/orbitearn/valence-protocol/internal/domain"
	"github.com/orbitearn/valence-protocol/internal/storage"
)

// PolicyStore is an in-memory implementation of storage.PolicyStore.
type PolicyStore struct {
	mu         sync.RWMutex
	splits     map[domain.Address]*domain.SplitPolicy
	aggregates map[domain.Address][]*domain.TokenAggregate
	forwards   map[domain.Address]*domain.ForwardPolicy
}

// NewPolicyStore creates a new in-memory policy store.
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{
		splits:     make(map[domain.Address]*domain.SplitPolicy),
		aggregates: make(map[domain.Address][]*domain.TokenAggregate),
		forwards:   make(map[domain.Address]*domain.ForwardPolicy),
	}
}

// ReplaceSplitPolicy swaps the library's policy wholesale. The previous
// generation's rules and aggregates are dropped in the same critical
// section the new ones are written in, so no reader can observe a mix.
func (s *PolicyStore) ReplaceSplitPolicy(_ context.Context, library domain.Address, p *domain.SplitPolicy, aggs []*domain.TokenAggregate) error {
	if library.IsZero() || p == nil || p.InputAccount.IsZero() || len(p.Rules) == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := p.Clone()
	stored.Version = 1
	if prev, exists := s.splits[library]; exists {
		stored.Version = prev.Version + 1
	}
	stored.UpdatedAt = time.Now().UnixMilli()

	copied := make([]*domain.TokenAggregate, len(aggs))
	for i, a := range aggs {
		copied[i] = a.Clone()
	}

	delete(s.aggregates, library)
	s.splits[library] = stored
	s.aggregates[library] = copied
	return nil
}

// GetSplitPolicy retrieves the library's current split policy.
func (s *PolicyStore) GetSplitPolicy(_ context.Context, library domain.Address) (*domain.SplitPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.splits[library]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return p.Clone(), nil
}

// GetTokenAggregates retrieves the per-token index of the current policy.
func (s *PolicyStore) GetTokenAggregates(_ context.Context, library domain.Address) ([]*domain.TokenAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	aggs, exists := s.aggregates[library]
	if !exists {
		return nil, storage.ErrNotFound
	}

	result := make([]*domain.TokenAggregate, len(aggs))
	for i, a := range aggs {
		result[i] = a.Clone()
	}
	return result, nil
}

// ReplaceForwardPolicy swaps the library's forward policy wholesale.
func (s *PolicyStore) ReplaceForwardPolicy(_ context.Context, library domain.Address, p *domain.ForwardPolicy) error {
	if library.IsZero() || p == nil || p.InputAccount.IsZero() || p.OutputAccount.IsZero() || len(p.Limits) == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := p.Clone()
	stored.Version = 1
	stored.LastForwardedAt = 0
	if prev, exists := s.forwards[library]; exists {
		stored.Version = prev.Version + 1
		stored.LastForwardedAt = prev.LastForwardedAt
	}
	stored.UpdatedAt = time.Now().UnixMilli()

	s.forwards[library] = stored
	return nil
}

// GetForwardPolicy retrieves the library's current forward policy.
func (s *PolicyStore) GetForwardPolicy(_ context.Context, library domain.Address) (*domain.ForwardPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.forwards[library]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return p.Clone(), nil
}

// RecordForward stores the timestamp of the library's last forward run.
func (s *PolicyStore) RecordForward(_ context.Context, library domain.Address, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.forwards[library]
	if !exists {
		return storage.ErrNotFound
	}
	p.LastForwardedAt = at
	return nil
}

var _ storage.PolicyStore = (*PolicyStore)(nil)
