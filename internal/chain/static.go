package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/orbitearn/valence-protocol/internal/domain"
)

// Static serves code checks and ratio queries from fixed tables. It stands
// in for a live node in demo mode and tests.
type Static struct {
	mu       sync.RWMutex
	programs map[domain.Address]bool
	ratios   map[domain.Address]*uint256.Int
}

// Compile-time interface checks.
var (
	_ CodeChecker = (*Static)(nil)
	_ RatioSource = (*Static)(nil)
)

// NewStatic creates an empty static chain.
func NewStatic() *Static {
	return &Static{
		programs: make(map[domain.Address]bool),
		ratios:   make(map[domain.Address]*uint256.Int),
	}
}

// AddProgram marks addr as hosting executable code.
func (s *Static) AddProgram(addr domain.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.programs[addr] = true
}

// SetRatio configures the ratio an oracle resolves to. The oracle is
// marked as a program so policies referencing it validate.
func (s *Static) SetRatio(oracle domain.Address, ratio *uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.programs[oracle] = true
	s.ratios[oracle] = new(uint256.Int).Set(ratio)
}

// HasCode reports whether addr was registered as a program.
func (s *Static) HasCode(_ context.Context, addr domain.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.programs[addr], nil
}

// QueryRatio returns the configured ratio. Unknown oracles fail the query,
// which split runs absorb as a zero ratio.
func (s *Static) QueryRatio(_ context.Context, oracle domain.Address, _ domain.Token, _ []byte) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ratio, ok := s.ratios[oracle]
	if !ok {
		return nil, fmt.Errorf("oracle %s has no ratio configured", oracle)
	}
	return new(uint256.Int).Set(ratio), nil
}
