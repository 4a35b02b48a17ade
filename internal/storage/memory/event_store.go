package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"github.com/orbitearn/valence-protocol/internal/domain"
	"github.com/orbitearn/valence-protocol/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
// Used by tests and the offline planner; production history lives in
// ClickHouse.
type EventStore struct {
	mu        sync.RWMutex
	runs      []*domain.SplitRun
	transfers []*domain.SplitTransfer
	samples   []*domain.OracleSample
	forwards  []*domain.ForwardRun
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{}
}

// InsertSplitRun adds one split run record.
func (s *EventStore) InsertSplitRun(_ context.Context, run *domain.SplitRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *run
	s.runs = append(s.runs, &copy)
	return nil
}

// InsertSplitTransfers adds the per-transfer records of a run.
func (s *EventStore) InsertSplitTransfers(_ context.Context, transfers []*domain.SplitTransfer) error {
	if len(transfers) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range transfers {
		if t == nil || t.RunID == "" {
			return storage.ErrInvalidInput
		}
		copy := *t
		s.transfers = append(s.transfers, &copy)
	}
	return nil
}

// InsertOracleSamples adds the oracle resolutions observed by a run.
func (s *EventStore) InsertOracleSamples(_ context.Context, samples []*domain.OracleSample) error {
	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sample := range samples {
		if sample == nil || sample.RunID == "" {
			return storage.ErrInvalidInput
		}
		copy := *sample
		s.samples = append(s.samples, &copy)
	}
	return nil
}

// InsertForwardRun adds one forward run record.
func (s *EventStore) InsertForwardRun(_ context.Context, run *domain.ForwardRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *run
	s.forwards = append(s.forwards, &copy)
	return nil
}

// SplitRunsBetween retrieves runs with ExecutedAt in [start, end], ordered ASC.
func (s *EventStore) SplitRunsBetween(_ context.Context, library domain.Address, start, end int64) ([]*domain.SplitRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SplitRun
	for _, run := range s.runs {
		if run.Library == library && run.ExecutedAt >= start && run.ExecutedAt <= end {
			copy := *run
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ExecutedAt < result[j].ExecutedAt
	})
	return result, nil
}

// SplitTransfersBetween retrieves transfers with ExecutedAt in [start, end], ordered ASC.
func (s *EventStore) SplitTransfersBetween(_ context.Context, library domain.Address, start, end int64) ([]*domain.SplitTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SplitTransfer
	for _, t := range s.transfers {
		if t.Library == library && t.ExecutedAt >= start && t.ExecutedAt <= end {
			copy := *t
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ExecutedAt != result[j].ExecutedAt {
			return result[i].ExecutedAt < result[j].ExecutedAt
		}
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}

// TotalsByToken sums transferred amounts per token over [start, end].
func (s *EventStore) TotalsByToken(_ context.Context, library domain.Address, start, end int64) (map[domain.Token]*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[domain.Token]*uint256.Int)
	for _, t := range s.transfers {
		if t.Library != library || t.ExecutedAt < start || t.ExecutedAt > end || t.Amount == nil {
			continue
		}
		cur, ok := totals[t.Token]
		if !ok {
			cur = new(uint256.Int)
			totals[t.Token] = cur
		}
		cur.Add(cur, t.Amount)
	}
	return totals, nil
}

// OracleFailureCount counts soft-failed oracle resolutions in [start, end].
func (s *EventStore) OracleFailureCount(_ context.Context, library domain.Address, start, end int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, sample := range s.samples {
		if sample.Library == library && !sample.OK && sample.QueriedAt >= start && sample.QueriedAt <= end {
			count++
		}
	}
	return count, nil
}

var _ storage.EventStore = (*EventStore)(nil)
