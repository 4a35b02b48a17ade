package splitter

import (
	"context"

	"github.com/holiman/uint256"

	"github.com/orbitearn/valence-protocol/internal/chain"
	"github.com/orbitearn/valence-protocol/internal/domain"
	"github.com/orbitearn/valence-protocol/internal/idhash"
)

// ratioCache memoizes oracle answers for the lifetime of one split or plan
// invocation. Rules sharing a (token, oracle, params) triple see the
// identical ratio even when the oracle would answer differently between two
// calls. The cache never outlives the invocation that created it.
type ratioCache struct {
	source  chain.RatioSource
	entries map[string]ratioEntry
}

type ratioEntry struct {
	ratio *uint256.Int
	ok    bool
}

// resolution describes one dynamic-ratio lookup.
type resolution struct {
	Ratio  *uint256.Int // resolved ratio, zero after a soft-fail
	Key    string       // cache key of (token, oracle, params)
	OK     bool         // false when the oracle call failed
	Cached bool         // true when served from the memo
}

func newRatioCache(source chain.RatioSource) *ratioCache {
	return &ratioCache{
		source:  source,
		entries: make(map[string]ratioEntry),
	}
}

// getRatio resolves the ratio for one dynamic rule.
//
// A failed oracle call is absorbed as ratio zero so one broken feed cannot
// block the whole distribution; the zero is memoized like any other answer.
// An in-range answer is memoized and returned. An answer exceeding the
// ratio unit is a hard error: it signals a broken or malicious oracle and
// must abort the run rather than be clamped.
func (c *ratioCache) getRatio(ctx context.Context, token domain.Token, oracle domain.Address, params []byte) (resolution, error) {
	key := idhash.ComputeRatioKey(token, oracle, params)

	if e, hit := c.entries[key]; hit {
		return resolution{Ratio: e.ratio.Clone(), Key: key, OK: e.ok, Cached: true}, nil
	}

	ratio, err := c.source.QueryRatio(ctx, oracle, token, params)
	if err != nil {
		zero := new(uint256.Int)
		c.entries[key] = ratioEntry{ratio: zero, ok: false}
		return resolution{Ratio: zero.Clone(), Key: key}, nil
	}

	if !domain.IsValidRatio(ratio) {
		return resolution{}, ErrRatioExceedsMax
	}

	c.entries[key] = ratioEntry{ratio: ratio, ok: true}
	return resolution{Ratio: ratio.Clone(), Key: key, OK: true}, nil
}
