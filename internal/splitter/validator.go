package splitter

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/orbitearn/valence-protocol/internal/chain"
	"github.com/orbitearn/valence-protocol/internal/domain"
)

// Validator checks candidate split policies against the configuration
// invariants before anything is persisted. A policy is accepted or rejected
// wholesale; there are no partial updates.
type Validator struct {
	code chain.CodeChecker
}

// NewValidator creates a Validator that resolves oracle addresses through
// the given code checker.
func NewValidator(code chain.CodeChecker) *Validator {
	return &Validator{code: code}
}

// Validate checks a candidate policy and returns the per-token aggregate
// index a successful replacement persists alongside it, ordered by first
// appearance of each token in the rule list.
//
// The aggregates are always built from scratch, so sums from the prior
// policy generation cannot bleed into this one. Validating the same policy
// twice yields the same outcome and the same aggregate state.
func (v *Validator) Validate(ctx context.Context, p *domain.SplitPolicy) ([]*domain.TokenAggregate, error) {
	if p == nil || len(p.Rules) == 0 {
		return nil, ErrNoPolicy
	}
	if p.InputAccount.IsZero() {
		return nil, ErrNoInputAccount
	}

	aggs := make(map[domain.Token]*domain.TokenAggregate, len(p.Rules))
	var order []domain.Token
	seen := make(map[string]struct{}, len(p.Rules))

	// First pass: accumulate per-token sums in rule order. Dynamic rules mix
	// with nothing, so a dynamic rule landing on non-zero sums, or a fixed
	// rule landing on a dynamic token, fails here; fixed-amount/fixed-ratio
	// mixing is only visible once all sums are in and fails in the second
	// pass.
	for _, r := range p.Rules {
		if r.OutputAccount.IsZero() {
			return nil, ErrNoOutputAccount
		}
		if !r.Type.IsValid() {
			return nil, ErrInvalidSplitType
		}

		pair := fmt.Sprintf("%s|%s", r.Token, r.OutputAccount)
		if _, dup := seen[pair]; dup {
			return nil, ErrDuplicateSplit
		}
		seen[pair] = struct{}{}

		agg, ok := aggs[r.Token]
		if !ok {
			agg = &domain.TokenAggregate{
				Token:     r.Token,
				Type:      r.Type,
				RatioSum:  new(uint256.Int),
				AmountSum: new(uint256.Int),
			}
			aggs[r.Token] = agg
			order = append(order, r.Token)
		}

		switch r.Type {
		case domain.SplitFixedAmount:
			if r.Amount == nil || r.Amount.IsZero() {
				return nil, ErrZeroAmount
			}
			if agg.Type == domain.SplitDynamicRatio {
				return nil, ErrMixedSplitTypes
			}
			agg.AmountSum.Add(agg.AmountSum, r.Amount)

		case domain.SplitFixedRatio:
			if r.Ratio == nil || r.Ratio.IsZero() {
				return nil, ErrZeroRatio
			}
			if agg.Type == domain.SplitDynamicRatio {
				return nil, ErrMixedSplitTypes
			}
			agg.RatioSum.Add(agg.RatioSum, r.Ratio)

		case domain.SplitDynamicRatio:
			if !agg.RatioSum.IsZero() || !agg.AmountSum.IsZero() {
				return nil, ErrMixedSplitTypes
			}
		}

		agg.RuleCount++
	}

	// Second pass: confirm each rule's strategy agrees with its token's
	// final sums.
	unit := domain.RatioUnit()
	for _, r := range p.Rules {
		agg := aggs[r.Token]
		switch r.Type {
		case domain.SplitFixedRatio:
			if agg.RatioSum.Cmp(unit) != 0 {
				return nil, ErrRatioSum
			}
		case domain.SplitFixedAmount:
			if !agg.RatioSum.IsZero() {
				return nil, ErrMixedSplitTypes
			}
		case domain.SplitDynamicRatio:
			if !agg.RatioSum.IsZero() || !agg.AmountSum.IsZero() {
				return nil, ErrMixedSplitTypes
			}
		}
	}

	// Oracle addresses must host program code. Each distinct address is
	// resolved once.
	checked := make(map[domain.Address]bool)
	for _, r := range p.Rules {
		if r.Type != domain.SplitDynamicRatio {
			continue
		}
		if r.Oracle == nil || r.Oracle.Address.IsZero() {
			return nil, ErrOracleNotContract
		}

		hasCode, ok := checked[r.Oracle.Address]
		if !ok {
			var err error
			hasCode, err = v.code.HasCode(ctx, r.Oracle.Address)
			if err != nil {
				return nil, fmt.Errorf("resolve oracle %s: %w", r.Oracle.Address, err)
			}
			checked[r.Oracle.Address] = hasCode
		}
		if !hasCode {
			return nil, ErrOracleNotContract
		}
	}

	out := make([]*domain.TokenAggregate, len(order))
	for i, token := range order {
		out[i] = aggs[token]
	}
	return out, nil
}
