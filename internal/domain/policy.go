package domain

import "github.com/holiman/uint256"

// SplitType selects the distribution strategy of a split rule. Strategies
// are mutually exclusive per token.
type SplitType string

const (
	SplitFixedAmount  SplitType = "FIXED_AMOUNT"
	SplitFixedRatio   SplitType = "FIXED_RATIO"
	SplitDynamicRatio SplitType = "DYNAMIC_RATIO"
)

// String returns the string representation of SplitType.
func (t SplitType) String() string {
	return string(t)
}

// IsValid checks if the split type is a valid value.
func (t SplitType) IsValid() bool {
	return t == SplitFixedAmount || t == SplitFixedRatio || t == SplitDynamicRatio
}

// OracleQuery addresses an external ratio oracle: the program that answers
// plus an opaque parameter blob it interprets.
type OracleQuery struct {
	Address Address // oracle program address
	Params  []byte  // opaque query parameters, may be empty
}

// Clone returns a deep copy.
func (q *OracleQuery) Clone() *OracleQuery {
	if q == nil {
		return nil
	}
	out := &OracleQuery{Address: q.Address}
	if q.Params != nil {
		out.Params = append([]byte(nil), q.Params...)
	}
	return out
}

// SplitRule directs a share of one token's balance to one output account.
// Exactly one of Amount, Ratio, Oracle is set, matching Type.
type SplitRule struct {
	OutputAccount Address      // receiver of this rule's share
	Token         Token        // asset being split
	Type          SplitType    // distribution strategy
	Amount        *uint256.Int // FIXED_AMOUNT: literal amount
	Ratio         *uint256.Int // FIXED_RATIO: fixed-point ratio, base 10^18
	Oracle        *OracleQuery // DYNAMIC_RATIO: ratio source
}

// Clone returns a deep copy.
func (r *SplitRule) Clone() *SplitRule {
	out := &SplitRule{
		OutputAccount: r.OutputAccount,
		Token:         r.Token,
		Type:          r.Type,
		Oracle:        r.Oracle.Clone(),
	}
	if r.Amount != nil {
		out.Amount = new(uint256.Int).Set(r.Amount)
	}
	if r.Ratio != nil {
		out.Ratio = new(uint256.Int).Set(r.Ratio)
	}
	return out
}

// SplitPolicy is the validated distribution policy of one splitter library.
// Policies are replaced wholesale on every configuration update; Version
// increments per accepted update.
type SplitPolicy struct {
	InputAccount Address      // account whose balance is distributed
	Rules        []*SplitRule // ordered rule list
	Version      int64        // policy generation, starts at 1
	UpdatedAt    int64        // Unix timestamp in milliseconds
}

// Clone returns a deep copy.
func (p *SplitPolicy) Clone() *SplitPolicy {
	out := &SplitPolicy{
		InputAccount: p.InputAccount,
		Version:      p.Version,
		UpdatedAt:    p.UpdatedAt,
	}
	if p.Rules != nil {
		out.Rules = make([]*SplitRule, len(p.Rules))
		for i, r := range p.Rules {
			out.Rules[i] = r.Clone()
		}
	}
	return out
}

// TokenAggregate is the per-token index rebuilt on every policy update.
// Validation sums accumulate here and must never survive across policy
// generations.
type TokenAggregate struct {
	Token     Token        // aggregated asset
	Type      SplitType    // the single strategy all of this token's rules use
	RatioSum  *uint256.Int // sum of FIXED_RATIO ratios, zero otherwise
	AmountSum *uint256.Int // sum of FIXED_AMOUNT amounts, zero otherwise
	RuleCount int          // number of rules referencing the token
}

// Clone returns a deep copy.
func (a *TokenAggregate) Clone() *TokenAggregate {
	out := &TokenAggregate{
		Token:     a.Token,
		Type:      a.Type,
		RuleCount: a.RuleCount,
	}
	if a.RatioSum != nil {
		out.RatioSum = new(uint256.Int).Set(a.RatioSum)
	}
	if a.AmountSum != nil {
		out.AmountSum = new(uint256.Int).Set(a.AmountSum)
	}
	return out
}
