package domain

import "github.com/holiman/uint256"

// ForwardLimit caps how much of one token a single forward run may move.
type ForwardLimit struct {
	Token     Token        // asset
	MaxAmount *uint256.Int // per-run cap, strictly positive
}

// Clone returns a deep copy.
func (l *ForwardLimit) Clone() *ForwardLimit {
	out := &ForwardLimit{Token: l.Token}
	if l.MaxAmount != nil {
		out.MaxAmount = new(uint256.Int).Set(l.MaxAmount)
	}
	return out
}

// ForwardPolicy is the configuration of one forwarder library: move up to
// the per-token limits from the input account to the output account, at
// most once per MinIntervalSeconds.
type ForwardPolicy struct {
	InputAccount    Address         // source of funds
	OutputAccount   Address         // destination
	Limits          []*ForwardLimit // ordered per-token caps
	MinIntervalSecs int64           // minimum seconds between runs, 0 = unlimited
	LastForwardedAt int64           // Unix ms of the last run, 0 = never
	Version         int64           // policy generation, starts at 1
	UpdatedAt       int64           // Unix timestamp in milliseconds
}

// Clone returns a deep copy.
func (p *ForwardPolicy) Clone() *ForwardPolicy {
	out := &ForwardPolicy{
		InputAccount:    p.InputAccount,
		OutputAccount:   p.OutputAccount,
		MinIntervalSecs: p.MinIntervalSecs,
		LastForwardedAt: p.LastForwardedAt,
		Version:         p.Version,
		UpdatedAt:       p.UpdatedAt,
	}
	if p.Limits != nil {
		out.Limits = make([]*ForwardLimit, len(p.Limits))
		for i, l := range p.Limits {
			out.Limits[i] = l.Clone()
		}
	}
	return out
}
