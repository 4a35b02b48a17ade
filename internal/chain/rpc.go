package chain

import (
	"context"

	"github.com/holiman/uint256"

	"github.com/orbitearn/valence-protocol/internal/domain"
)

// CodeChecker reports whether an address hosts executable code. Policy
// validation uses it to reject dynamic-ratio rules that point at plain
// wallets.
type CodeChecker interface {
	HasCode(ctx context.Context, addr domain.Address) (bool, error)
}

// RatioSource resolves dynamic ratios from oracle programs.
type RatioSource interface {
	// QueryRatio asks the oracle what share of a token's balance to
	// distribute, scaled by the ratio unit.
	QueryRatio(ctx context.Context, oracle domain.Address, token domain.Token, params []byte) (*uint256.Int, error)
}

// AccountInfo describes an on-chain account.
type AccountInfo struct {
	Balance    uint64 // native balance in base units
	Owner      string // owning program
	Data       string // base64 encoded account data
	Executable bool   // true when the account hosts a program
}
