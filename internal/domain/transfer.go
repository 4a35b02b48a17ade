package domain

import "github.com/holiman/uint256"

// Transfer moves an amount of one token between two ledger accounts.
type Transfer struct {
	From   Address      // debited account
	To     Address      // credited account
	Token  Token        // asset
	Amount *uint256.Int // strictly positive
}

// Clone returns a deep copy.
func (t *Transfer) Clone() *Transfer {
	out := &Transfer{From: t.From, To: t.To, Token: t.Token}
	if t.Amount != nil {
		out.Amount = new(uint256.Int).Set(t.Amount)
	}
	return out
}
