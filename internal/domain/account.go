package domain

// Account is a ledger entity custodying balances. Libraries may move funds
// out of an account only after the owner approved them on it.
type Account struct {
	Address   Address // account identity
	Owner     Address // controller allowed to manage approvals
	CreatedAt int64   // Unix timestamp in milliseconds
}

// Approval grants a library spend authority over an account.
type Approval struct {
	Account    Address // approved-on account
	Library    Address // approved library
	ApprovedAt int64   // Unix timestamp in milliseconds
}
