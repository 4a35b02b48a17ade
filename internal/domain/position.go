package domain

// Venue identifies the external protocol family a position manager wraps.
type Venue string

const (
	VenueLending   Venue = "LENDING"
	VenueVault     Venue = "VAULT"
	VenueFixedTerm Venue = "FIXED_TERM"
)

// String returns the string representation of Venue.
func (v Venue) String() string {
	return string(v)
}

// IsValid checks if the venue is a valid value.
func (v Venue) IsValid() bool {
	return v == VenueLending || v == VenueVault || v == VenueFixedTerm
}

// PositionOp is the uniform operation set position managers translate.
type PositionOp string

const (
	OpSupply   PositionOp = "SUPPLY"
	OpWithdraw PositionOp = "WITHDRAW"
	OpBorrow   PositionOp = "BORROW"
	OpRepay    PositionOp = "REPAY"
)

// String returns the string representation of PositionOp.
func (o PositionOp) String() string {
	return string(o)
}

// IsValid checks if the operation is a valid value.
func (o PositionOp) IsValid() bool {
	return o == OpSupply || o == OpWithdraw || o == OpBorrow || o == OpRepay
}
