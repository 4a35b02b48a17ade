package position

import (
	"fmt"

	"github.com/orbitearn/valence-protocol/internal/domain"
)

// escrowAddress derives the venue escrow from the position program, so the
// escrow can never collide with a keypair-controlled account.
func escrowAddress(venue domain.Venue, program domain.Address) (domain.Address, error) {
	seeds := [][]byte{[]byte("escrow"), []byte(venue)}
	escrow, err := domain.DeriveProgramAddress(seeds, program)
	if err != nil {
		return domain.Address{}, fmt.Errorf("derive %s escrow: %w", venue, err)
	}
	return escrow, nil
}

func intoEscrow(escrow domain.Address, req Request) ([]*domain.Transfer, error) {
	if req.Input.IsZero() {
		return nil, ErrNoInputAccount
	}
	return []*domain.Transfer{{From: req.Input, To: escrow, Token: req.Token, Amount: req.Amount.Clone()}}, nil
}

func outOfEscrow(escrow domain.Address, req Request) ([]*domain.Transfer, error) {
	if req.Output.IsZero() {
		return nil, ErrNoOutputAccount
	}
	return []*domain.Transfer{{From: escrow, To: req.Output, Token: req.Token, Amount: req.Amount.Clone()}}, nil
}

// LendingAdapter maps the full operation set onto a lending market: supply
// and repay fund the escrow, withdraw and borrow draw from it.
type LendingAdapter struct {
	escrow domain.Address
}

// NewLendingAdapter binds the lending venue to its derived escrow.
func NewLendingAdapter(program domain.Address) (*LendingAdapter, error) {
	escrow, err := escrowAddress(domain.VenueLending, program)
	if err != nil {
		return nil, err
	}
	return &LendingAdapter{escrow: escrow}, nil
}

func (a *LendingAdapter) Venue() domain.Venue    { return domain.VenueLending }
func (a *LendingAdapter) Escrow() domain.Address { return a.escrow }

func (a *LendingAdapter) Translate(req Request) ([]*domain.Transfer, error) {
	switch req.Op {
	case domain.OpSupply, domain.OpRepay:
		return intoEscrow(a.escrow, req)
	case domain.OpWithdraw, domain.OpBorrow:
		return outOfEscrow(a.escrow, req)
	default:
		return nil, ErrUnsupportedOp
	}
}

// VaultAdapter maps deposits and redemptions onto a vault. Vault shares
// carry no debt, so borrow and repay are rejected.
type VaultAdapter struct {
	escrow domain.Address
}

// NewVaultAdapter binds the vault venue to its derived escrow.
func NewVaultAdapter(program domain.Address) (*VaultAdapter, error) {
	escrow, err := escrowAddress(domain.VenueVault, program)
	if err != nil {
		return nil, err
	}
	return &VaultAdapter{escrow: escrow}, nil
}

func (a *VaultAdapter) Venue() domain.Venue    { return domain.VenueVault }
func (a *VaultAdapter) Escrow() domain.Address { return a.escrow }

func (a *VaultAdapter) Translate(req Request) ([]*domain.Transfer, error) {
	switch req.Op {
	case domain.OpSupply:
		return intoEscrow(a.escrow, req)
	case domain.OpWithdraw:
		return outOfEscrow(a.escrow, req)
	default:
		return nil, ErrUnsupportedOp
	}
}

// FixedTermAdapter maps lending at term onto a fixed-term market: supply
// opens the position, withdraw redeems it. Maturity accounting lives on the
// venue side.
type FixedTermAdapter struct {
	escrow domain.Address
}

// NewFixedTermAdapter binds the fixed-term venue to its derived escrow.
func NewFixedTermAdapter(program domain.Address) (*FixedTermAdapter, error) {
	escrow, err := escrowAddress(domain.VenueFixedTerm, program)
	if err != nil {
		return nil, err
	}
	return &FixedTermAdapter{escrow: escrow}, nil
}

func (a *FixedTermAdapter) Venue() domain.Venue    { return domain.VenueFixedTerm }
func (a *FixedTermAdapter) Escrow() domain.Address { return a.escrow }

func (a *FixedTermAdapter) Translate(req Request) ([]*domain.Transfer, error) {
	switch req.Op {
	case domain.OpSupply:
		return intoEscrow(a.escrow, req)
	case domain.OpWithdraw:
		return outOfEscrow(a.escrow, req)
	default:
		return nil, ErrUnsupportedOp
	}
}

// Compile-time interface checks.
var (
	_ Adapter = (*LendingAdapter)(nil)
	_ Adapter = (*VaultAdapter)(nil)
	_ Adapter = (*FixedTermAdapter)(nil)
)
