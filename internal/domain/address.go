package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// AddressLength is the byte length of a ledger address.
const AddressLength = 32

// Address identifies a ledger account or an on-chain program.
// The zero value means "not set".
type Address [AddressLength]byte

// ParseAddress decodes a base58 address string.
func ParseAddress(s string) (Address, error) {
	var addr Address
	if s == "" {
		return addr, fmt.Errorf("empty address")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return addr, fmt.Errorf("decode address %q: %w", s, err)
	}
	if len(raw) != AddressLength {
		return addr, fmt.Errorf("address %q: expected %d bytes, got %d", s, AddressLength, len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

// String returns the base58 representation.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == Address{}
}

// NewAddress generates a random address. Used when creating accounts
// without a caller-supplied address.
func NewAddress() (Address, error) {
	var addr Address
	if _, err := rand.Read(addr[:]); err != nil {
		return addr, fmt.Errorf("generate address: %w", err)
	}
	return addr, nil
}

// DeriveProgramAddress derives a deterministic program-owned address from
// seeds and a program id. The derivation searches bump seeds from 255 down
// for the first SHA-256 digest that is not a valid ed25519 curve point, so
// derived addresses can never collide with keypair-controlled accounts.
func DeriveProgramAddress(seeds [][]byte, program Address) (Address, error) {
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0, 64)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, program[:]...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		digest := sha256.Sum256(data)
		if !isOnCurve(digest[:]) {
			var addr Address
			copy(addr[:], digest[:])
			return addr, nil
		}
	}
	return Address{}, fmt.Errorf("no off-curve address found for program %s", program)
}

func isOnCurve(point []byte) bool {
	if len(point) != AddressLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
