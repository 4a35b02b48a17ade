package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/orbitearn/valence-protocol/internal/domain"
)

// ComputeRunID computes a deterministic run identifier for one library
// invocation. Formula: SHA256(library|started_at_ms|nonce)
// The nonce disambiguates runs started within the same millisecond.
// Returns hex-encoded hash (64 characters).
func ComputeRunID(library domain.Address, startedAt int64, nonce uint64) string {
	data := fmt.Sprintf("%s|%d|%d",
		library.String(),
		startedAt,
		nonce,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
