package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/orbitearn/valence-protocol/internal/domain"
)

// ComputeRatioKey computes the deterministic dynamic-ratio cache key.
// Formula: SHA256(token|oracle|hex(params))
// Params are hex-encoded so the pipe framing stays unambiguous for opaque
// parameter blobs. Returns hex-encoded hash (64 characters).
func ComputeRatioKey(token domain.Token, oracle domain.Address, params []byte) string {
	data := fmt.Sprintf("%s|%s|%s",
		string(token),
		oracle.String(),
		hex.EncodeToString(params),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
