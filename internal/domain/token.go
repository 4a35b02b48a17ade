package domain

import "fmt"

// Token identifies the asset being moved: either the native asset sentinel
// or the base58 mint address of a token.
type Token string

// TokenNative is the sentinel for the chain's native asset.
const TokenNative Token = "native"

// ParseToken validates a token identifier.
func ParseToken(s string) (Token, error) {
	if s == "" {
		return "", fmt.Errorf("empty token")
	}
	if Token(s) == TokenNative {
		return TokenNative, nil
	}
	if _, err := ParseAddress(s); err != nil {
		return "", fmt.Errorf("token mint: %w", err)
	}
	return Token(s), nil
}

// String returns the string representation of Token.
func (t Token) String() string {
	return string(t)
}

// IsNative reports whether the token is the native asset sentinel.
func (t Token) IsNative() bool {
	return t == TokenNative
}
