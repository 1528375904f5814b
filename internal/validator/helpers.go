package validator

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/mr-tron/base58"
)

// Solana addresses are base58 encoded 32-byte ed25519 public keys.
const walletKeyLength = 32

func NotBlank(value string) bool {
	return strings.TrimSpace(value) != ""
}

func MinRunes(value string, n int) bool {
	return utf8.RuneCountInString(value) >= n
}

func MaxRunes(value string, n int) bool {
	return utf8.RuneCountInString(value) <= n
}

func PermittedValue[T comparable](value T, permittedValues ...T) bool {
	return slices.Contains(permittedValues, value)
}

// IsWalletAddress reports whether value decodes to a 32-byte public key.
func IsWalletAddress(value string) bool {
	if len(value) < 32 || len(value) > 44 {
		return false
	}
	key, err := base58.Decode(value)
	return err == nil && len(key) == walletKeyLength
}
