// Package digest provides the hashing and address derivation support the
// ledger needs. Every digest is a lower-case hex encoded SHA-256 sum.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// ErrCrypto is wrapped by every failure produced by this package.
var ErrCrypto = errors.New("crypto failure")

// =============================================================================

// Hash returns the SHA-256 digest of the JSON encoding of the value.
//
// CORE NOTE: Struct fields are marshaled in declaration order and map keys
// are sorted by the encoder, so logically equal values always produce the
// same digest. Callers hashing partial views of a type should declare a
// dedicated struct with the fields in a fixed order.
func Hash(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("%w: marshal: %s", ErrCrypto, err)
	}

	return HashBytes(data), nil
}

// HashString returns the SHA-256 digest of the raw string.
func HashString(s string) string {
	return HashBytes([]byte(s))
}

// HashBytes returns the SHA-256 digest of the raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// GenerateAddress generates a new secp256k1 key pair and returns the
// digest of the uncompressed public key as the wallet address. The private
// key is never stored; the ledger does not verify signatures.
func GenerateAddress() (string, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("%w: generate key: %s", ErrCrypto, err)
	}

	return HashBytes(crypto.FromECDSAPub(&privateKey.PublicKey)), nil
}

// MeetsDifficulty checks the hash has a difficulty number of leading 0's.
func MeetsDifficulty(hash string, difficulty uint) bool {
	if len(hash) != sha256.Size*2 || int(difficulty) > len(hash) {
		return false
	}

	return strings.Count(hash[:difficulty], "0") == int(difficulty)
}
