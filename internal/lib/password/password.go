package password

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLength = 16
	iterations = 100_000
	keyLength  = 64
)

// Hash derives a salted hash for the given plain password. The salt and
// hash are stored as separate fields on the account record.
func Hash(plain string) (salt string, hash string, err error) {
	const op = "password.Hash"

	rawSalt := make([]byte, saltLength)
	if _, err := rand.Read(rawSalt); err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	key := pbkdf2.Key([]byte(plain), rawSalt, iterations, keyLength, sha512.New)

	return hex.EncodeToString(rawSalt), hex.EncodeToString(key), nil
}

// Match reports whether plain hashes to hash under the given salt.
// It is deterministic and never errors on malformed input.
func Match(salt, plain, hash string) bool {
	rawSalt, err := hex.DecodeString(salt)
	if err != nil {
		return false
	}

	expected, err := hex.DecodeString(hash)
	if err != nil {
		return false
	}

	key := pbkdf2.Key([]byte(plain), rawSalt, iterations, keyLength, sha512.New)

	return subtle.ConstantTimeCompare(key, expected) == 1
}
