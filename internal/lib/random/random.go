package random

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Number returns a fixed-width numeric code, left padded with zeros.
func Number(digits int) string {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		panic(fmt.Sprintf("random: crypto source unavailable: %v", err))
	}

	return fmt.Sprintf("%0*d", digits, n)
}

// String returns a high-entropy opaque token of the given length.
func String(length int) string {
	out := make([]byte, length)
	alpha := big.NewInt(int64(len(tokenAlphabet)))

	for i := range out {
		n, err := rand.Int(rand.Reader, alpha)
		if err != nil {
			panic(fmt.Sprintf("random: crypto source unavailable: %v", err))
		}
		out[i] = tokenAlphabet[n.Int64()]
	}

	return string(out)
}
