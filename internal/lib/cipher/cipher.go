package cipher

import (
	"bytes"
	"crypto/aes"
	aescipher "crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

// ErrInvalidToken is the single error returned for any decrypt failure:
// malformed input, tampered ciphertext or an expired payload. Collapsing
// them keeps the verification endpoint from acting as an oracle.
var ErrInvalidToken = errors.New("invalid verification token")

// VerificationPayload travels inside the opaque email-verification token.
// Exp is an epoch-millisecond instant enforced by Decrypt.
type VerificationPayload struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Exp    int64  `json:"exp"`
}

// Codec encrypts verification payloads with a fixed key/IV pair, producing
// strings safe to embed in a URL query parameter.
type Codec struct {
	key []byte
	iv  []byte
}

func New(key, iv string) (*Codec, error) {
	if len(key) != 32 {
		return nil, errors.New("cipher: key must be 32 bytes")
	}
	if len(iv) != aes.BlockSize {
		return nil, errors.New("cipher: iv must be 16 bytes")
	}

	return &Codec{key: []byte(key), iv: []byte(iv)}, nil
}

func (c *Codec) Encrypt(payload VerificationPayload) (string, error) {
	plain, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}

	padded := pad(plain, aes.BlockSize)
	out := make([]byte, len(padded))
	aescipher.NewCBCEncrypter(block, c.iv).CryptBlocks(out, padded)

	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (c *Codec) Decrypt(token string) (VerificationPayload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return VerificationPayload{}, ErrInvalidToken
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return VerificationPayload{}, ErrInvalidToken
	}

	plain := make([]byte, len(raw))
	aescipher.NewCBCDecrypter(block, c.iv).CryptBlocks(plain, raw)

	plain, err = unpad(plain, aes.BlockSize)
	if err != nil {
		return VerificationPayload{}, ErrInvalidToken
	}

	var payload VerificationPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return VerificationPayload{}, ErrInvalidToken
	}

	if payload.Exp <= time.Now().UnixMilli() {
		return VerificationPayload{}, ErrInvalidToken
	}

	return payload, nil
}

func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty input")
	}

	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errors.New("bad padding")
	}

	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("bad padding")
		}
	}

	return data[:len(data)-n], nil
}
