package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kinds carried in the metadata.type claim. Refresh endpoints must
// reject anything that is not KindRefresh.
const (
	KindAccess  = "access_token"
	KindRefresh = "refresh_token"
)

const audience = "account"

var ErrInvalidToken = errors.New("token validation failed")

type Claims struct {
	Account  AccountClaim  `json:"account"`
	Metadata MetadataClaim `json:"metadata"`
	jwt.RegisteredClaims
}

type AccountClaim struct {
	ID string `json:"id"`
}

type MetadataClaim struct {
	Type string `json:"type"`
}

// Signer issues and verifies the HS512 bearer tokens of the service.
// It is stateless; a token is valid iff its signature and expiry hold.
type Signer struct {
	secret []byte
	issuer string
}

func NewSigner(secret, issuer string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("jwt: signature secret is not set")
	}
	if issuer == "" {
		return nil, errors.New("jwt: issuer is not set")
	}

	return &Signer{secret: []byte(secret), issuer: issuer}, nil
}

// Sign issues a token of the given kind for the user. The returned
// expiresAt is an absolute epoch-millisecond instant so callers never deal
// with durations.
func (s *Signer) Sign(userID, kind string, ttl time.Duration) (token string, expiresAt int64, err error) {
	const op = "jwt.Sign"

	now := time.Now()
	exp := now.Add(ttl)

	claims := Claims{
		Account:  AccountClaim{ID: userID},
		Metadata: MetadataClaim{Type: kind},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(s.secret)
	if err != nil {
		return "", 0, fmt.Errorf("%s: %w", op, err)
	}

	return signed, exp.UnixMilli(), nil
}

// Verify checks signature, expiry, issuer and audience and returns the
// decoded claims. Any failure collapses to ErrInvalidToken.
func (s *Signer) Verify(token string) (*Claims, error) {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
