package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"event_auth/internal/models"
)

// ErrTokenInvalid is deliberately generic: a caller cannot tell whether the
// record is missing, inactive or holds a different token.
var ErrTokenInvalid = errors.New("token is invalid")

// DefaultAppType is used when a client does not identify itself.
const DefaultAppType = "default"

type RecordStore interface {
	UpsertTokenRecord(ctx context.Context, rec models.TokenRecord, ttl time.Duration) error
	TokenRecordsByUser(ctx context.Context, userID string) ([]models.TokenRecord, error)
	DisableTokenRecord(ctx context.Context, userID, appType string) error
}

// Service tracks the currently-valid token pair per (user, app type) and
// lets it be revoked before its cryptographic expiry. The whole feature
// sits behind a flag: disabled, every operation is a successful no-op and
// validity rests on the token signature alone.
type Service struct {
	log     *slog.Logger
	store   RecordStore
	enabled bool
	ttl     time.Duration
}

func New(log *slog.Logger, store RecordStore, enabled bool, ttl time.Duration) *Service {
	return &Service{
		log:     log,
		store:   store,
		enabled: enabled,
		ttl:     ttl,
	}
}

func (s *Service) Enabled() bool {
	return s.enabled
}

// Save upserts the record for (userID, appType). The previous pair for
// that client is implicitly invalidated; last writer wins.
func (s *Service) Save(ctx context.Context, userID, accessToken, refreshToken, ipAddress, appType string) error {
	const op = "token.Save"

	if !s.enabled {
		return nil
	}

	if appType == "" {
		appType = DefaultAppType
	}

	rec := models.TokenRecord{
		UserID:       userID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		IPAddress:    ipAddress,
		AppType:      appType,
		Active:       true,
	}

	if err := s.store.UpsertTokenRecord(ctx, rec, s.ttl); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// VerifyAccess returns the active record matching the presented access
// token, or ErrTokenInvalid. Returns (nil, nil) when tracking is disabled.
func (s *Service) VerifyAccess(ctx context.Context, userID, accessToken string) (*models.TokenRecord, error) {
	return s.verify(ctx, userID, func(rec models.TokenRecord) bool {
		return rec.AccessToken == accessToken
	})
}

func (s *Service) VerifyRefresh(ctx context.Context, userID, refreshToken string) (*models.TokenRecord, error) {
	return s.verify(ctx, userID, func(rec models.TokenRecord) bool {
		return rec.RefreshToken == refreshToken
	})
}

func (s *Service) verify(ctx context.Context, userID string, match func(models.TokenRecord) bool) (*models.TokenRecord, error) {
	if !s.enabled {
		return nil, nil
	}

	records, err := s.store.TokenRecordsByUser(ctx, userID)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	for _, rec := range records {
		if rec.Active && match(rec) {
			return &rec, nil
		}
	}

	return nil, ErrTokenInvalid
}

// Disable revokes the session behind the presented access token. The
// caller must hold the currently-active token, not just know the user id.
func (s *Service) Disable(ctx context.Context, userID, accessToken string) error {
	const op = "token.Disable"

	if !s.enabled {
		return nil
	}

	rec, err := s.VerifyAccess(ctx, userID, accessToken)
	if err != nil {
		return err
	}

	if err := s.store.DisableTokenRecord(ctx, userID, rec.AppType); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
