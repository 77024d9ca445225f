package redis

import (
	"context"
	"fmt"
	"time"

	"event_auth/internal/models"
	"event_auth/internal/storage"

	"github.com/redis/go-redis/v9"
)

type RedisRepo struct {
	client *redis.Client
}

func New(ctx context.Context, addr, pass string, db int) (*RedisRepo, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisRepo{client: client}, nil
}

// NewWithClient wraps an existing client, used by tests.
func NewWithClient(client *redis.Client) *RedisRepo {
	return &RedisRepo{client: client}
}

func recordKey(userID, appType string) string {
	return fmt.Sprintf("session:%s:%s", userID, appType)
}

// UpsertTokenRecord overwrites the single record for (user, app type).
// The previous token pair simply stops matching; last writer wins.
func (r *RedisRepo) UpsertTokenRecord(ctx context.Context, rec models.TokenRecord, ttl time.Duration) error {
	const op = "storage.redis.UpsertTokenRecord"

	key := recordKey(rec.UserID, rec.AppType)

	data := map[string]interface{}{
		"user_id":       rec.UserID,
		"access_token":  rec.AccessToken,
		"refresh_token": rec.RefreshToken,
		"ip_address":    rec.IPAddress,
		"app_type":      rec.AppType,
		"active":        boolField(rec.Active),
		"created_at":    time.Now().Unix(),
	}

	pipe := r.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, data)
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// TokenRecordsByUser returns every tracked record for the user, one per
// app type. A bearer token must match one of them to be accepted.
func (r *RedisRepo) TokenRecordsByUser(ctx context.Context, userID string) ([]models.TokenRecord, error) {
	const op = "storage.redis.TokenRecordsByUser"

	var (
		records []models.TokenRecord
		cursor  uint64
	)

	for {
		keys, next, err := r.client.Scan(ctx, cursor, recordKey(userID, "*"), 50).Result()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		for _, key := range keys {
			fields, err := r.client.HGetAll(ctx, key).Result()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			if len(fields) == 0 {
				continue
			}

			records = append(records, recordFromFields(fields))
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	if len(records) == 0 {
		return nil, storage.ErrTokenRecordNotFound
	}

	return records, nil
}

// DisableTokenRecord flips the record inactive without deleting it, so the
// originating IP stays available for audit.
func (r *RedisRepo) DisableTokenRecord(ctx context.Context, userID, appType string) error {
	const op = "storage.redis.DisableTokenRecord"

	key := recordKey(userID, appType)

	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if exists == 0 {
		return storage.ErrTokenRecordNotFound
	}

	if err := r.client.HSet(ctx, key, "active", boolField(false)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func recordFromFields(fields map[string]string) models.TokenRecord {
	return models.TokenRecord{
		UserID:       fields["user_id"],
		AccessToken:  fields["access_token"],
		RefreshToken: fields["refresh_token"],
		IPAddress:    fields["ip_address"],
		AppType:      fields["app_type"],
		Active:       fields["active"] == "1",
	}
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (r *RedisRepo) Close() {
	_ = r.client.Close()
}
