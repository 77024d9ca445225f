package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"event_auth/internal/config"
	"event_auth/internal/models"
	"event_auth/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	poolConfig, err := pgxpool.ParseConfig(dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

// UserByEmail resolves a non-deleted account by its email, case
// insensitively. Admin and regular accounts are disjoint namespaces over
// the same email column, hence the is_admin filter.
func (r *PostgresRepo) UserByEmail(ctx context.Context, email string, isAdmin bool) (models.User, error) {
	query := `
		SELECT id, firstname, lastname, email, phone, password, password_salt,
		       verified, active, is_admin, created_at
		FROM users
		WHERE lower(email) = lower($1) AND is_admin = $2 AND deleted = FALSE;
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, email, isAdmin))
}

func (r *PostgresRepo) UserByID(ctx context.Context, id string, isAdmin bool) (models.User, error) {
	query := `
		SELECT id, firstname, lastname, email, phone, password, password_salt,
		       verified, active, is_admin, created_at
		FROM users
		WHERE id = $1 AND is_admin = $2 AND deleted = FALSE;
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, id, isAdmin))
}

// UserAnyByID resolves a non-deleted account by id regardless of the admin
// flag, used by flows that start from a token rather than a login form.
func (r *PostgresRepo) UserAnyByID(ctx context.Context, id string) (models.User, error) {
	query := `
		SELECT id, firstname, lastname, email, phone, password, password_salt,
		       verified, active, is_admin, created_at
		FROM users
		WHERE id = $1 AND deleted = FALSE;
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepo) SetVerified(ctx context.Context, userID string) error {
	const op = "storage.postgres.SetVerified"

	query := `UPDATE users SET verified = TRUE, updated_at = NOW() WHERE id = $1 AND deleted = FALSE`

	if _, err := r.pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) UpdatePassword(ctx context.Context, userID, salt, hash string) error {
	const op = "storage.postgres.UpdatePassword"

	query := `
		UPDATE users
		SET password = $1, password_salt = $2, updated_at = NOW()
		WHERE id = $3 AND deleted = FALSE
	`

	if _, err := r.pool.Exec(ctx, query, hash, salt, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) scanUser(row pgx.Row) (models.User, error) {
	var u models.User

	err := row.Scan(
		&u.ID,
		&u.Firstname,
		&u.Lastname,
		&u.Email,
		&u.Phone,
		&u.Password,
		&u.PasswordSalt,
		&u.Verified,
		&u.Active,
		&u.IsAdmin,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, err
	}

	return u, nil
}

// Challenges returns a view of the otp_challenges table scoped to one
// purpose. Login and password-recovery challenges share the schema and
// differ only by this discriminator.
func (r *PostgresRepo) Challenges(purpose string) *ChallengeRepo {
	return &ChallengeRepo{pool: r.pool, purpose: purpose}
}

type ChallengeRepo struct {
	pool    *pgxpool.Pool
	purpose string
}

func (r *ChallengeRepo) Create(ctx context.Context, ch *models.OtpChallenge) error {
	const op = "storage.postgres.ChallengeRepo.Create"

	query := `
		INSERT INTO otp_challenges (id, purpose, otp, token, email, phone, exp, checked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE);
	`

	_, err := r.pool.Exec(ctx, query, ch.ID, r.purpose, ch.Otp, ch.Token, ch.Email, ch.Phone, ch.Exp)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// LastByEmail returns the most recent challenge for the email, regardless
// of its state. Challenges are never deleted; newer ones supersede.
func (r *ChallengeRepo) LastByEmail(ctx context.Context, email string) (models.OtpChallenge, error) {
	query := `
		SELECT id, otp, token, email, phone, exp, checked
		FROM otp_challenges
		WHERE purpose = $1 AND email = $2
		ORDER BY created_at DESC
		LIMIT 1;
	`

	return r.scanChallenge(r.pool.QueryRow(ctx, query, r.purpose, email))
}

// ByOtpAndToken requires both secrets to match the same unconsumed record,
// so neither can be brute-forced while holding the other.
func (r *ChallengeRepo) ByOtpAndToken(ctx context.Context, otp, token string) (models.OtpChallenge, error) {
	query := `
		SELECT id, otp, token, email, phone, exp, checked
		FROM otp_challenges
		WHERE purpose = $1 AND otp = $2 AND token = $3 AND checked = FALSE;
	`

	return r.scanChallenge(r.pool.QueryRow(ctx, query, r.purpose, otp, token))
}

// ActiveByToken resolves an unconsumed challenge by its exchange token,
// used when the caller asks to (re)send the code.
func (r *ChallengeRepo) ActiveByToken(ctx context.Context, token string) (models.OtpChallenge, error) {
	query := `
		SELECT id, otp, token, email, phone, exp, checked
		FROM otp_challenges
		WHERE purpose = $1 AND token = $2 AND checked = FALSE;
	`

	return r.scanChallenge(r.pool.QueryRow(ctx, query, r.purpose, token))
}

func (r *ChallengeRepo) MarkChecked(ctx context.Context, id string) error {
	const op = "storage.postgres.ChallengeRepo.MarkChecked"

	query := `UPDATE otp_challenges SET checked = TRUE, updated_at = NOW() WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *ChallengeRepo) scanChallenge(row pgx.Row) (models.OtpChallenge, error) {
	var c models.OtpChallenge

	err := row.Scan(
		&c.ID,
		&c.Otp,
		&c.Token,
		&c.Email,
		&c.Phone,
		&c.Exp,
		&c.Checked,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.OtpChallenge{}, storage.ErrChallengeNotFound
		}

		return models.OtpChallenge{}, err
	}

	return c, nil
}

// SaveJournal appends one audit row. Callers treat failures as best-effort.
func (r *PostgresRepo) SaveJournal(ctx context.Context, id, module, component, level, message string, data []byte) error {
	const op = "storage.postgres.SaveJournal"

	query := `
		INSERT INTO journals (id, module, component, level, message, data)
		VALUES ($1, $2, $3, $4, $5, $6);
	`

	if _, err := r.pool.Exec(ctx, query, id, module, component, level, message, data); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
