package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"event_auth/internal/config"
	"event_auth/internal/lib/cipher"
	"event_auth/internal/lib/jwt"
	sl "event_auth/internal/lib/logger"
	"event_auth/internal/lib/password"
	"event_auth/internal/lib/random"
	"event_auth/internal/models"
	"event_auth/internal/notify"
	"event_auth/internal/storage"

	"github.com/google/uuid"
)

const (
	otpDigits        = 6
	exchangeTokenLen = 100

	journalModule = "UserAccessControl"
	journalAuth   = "AuthService"
)

type UserProvider interface {
	UserByEmail(ctx context.Context, email string, isAdmin bool) (models.User, error)
	UserByID(ctx context.Context, id string, isAdmin bool) (models.User, error)
	UserAnyByID(ctx context.Context, id string) (models.User, error)
	SetVerified(ctx context.Context, userID string) error
	UpdatePassword(ctx context.Context, userID, salt, hash string) error
}

type ChallengeStore interface {
	Create(ctx context.Context, ch *models.OtpChallenge) error
	LastByEmail(ctx context.Context, email string) (models.OtpChallenge, error)
	ByOtpAndToken(ctx context.Context, otp, token string) (models.OtpChallenge, error)
	ActiveByToken(ctx context.Context, token string) (models.OtpChallenge, error)
	MarkChecked(ctx context.Context, id string) error
}

type SessionTracker interface {
	Save(ctx context.Context, userID, accessToken, refreshToken, ipAddress, appType string) error
	VerifyAccess(ctx context.Context, userID, accessToken string) (*models.TokenRecord, error)
	VerifyRefresh(ctx context.Context, userID, refreshToken string) (*models.TokenRecord, error)
	Disable(ctx context.Context, userID, accessToken string) error
}

type Notifier interface {
	SendTemplateEmail(template string, payload map[string]any, recipient, userID string)
}

type Journal interface {
	Save(module, component, level, message string, data map[string]any)
}

type Credentials struct {
	Email    string
	Password string
}

// Metadata describes the calling client, recorded with every issued pair.
type Metadata struct {
	IPAddress string
	AppType   string
}

type Options struct {
	// AsAPI makes a successful login return a signed token pair instead
	// of the sanitized profile.
	AsAPI   bool
	AsAdmin bool
}

type OtpValidation struct {
	Otp   string
	Token string
}

// LoginResult holds exactly one of Tokens (API mode) or Profile.
type LoginResult struct {
	Tokens  *models.TokenData
	Profile *models.PublicUser
}

// Auth orchestrates credential validation, the two OTP step-up flows,
// token issuance and email verification. It owns no transport concerns.
type Auth struct {
	log         *slog.Logger
	users       UserProvider
	loginOtps   ChallengeStore
	recoverOtps ChallengeStore
	signer      *jwt.Signer
	tracker     SessionTracker
	notifier    Notifier
	journal     Journal
	codec       *cipher.Codec

	baseURL         string
	otpTTL          time.Duration
	whitelistEmails []string
	whitelistOtp    string
	accessTTL       time.Duration
	refreshTTL      time.Duration
	verifyEmailTTL  time.Duration
}

func New(
	log *slog.Logger,
	users UserProvider,
	loginOtps, recoverOtps ChallengeStore,
	signer *jwt.Signer,
	tracker SessionTracker,
	notifier Notifier,
	journal Journal,
	codec *cipher.Codec,
	cfg *config.Config,
) *Auth {
	return &Auth{
		log:             log,
		users:           users,
		loginOtps:       loginOtps,
		recoverOtps:     recoverOtps,
		signer:          signer,
		tracker:         tracker,
		notifier:        notifier,
		journal:         journal,
		codec:           codec,
		baseURL:         cfg.App.BaseURL,
		otpTTL:          cfg.Otp.TTL,
		whitelistEmails: cfg.Otp.WhitelistEmails,
		whitelistOtp:    cfg.Otp.WhitelistOtp,
		accessTTL:       cfg.Jwt.AccessTokenTTL,
		refreshTTL:      cfg.Jwt.RefreshTokenTTL,
		verifyEmailTTL:  cfg.EmailVerification.TTL,
	}
}

// Login validates the credentials and either issues a token pair (API
// mode) or returns the sanitized profile. Whatever failed underneath, the
// returned error is the generic ErrInvalidCredentials; the concrete cause
// stays reachable via errors.Is.
func (a *Auth) Login(ctx context.Context, creds Credentials, meta Metadata, opts Options) (LoginResult, error) {
	user, err := a.handleLogin(ctx, creds, opts.AsAdmin)
	if err != nil {
		return LoginResult{}, fail(ErrInvalidCredentials, err)
	}

	if opts.AsAPI {
		tokens, err := a.issueTokens(ctx, user, meta)
		if err != nil {
			return LoginResult{}, err
		}
		return LoginResult{Tokens: &tokens}, nil
	}

	profile := user.Public()
	return LoginResult{Profile: &profile}, nil
}

// LoginWithOtp is step one of the step-up flow: credentials are validated
// exactly as in Login, then a pending challenge is reissued verbatim or a
// fresh one is created.
func (a *Auth) LoginWithOtp(ctx context.Context, creds Credentials, asAdmin bool) (models.OtpChallenge, error) {
	user, err := a.handleLogin(ctx, creds, asAdmin)
	if err != nil {
		return models.OtpChallenge{}, fail(ErrInvalidCredentials, err)
	}

	return a.issueChallenge(ctx, a.loginOtps, user, true)
}

// ValidateLoginOtp is step two: both the numeric code and the exchange
// token must match one unconsumed challenge. On success the challenge is
// consumed best-effort and the flow terminates like Login.
func (a *Auth) ValidateLoginOtp(ctx context.Context, payload OtpValidation, meta Metadata, opts Options) (LoginResult, error) {
	const op = "auth.ValidateLoginOtp"

	data, err := a.consumeChallenge(ctx, a.loginOtps, payload)
	if err != nil {
		return LoginResult{}, err
	}

	user, err := a.users.UserByEmail(ctx, data.Email, opts.AsAdmin)
	if err != nil {
		return LoginResult{}, fail(ErrAccountNotFound, err)
	}

	if opts.AsAPI {
		tokens, err := a.issueTokens(ctx, user, meta)
		if err != nil {
			return LoginResult{}, err
		}
		return LoginResult{Tokens: &tokens}, nil
	}

	a.journalInfo(fmt.Sprintf("user %s validated a login otp challenge", data.Email))
	a.log.Info("login otp validated", slog.String("op", op), slog.String("email", data.Email))

	profile := user.Public()
	return LoginResult{Profile: &profile}, nil
}

// RefreshToken re-authenticates a user from a refresh token and issues a
// brand-new pair.
func (a *Auth) RefreshToken(ctx context.Context, token string, meta Metadata, asAdmin bool) (models.TokenData, error) {
	const op = "auth.RefreshToken"

	claims, err := a.signer.Verify(token)
	if err != nil {
		return models.TokenData{}, fail(ErrRefreshInvalid, err)
	}

	if _, err := a.tracker.VerifyRefresh(ctx, claims.Account.ID, token); err != nil {
		a.log.Info("refresh token not tracked", slog.String("op", op), sl.Err(err))
		return models.TokenData{}, fail(ErrRefreshInvalid, err)
	}

	if claims.Metadata.Type != jwt.KindRefresh {
		return models.TokenData{}, fail(ErrRefreshInvalid, errors.New("token kind is not refresh_token"))
	}

	user, err := a.users.UserByID(ctx, claims.Account.ID, asAdmin)
	if err != nil {
		return models.TokenData{}, fail(ErrAccountNotFound, err)
	}

	a.journalInfo(fmt.Sprintf("user %s refreshed the authentication tokens", user.Email))

	return a.issueTokens(ctx, user, meta)
}

// RequestPasswordResetOtp starts the recovery flow. Unlike Login, the
// account-state errors surface as themselves here; there is no password to
// hide behind.
func (a *Auth) RequestPasswordResetOtp(ctx context.Context, email string, asAdmin bool) (models.OtpChallenge, error) {
	a.journalInfo(fmt.Sprintf("user %s requested a password reset", email))

	user, err := a.users.UserByEmail(ctx, email, asAdmin)
	if err != nil {
		return models.OtpChallenge{}, fail(ErrAccountNotFound, err)
	}

	if err := a.validateUser(user); err != nil {
		return models.OtpChallenge{}, err
	}

	return a.issueChallenge(ctx, a.recoverOtps, user, false)
}

// ValidatePasswordResetOtp terminates the recovery flow with the sanitized
// profile; the caller then performs the separate password update.
func (a *Auth) ValidatePasswordResetOtp(ctx context.Context, payload OtpValidation, asAdmin bool) (models.PublicUser, error) {
	data, err := a.consumeChallenge(ctx, a.recoverOtps, payload)
	if err != nil {
		return models.PublicUser{}, err
	}

	user, err := a.users.UserByEmail(ctx, data.Email, asAdmin)
	if err != nil {
		return models.PublicUser{}, fail(ErrAccountNotFound, err)
	}

	a.journalInfo(fmt.Sprintf("user %s validated a password reset otp challenge", data.Email))

	return user.Public(), nil
}

// UpdatePassword rehashes and persists a new password for the user.
func (a *Auth) UpdatePassword(ctx context.Context, userID, plain string) error {
	const op = "auth.UpdatePassword"

	user, err := a.users.UserAnyByID(ctx, userID)
	if err != nil {
		return fail(ErrAccountNotFound, err)
	}

	salt, hash, err := password.Hash(plain)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.users.UpdatePassword(ctx, user.ID, salt, hash); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	a.journalInfo(fmt.Sprintf("user %s updated the account password", user.Email))

	return nil
}

// SendVerificationEmail dispatches the encrypted verification link. It is
// a no-op for verified accounts and never reports failure to the caller:
// mail delivery must not block any other flow.
func (a *Auth) SendVerificationEmail(user models.User, callbackPath, lang string) {
	const op = "auth.SendVerificationEmail"

	if user.Verified {
		return
	}

	token, err := a.codec.Encrypt(cipher.VerificationPayload{
		UserID: user.ID,
		Email:  user.Email,
		Exp:    time.Now().Add(a.verifyEmailTTL).UnixMilli(),
	})
	if err != nil {
		a.log.Error("failed to encrypt verification payload", slog.String("op", op), sl.Err(err))
		return
	}

	verificationURL := fmt.Sprintf("%s%s?token=%s", a.baseURL, callbackPath, token)

	a.notifier.SendTemplateEmail(notify.TemplateEmailVerification, map[string]any{
		"lang":            lang,
		"isFr":            lang == "fr",
		"verificationUrl": verificationURL,
		"expiresIn":       int(a.verifyEmailTTL.Minutes()),
	}, user.Email, user.ID)
}

// ResendVerificationEmail re-dispatches the verification mail for an
// unverified account. It succeeds no matter what: an unknown address must
// be indistinguishable from a known one.
func (a *Auth) ResendVerificationEmail(ctx context.Context, email, callbackPath, lang string) {
	const op = "auth.ResendVerificationEmail"

	user, err := a.users.UserByEmail(ctx, email, false)
	if err != nil {
		a.log.Info("verification email not resent", slog.String("op", op), sl.Err(err))
		return
	}

	a.SendVerificationEmail(user, callbackPath, lang)
}

// VerifyEmail decrypts the token and marks the account verified. Expiry of
// the embedded payload is the codec's contract, not rechecked here. Any
// failure collapses to ErrVerificationFailed; a second call with the same
// valid token is a successful no-op.
func (a *Auth) VerifyEmail(ctx context.Context, token string) error {
	decoded, err := a.codec.Decrypt(token)
	if err != nil {
		return fail(ErrVerificationFailed, err)
	}

	user, err := a.users.UserAnyByID(ctx, decoded.UserID)
	if err != nil {
		return fail(ErrVerificationFailed, err)
	}

	if user.Verified {
		return nil
	}

	if err := a.users.SetVerified(ctx, user.ID); err != nil {
		return fail(ErrVerificationFailed, err)
	}

	a.journalInfo(fmt.Sprintf("user %s verified the account email", user.Email))

	return nil
}

// Logout revokes the tracked session behind the presented access token.
// With tracking disabled there is nothing to revoke and the call succeeds.
func (a *Auth) Logout(ctx context.Context, accessToken string) error {
	claims, err := a.signer.Verify(accessToken)
	if err != nil {
		return fail(ErrRefreshInvalid, err)
	}

	if err := a.tracker.Disable(ctx, claims.Account.ID, accessToken); err != nil {
		return fail(ErrRefreshInvalid, err)
	}

	a.journalInfo(fmt.Sprintf("user %s logged out", claims.Account.ID))

	return nil
}

// PendingChallengeByToken resolves an unconsumed, unexpired challenge by
// its exchange token, used by the send-otp endpoints. purpose selects the
// login or recovery store.
func (a *Auth) PendingChallengeByToken(ctx context.Context, purpose, token string) (models.OtpChallenge, error) {
	store := a.loginOtps
	if purpose == storage.PurposePasswordRecover {
		store = a.recoverOtps
	}

	ch, err := store.ActiveByToken(ctx, token)
	if err != nil {
		return models.OtpChallenge{}, fail(ErrRefreshInvalid, err)
	}

	if ch.Expired(time.Now()) {
		return models.OtpChallenge{}, fail(ErrRefreshInvalid, errors.New("challenge is expired"))
	}

	return ch, nil
}

// OtpTTLMinutes is the advertised challenge lifetime, rendered into the
// otp mail templates.
func (a *Auth) OtpTTLMinutes() int {
	return int(a.otpTTL.Minutes())
}

func (a *Auth) handleLogin(ctx context.Context, creds Credentials, isAdmin bool) (models.User, error) {
	const op = "auth.handleLogin"

	user, err := a.users.UserByEmail(ctx, creds.Email, isAdmin)
	if err != nil {
		a.journalInfo(fmt.Sprintf("account %s was not found", creds.Email))
		return models.User{}, fail(ErrAccountNotFound, err)
	}

	if err := a.validateUser(user); err != nil {
		return models.User{}, err
	}

	if !password.Match(user.PasswordSalt, creds.Password, user.Password) {
		a.journalInfo(fmt.Sprintf("user %s supplied an incorrect password", creds.Email))
		return models.User{}, ErrPasswordMismatch
	}

	a.journalInfo(fmt.Sprintf("user %s authenticated", creds.Email))
	a.log.Info("credentials validated", slog.String("op", op), slog.String("email", creds.Email))

	return user, nil
}

func (a *Auth) validateUser(user models.User) error {
	if !user.Verified {
		a.journalInfo(fmt.Sprintf("account %s is not verified", user.Email))
		return ErrAccountUnverified
	}

	if !user.Active {
		a.journalInfo(fmt.Sprintf("account %s is disabled", user.Email))
		return ErrAccountDisabled
	}

	return nil
}

// issueChallenge returns the still-pending challenge for the user verbatim
// or creates a fresh one. The check-then-create pair is not atomic: two
// concurrent first requests may each create a challenge, and the later one
// wins the reuse lookup afterwards.
func (a *Auth) issueChallenge(ctx context.Context, store ChallengeStore, user models.User, whitelistable bool) (models.OtpChallenge, error) {
	const op = "auth.issueChallenge"

	now := time.Now()

	old, err := store.LastByEmail(ctx, user.Email)
	if err == nil && old.Pending(now) {
		return old, nil
	}
	if err != nil && !errors.Is(err, storage.ErrChallengeNotFound) {
		return models.OtpChallenge{}, fmt.Errorf("%s: %w", op, err)
	}

	otp := random.Number(otpDigits)
	if whitelistable && a.isWhitelisted(user.Email) {
		otp = a.whitelistOtp
	}

	ch := models.OtpChallenge{
		ID:    uuid.NewString(),
		Otp:   otp,
		Token: random.String(exchangeTokenLen),
		Email: user.Email,
		Phone: user.Phone,
		Exp:   now.Add(a.otpTTL),
	}

	if err := store.Create(ctx, &ch); err != nil {
		return models.OtpChallenge{}, fmt.Errorf("%s: %w", op, err)
	}

	a.journalInfo(fmt.Sprintf("user %s obtained an otp challenge", user.Email))

	return ch, nil
}

func (a *Auth) consumeChallenge(ctx context.Context, store ChallengeStore, payload OtpValidation) (models.OtpChallenge, error) {
	const op = "auth.consumeChallenge"

	data, err := store.ByOtpAndToken(ctx, payload.Otp, payload.Token)
	if err != nil {
		return models.OtpChallenge{}, fail(ErrChallengeInvalid, err)
	}

	if data.Expired(time.Now()) {
		a.journalInfo(fmt.Sprintf("user %s supplied an expired otp challenge", data.Email))
		return models.OtpChallenge{}, ErrChallengeExpired
	}

	// Consumption is best-effort: a failed mark never blocks the login.
	if err := store.MarkChecked(ctx, data.ID); err != nil {
		a.log.Warn("failed to mark challenge consumed", slog.String("op", op), sl.Err(err))
	}

	data.Checked = true

	return data, nil
}

func (a *Auth) issueTokens(ctx context.Context, user models.User, meta Metadata) (models.TokenData, error) {
	const op = "auth.issueTokens"

	access, accessExp, err := a.signer.Sign(user.ID, jwt.KindAccess, a.accessTTL)
	if err != nil {
		return models.TokenData{}, fmt.Errorf("%s: %w", op, err)
	}

	refresh, refreshExp, err := a.signer.Sign(user.ID, jwt.KindRefresh, a.refreshTTL)
	if err != nil {
		return models.TokenData{}, fmt.Errorf("%s: %w", op, err)
	}

	data := models.TokenData{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		TokenType:        "Bearer",
		Scope:            "authentication",
	}

	if err := a.tracker.Save(ctx, user.ID, access, refresh, meta.IPAddress, meta.AppType); err != nil {
		return models.TokenData{}, fmt.Errorf("%s: %w", op, err)
	}

	return data, nil
}

func (a *Auth) isWhitelisted(email string) bool {
	for _, e := range a.whitelistEmails {
		if e == email {
			return true
		}
	}
	return false
}

func (a *Auth) journalInfo(message string) {
	a.journal.Save(journalModule, journalAuth, "info", message, nil)
}
