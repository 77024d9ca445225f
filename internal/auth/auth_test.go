package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"event_auth/internal/config"
	"event_auth/internal/lib/cipher"
	"event_auth/internal/lib/jwt"
	"event_auth/internal/lib/password"
	"event_auth/internal/models"
	"event_auth/internal/storage"
)

const (
	testEmail    = "user@example.com"
	testPassword = "correct horse battery staple"
)

type fakeUsers struct {
	mu   sync.Mutex
	byID map[string]*models.User
}

func (f *fakeUsers) add(u models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := u
	f.byID[u.ID] = &cp
}

func (f *fakeUsers) UserByEmail(_ context.Context, email string, isAdmin bool) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if strings.EqualFold(u.Email, email) && u.IsAdmin == isAdmin {
			return *u, nil
		}
	}
	return models.User{}, storage.ErrUserNotFound
}

func (f *fakeUsers) UserByID(_ context.Context, id string, isAdmin bool) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok && u.IsAdmin == isAdmin {
		return *u, nil
	}
	return models.User{}, storage.ErrUserNotFound
}

func (f *fakeUsers) UserAnyByID(_ context.Context, id string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		return *u, nil
	}
	return models.User{}, storage.ErrUserNotFound
}

func (f *fakeUsers) SetVerified(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	u.Verified = true
	return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, userID, salt, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	u.PasswordSalt = salt
	u.Password = hash
	return nil
}

type fakeChallenges struct {
	mu    sync.Mutex
	items []*models.OtpChallenge
}

func (f *fakeChallenges) Create(_ context.Context, ch *models.OtpChallenge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *ch
	f.items = append(f.items, &cp)
	return nil
}

func (f *fakeChallenges) LastByEmail(_ context.Context, email string) (models.OtpChallenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.items) - 1; i >= 0; i-- {
		if f.items[i].Email == email {
			return *f.items[i], nil
		}
	}
	return models.OtpChallenge{}, storage.ErrChallengeNotFound
}

func (f *fakeChallenges) ByOtpAndToken(_ context.Context, otp, token string) (models.OtpChallenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.items {
		if ch.Otp == otp && ch.Token == token && !ch.Checked {
			return *ch, nil
		}
	}
	return models.OtpChallenge{}, storage.ErrChallengeNotFound
}

func (f *fakeChallenges) ActiveByToken(_ context.Context, token string) (models.OtpChallenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.items {
		if ch.Token == token && !ch.Checked {
			return *ch, nil
		}
	}
	return models.OtpChallenge{}, storage.ErrChallengeNotFound
}

func (f *fakeChallenges) MarkChecked(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.items {
		if ch.ID == id {
			ch.Checked = true
			return nil
		}
	}
	return storage.ErrChallengeNotFound
}

// expire rewrites the expiry of every stored challenge for the email.
func (f *fakeChallenges) expire(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.items {
		if ch.Email == email {
			ch.Exp = time.Now().Add(-time.Minute)
		}
	}
}

type fakeTracker struct {
	mu   sync.Mutex
	recs map[string]*models.TokenRecord
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{recs: map[string]*models.TokenRecord{}}
}

func (f *fakeTracker) Save(_ context.Context, userID, accessToken, refreshToken, ipAddress, appType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs[userID+"|"+appType] = &models.TokenRecord{
		UserID:       userID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		IPAddress:    ipAddress,
		AppType:      appType,
		Active:       true,
	}
	return nil
}

func (f *fakeTracker) VerifyAccess(_ context.Context, userID, accessToken string) (*models.TokenRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.recs {
		if rec.UserID == userID && rec.Active && rec.AccessToken == accessToken {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, errors.New("token is invalid")
}

func (f *fakeTracker) VerifyRefresh(_ context.Context, userID, refreshToken string) (*models.TokenRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.recs {
		if rec.UserID == userID && rec.Active && rec.RefreshToken == refreshToken {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, errors.New("token is invalid")
}

func (f *fakeTracker) Disable(ctx context.Context, userID, accessToken string) error {
	rec, err := f.VerifyAccess(ctx, userID, accessToken)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs[userID+"|"+rec.AppType].Active = false
	return nil
}

// noopTracker mimics the service with session tracking switched off.
type noopTracker struct{}

func (noopTracker) Save(context.Context, string, string, string, string, string) error {
	return nil
}

func (noopTracker) VerifyAccess(context.Context, string, string) (*models.TokenRecord, error) {
	return nil, nil
}

func (noopTracker) VerifyRefresh(context.Context, string, string) (*models.TokenRecord, error) {
	return nil, nil
}

func (noopTracker) Disable(context.Context, string, string) error {
	return nil
}

type notifyCall struct {
	Template  string
	Payload   map[string]any
	Recipient string
	UserID    string
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (f *fakeNotifier) SendTemplateEmail(template string, payload map[string]any, recipient, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifyCall{template, payload, recipient, userID})
}

func (f *fakeNotifier) last(t *testing.T) notifyCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatalf("no notifications were sent")
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeJournal struct{}

func (fakeJournal) Save(string, string, string, string, map[string]any) {}

type harness struct {
	auth     *Auth
	users    *fakeUsers
	login    *fakeChallenges
	recover  *fakeChallenges
	tracker  SessionTracker
	notifier *fakeNotifier
	signer   *jwt.Signer
	codec    *cipher.Codec
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.App{
			Name:    "event-registration",
			BaseURL: "https://app.example.com",
		},
		Otp: config.Otp{
			TTL:             10 * time.Minute,
			WhitelistEmails: []string{"demo@example.com"},
			WhitelistOtp:    "000000",
		},
		Jwt: config.Jwt{
			Secret:          "unit-test-secret",
			Issuer:          "event-auth-test",
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 24 * time.Hour,
		},
		EmailVerification: config.EmailVerification{
			TTL:       30 * time.Minute,
			CipherKey: "0123456789abcdef0123456789abcdef",
			CipherIV:  "0123456789abcdef",
		},
	}
}

func newHarness(t *testing.T, tracker SessionTracker) *harness {
	t.Helper()

	cfg := testConfig()

	signer, err := jwt.NewSigner(cfg.Jwt.Secret, cfg.Jwt.Issuer)
	if err != nil {
		t.Fatalf("NewSigner error: %v", err)
	}

	codec, err := cipher.New(cfg.EmailVerification.CipherKey, cfg.EmailVerification.CipherIV)
	if err != nil {
		t.Fatalf("cipher.New error: %v", err)
	}

	if tracker == nil {
		tracker = newFakeTracker()
	}

	h := &harness{
		users:    &fakeUsers{byID: map[string]*models.User{}},
		login:    &fakeChallenges{},
		recover:  &fakeChallenges{},
		tracker:  tracker,
		notifier: &fakeNotifier{},
		signer:   signer,
		codec:    codec,
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	h.auth = New(log, h.users, h.login, h.recover, signer, tracker, h.notifier, fakeJournal{}, codec, cfg)

	return h
}

func (h *harness) seedUser(t *testing.T, id, email, plain string, verified, active, admin bool) models.User {
	t.Helper()

	salt, hash, err := password.Hash(plain)
	if err != nil {
		t.Fatalf("password.Hash error: %v", err)
	}

	u := models.User{
		ID:           id,
		Firstname:    "Ada",
		Lastname:     "Lovelace",
		Email:        email,
		Phone:        "+33600000000",
		Password:     hash,
		PasswordSalt: salt,
		Verified:     verified,
		Active:       active,
		IsAdmin:      admin,
		CreatedAt:    time.Now(),
	}
	h.users.add(u)
	return u
}

func TestLogin_ReturnsSanitizedProfile(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.seedUser(t, "u1", testEmail, testPassword, true, true, false)

	res, err := h.auth.Login(context.Background(),
		Credentials{Email: testEmail, Password: testPassword},
		Metadata{IPAddress: "1.2.3.4", AppType: "web"},
		Options{})
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	if res.Tokens != nil {
		t.Fatalf("non-API login must not issue tokens")
	}
	if res.Profile == nil || res.Profile.Email != testEmail {
		t.Fatalf("unexpected profile: %+v", res.Profile)
	}
}

func TestLogin_APIModeIssuesTrackedTokenPair(t *testing.T) {
	t.Parallel()

	tracker := newFakeTracker()
	h := newHarness(t, tracker)
	h.seedUser(t, "u1", testEmail, testPassword, true, true, false)

	res, err := h.auth.Login(context.Background(),
		Credentials{Email: testEmail, Password: testPassword},
		Metadata{IPAddress: "1.2.3.4", AppType: "web"},
		Options{AsAPI: true})
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	tok := res.Tokens
	if tok == nil {
		t.Fatalf("API login returned no tokens")
	}
	if tok.TokenType != "Bearer" || tok.Scope != "authentication" {
		t.Fatalf("unexpected token envelope: %+v", tok)
	}
	if tok.AccessExpiresAt <= time.Now().UnixMilli() {
		t.Fatalf("access expiry is not in the future: %d", tok.AccessExpiresAt)
	}

	claims, err := h.signer.Verify(tok.AccessToken)
	if err != nil {
		t.Fatalf("issued access token does not verify: %v", err)
	}
	if claims.Account.ID != "u1" || claims.Metadata.Type != jwt.KindAccess {
		t.Fatalf("unexpected access claims: %+v", claims)
	}

	if _, err := tracker.VerifyRefresh(context.Background(), "u1", tok.RefreshToken); err != nil {
		t.Fatalf("issued pair was not tracked: %v", err)
	}
}

func TestLogin_FailuresCollapseToInvalidCredentials(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.seedUser(t, "u1", testEmail, testPassword, true, true, false)
	h.seedUser(t, "u2", "pending@example.com", testPassword, false, true, false)
	h.seedUser(t, "u3", "blocked@example.com", testPassword, true, false, false)

	cases := []struct {
		name  string
		creds Credentials
		cause *Error
	}{
		{"unknown email", Credentials{Email: "ghost@example.com", Password: testPassword}, ErrAccountNotFound},
		{"wrong password", Credentials{Email: testEmail, Password: "nope"}, ErrPasswordMismatch},
		{"unverified account", Credentials{Email: "pending@example.com", Password: testPassword}, ErrAccountUnverified},
		{"disabled account", Credentials{Email: "blocked@example.com", Password: testPassword}, ErrAccountDisabled},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := h.auth.Login(context.Background(), tc.creds, Metadata{}, Options{})
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected the generic credential error, got %v", err)
			}
			if !errors.Is(err, tc.cause) {
				t.Fatalf("expected cause %v to stay reachable, got %v", tc.cause, err)
			}
		})
	}
}

func TestLoginWithOtp_IssuesChallenge(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.seedUser(t, "u1", testEmail, testPassword, true, true, false)

	ch, err := h.auth.LoginWithOtp(context.Background(),
		Credentials{Email: testEmail, Password: testPassword}, false)
	if err != nil {
		t.Fatalf("LoginWithOtp error: %v", err)
	}

	if len(ch.Otp) != otpDigits {
		t.Fatalf("otp has %d digits, want %d", len(ch.Otp), otpDigits)
	}
	if len(ch.Token) != exchangeTokenLen {
		t.Fatalf("exchange token has length %d, want %d", len(ch.Token), exchangeTokenLen)
	}
	if ch.Email != testEmail {
		t.Fatalf("challenge bound to %q, want %q", ch.Email, testEmail)
	}
	if !ch.Pending(time.Now()) {
		t.Fatalf("fresh challenge is not pending: %+v", ch)
	}
}

func TestLoginWithOtp_ReissuesPendingChallengeVerbatim(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.seedUser(t, "u1", testEmail, testPassword, true, true, false)

	creds := Credentials{Email: testEmail, Password: testPassword}

	first, err := h.auth.LoginWithOtp(context.Background(), creds, false)
	if err != nil {
		t.Fatalf("LoginWithOtp error: %v", err)
	}
	second, err := h.auth.LoginWithOtp(context.Background(), creds, false)
	if err != nil {
		t.Fatalf("LoginWithOtp error: %v", err)
	}

	if first.Otp != second.Otp || first.Token != second.Token {
		t.Fatalf("pending challenge was not reissued verbatim: %+v vs %+v", first, second)
	}
}

func TestLoginWithOtp_FreshChallengeAfterExpiry(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.seedUser(t, "u1", testEmail, testPassword, true, true, false)

	creds := Credentials{Email: testEmail, Password: testPassword}

	first, err := h.auth.LoginWithOtp(context.Background(), creds, false)
	if err != nil {
		t.Fatalf("LoginWithOtp error: %v", err)
	}

	h.login.expire(testEmail)

	second, err := h.auth.LoginWithOtp(context.Background(), creds, false)
	if err != nil {
		t.Fatalf("LoginWithOtp error: %v", err)
	}

	if first.Token == second.Token {
		t.Fatalf("expired challenge was reissued instead of replaced")
	}
}

func TestLoginWithOtp_FreshChallengeAfterConsumption(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.seedUser(t, "u1", testEmail, testPassword, true, true, false)

	creds := Credentials{Email: testEmail, Password: testPassword}

	first, err := h.auth.LoginWithOtp(context.Background(), creds, false)
	if err != nil {
		t.Fatalf("LoginWithOtp error: %v", err)
	}

	if _, err := h.auth.ValidateLoginOtp(context.Background(),
		OtpValidation{Otp: first.Otp, Token: first.Token}, Metadata{}, Options{}); err != nil {
		t.Fatalf("ValidateLoginOtp error: %v", err)
	}

	second, err := h.auth.LoginWithOtp(context.Background(), creds, false)
	if err != nil {
		t.Fatalf("LoginWithOtp error: %v", err)
	}

	if first.Token == second.Token {
		t.Fatalf("consumed challenge was reissued")
	}
}

func TestLoginWithOtp_WhitelistedEmailGetsFixedOtp(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.seedUser(t, "u1", "demo@example.com", testPassword, true, true, false)

	ch, err := h.auth.LoginWithOtp(context.Background(),
		Credentials{Email: "demo@example.com", Password: testPassword}, false)
	if err != nil {
		t.Fatalf("LoginWithOtp error: %v", err)
	}

	if ch.Otp != "000000" {
		t.Fatalf("whitelisted email got otp %q, want the fixed one", ch.Otp)
	}
}

func TestValidateLoginOtp_RejectsMismatchedPair(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.seedUser(t, "u1", testEmail, testPassword, true, true, false)

	ch, err := h.auth.LoginWithOtp(context.Background(),
		Credentials{Email: testEmail, Password: testPassword}, false)
	if err != nil {
		t.Fatalf("LoginWithOtp error: %v", err)
	}

	_, err = h.auth.ValidateLoginOtp(context.Background(),
		OtpValidation{Otp: ch.Otp, Token: "not-the-exchange-token"}, Metadata{}, Options{})
	if !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected ErrChallengeInvalid, got %v", err)
	}

	_, err = h.auth.ValidateLoginOtp(context.Background(),
		OtpValidation{Otp: "999998", Token: ch.Token}, Metadata{}, Options{})
	if !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected ErrChallengeInvalid, got %v", err)
	}
}

func TestValidateLoginOtp_ExpiredChallenge(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.seedUser(t, "u1", testEmail, testPassword, true, true, false)

	ch, err := h.auth.LoginWithOtp(context.Background(),
		Credentials{Email: testEmail, Password: testPassword}, false)
	if err != nil {
		t.Fatalf("LoginWithOtp error: %v", err)
	}

	h.login.expire(testEmail)

	_, err = h.auth.ValidateLoginOtp(context.Background(),
		OtpValidation{Otp: ch.Otp, Token: ch.Token}, Metadata{}, Options{})
	if !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
}

func TestValidateLoginOtp_SingleUse(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.seedUser(t, "u1", testEmail, testPassword, true, true, false)

	ch, err := h.auth.LoginWithOtp(context.Background(),
		Credentials{Email: testEmail, Password: testPassword}, false)
	if err != nil {
		t.Fatalf("LoginWithOtp error: %v", err)
	}

	payload := OtpValidation{Otp: ch.Otp, Token: ch.Token}

	res, err := h.auth.ValidateLoginOtp(context.Background(), payload, Metadata{}, Options{})
	if err != nil {
		t.Fatalf("ValidateLoginOtp error: %v", err)
	}
	if res.Profile == nil || res.Profile.Email != testEmail {
		t.Fatalf("unexpected profile: %+v", res.Profile)
	}

	_, err = h.auth.ValidateLoginOtp(context.Background(), payload, Metadata{}, Options{})
	if !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected a consumed challenge to be rejected, got %v", err)
	}
}

func TestRefreshToken_IssuesNewPair(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.seedUser(t, "u1", testEmail, testPassword, true, true, false)

	ctx := context.Background()
	meta := Metadata{IPAddress: "1.2.3.4", AppType: "web"}

	res, err := h.auth.Login(ctx,
		Credentials{Email: testEmail, Password: testPassword}, meta, Options{AsAPI: true})
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	fresh, err := h.auth.RefreshToken(ctx, res.Tokens.RefreshToken, meta, false)
	if err != nil {
		t.Fatalf("RefreshToken error: %v", err)
	}

	claims, err := h.signer.Verify(fresh.AccessToken)
	if err != nil {
		t.Fatalf("refreshed access token does not verify: %v", err)
	}
	if claims.Account.ID != "u1" {
		t.Fatalf("refreshed pair belongs to %q, want u1", claims.Account.ID)
	}
}

func TestRefreshToken_RejectsAccessKind(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.seedUser(t, "u1", testEmail, testPassword, true, true, false)

	ctx := context.Background()

	res, err := h.auth.Login(ctx,
		Credentials{Email: testEmail, Password: testPassword},
		Metadata{AppType: "web"}, Options{AsAPI: true})
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	_, err = h.auth.RefreshToken(ctx, res.Tokens.AccessToken, Metadata{}, false)
	if !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected an access token to be rejected, got %v", err)
	}
}

func TestRefreshToken_RejectsGarbage(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)

	_, err := h.auth.RefreshToken(context.Background(), "not-a-jwt", Metadata{}, false)
	if !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid, got %v", err)
	}
}

func TestRefreshToken_UntrackedPairRejected(t *testing.T) {
	t.Parallel()

	h := newHarness(t, newFakeTracker())
	h.seedUser(t, "u1", testEmail, testPassword, true, true, false)

	// Signed with the right secret but never saved by a login.
	refresh, _, err := h.signer.Sign("u1", jwt.KindRefresh, time.Hour)
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}

	_, err = h.auth.RefreshToken(context.Background(), refresh, Metadata{}, false)
	if !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected an untracked refresh token to be rejected, got %v", err)
	}
}

func TestRefreshToken_TrackingDisabledTrustsSignature(t *testing.T) {
	t.Parallel()

	h := newHarness(t, noopTracker{})
	h.seedUser(t, "u1", testEmail, testPassword, true, true, false)

	refresh, _, err := h.signer.Sign("u1", jwt.KindRefresh, time.Hour)
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}

	if _, err := h.auth.RefreshToken(context.Background(), refresh, Metadata{}, false); err != nil {
		t.Fatalf("RefreshToken error with tracking disabled: %v", err)
	}
}

func TestRequestPasswordResetOtp_StateErrorsSurface(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.seedUser(t, "u2", "pending@example.com", testPassword, false, true, false)

	_, err := h.auth.RequestPasswordResetOtp(context.Background(), "ghost@example.com", false)
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("recovery errors must not collapse to the login error")
	}

	_, err = h.auth.RequestPasswordResetOtp(context.Background(), "pending@example.com", false)
	if !errors.Is(err, ErrAccountUnverified) {
		t.Fatalf("expected ErrAccountUnverified, got %v", err)
	}
}

func TestRequestPasswordResetOtp_IgnoresWhitelist(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.seedUser(t, "u1", "demo@example.com", testPassword, true, true, false)

	ch, err := h.auth.RequestPasswordResetOtp(context.Background(), "demo@example.com", false)
	if err != nil {
		t.Fatalf("RequestPasswordResetOtp error: %v", err)
	}

	if ch.Otp == "000000" {
		t.Fatalf("recovery otp must never be the whitelist code")
	}
}

func TestValidatePasswordResetOtp_PurposeScoped(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.seedUser(t, "u1", testEmail, testPassword, true, true, false)

	loginCh, err := h.auth.LoginWithOtp(context.Background(),
		Credentials{Email: testEmail, Password: testPassword}, false)
	if err != nil {
		t.Fatalf("LoginWithOtp error: %v", err)
	}

	// A login challenge must not open the recovery flow.
	_, err = h.auth.ValidatePasswordResetOtp(context.Background(),
		OtpValidation{Otp: loginCh.Otp, Token: loginCh.Token}, false)
	if !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected ErrChallengeInvalid across purposes, got %v", err)
	}

	recCh, err := h.auth.RequestPasswordResetOtp(context.Background(), testEmail, false)
	if err != nil {
		t.Fatalf("RequestPasswordResetOtp error: %v", err)
	}

	profile, err := h.auth.ValidatePasswordResetOtp(context.Background(),
		OtpValidation{Otp: recCh.Otp, Token: recCh.Token}, false)
	if err != nil {
		t.Fatalf("ValidatePasswordResetOtp error: %v", err)
	}
	if profile.Email != testEmail {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestUpdatePassword(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.seedUser(t, "u1", testEmail, testPassword, true, true, false)

	ctx := context.Background()
	const newPassword = "a brand-new secret"

	if err := h.auth.UpdatePassword(ctx, "u1", newPassword); err != nil {
		t.Fatalf("UpdatePassword error: %v", err)
	}

	if _, err := h.auth.Login(ctx,
		Credentials{Email: testEmail, Password: testPassword}, Metadata{}, Options{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}

	if _, err := h.auth.Login(ctx,
		Credentials{Email: testEmail, Password: newPassword}, Metadata{}, Options{}); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}

	if err := h.auth.UpdatePassword(ctx, "ghost", newPassword); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound for unknown user, got %v", err)
	}
}

// verificationTokenFrom digs the encrypted token out of the notified
// verification url.
func verificationTokenFrom(t *testing.T, call notifyCall) string {
	t.Helper()

	raw, ok := call.Payload["verificationUrl"].(string)
	if !ok {
		t.Fatalf("notification payload has no verificationUrl: %+v", call.Payload)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("verificationUrl does not parse: %v", err)
	}

	token := u.Query().Get("token")
	if token == "" {
		t.Fatalf("verificationUrl carries no token: %s", raw)
	}
	return token
}

func TestVerifyEmail_EndToEnd(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	user := h.seedUser(t, "u1", testEmail, testPassword, false, true, false)

	h.auth.SendVerificationEmail(user, "/user/auth/verify-email", "fr")

	call := h.notifier.last(t)
	if call.Recipient != testEmail || call.UserID != "u1" {
		t.Fatalf("notification addressed to %q/%q", call.Recipient, call.UserID)
	}

	token := verificationTokenFrom(t, call)

	ctx := context.Background()

	if err := h.auth.VerifyEmail(ctx, token); err != nil {
		t.Fatalf("VerifyEmail error: %v", err)
	}

	verified, err := h.users.UserAnyByID(ctx, "u1")
	if err != nil {
		t.Fatalf("lookup error: %v", err)
	}
	if !verified.Verified {
		t.Fatalf("account was not marked verified")
	}

	// A replay of the same valid token is a successful no-op.
	if err := h.auth.VerifyEmail(ctx, token); err != nil {
		t.Fatalf("second VerifyEmail call failed: %v", err)
	}
}

func TestVerifyEmail_Failures(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)

	ctx := context.Background()

	if err := h.auth.VerifyEmail(ctx, "garbage"); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}

	// Well-formed token for a user that does not exist.
	token, err := h.codec.Encrypt(cipher.VerificationPayload{
		UserID: "ghost",
		Email:  "ghost@example.com",
		Exp:    time.Now().Add(time.Hour).UnixMilli(),
	})
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}

	if err := h.auth.VerifyEmail(ctx, token); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed for unknown user, got %v", err)
	}
}

func TestSendVerificationEmail_VerifiedAccountIsNoop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	user := h.seedUser(t, "u1", testEmail, testPassword, true, true, false)

	h.auth.SendVerificationEmail(user, "/user/auth/verify-email", "fr")

	if h.notifier.count() != 0 {
		t.Fatalf("verified account still received a verification mail")
	}
}

func TestResendVerificationEmail_UnknownEmailIsSilent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)

	h.auth.ResendVerificationEmail(context.Background(), "ghost@example.com", "/user/auth/verify-email", "fr")

	if h.notifier.count() != 0 {
		t.Fatalf("unknown address triggered a notification")
	}
}

func TestLogout_RevokesTrackedSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, newFakeTracker())
	h.seedUser(t, "u1", testEmail, testPassword, true, true, false)

	ctx := context.Background()
	meta := Metadata{IPAddress: "1.2.3.4", AppType: "web"}

	res, err := h.auth.Login(ctx,
		Credentials{Email: testEmail, Password: testPassword}, meta, Options{AsAPI: true})
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	if err := h.auth.Logout(ctx, res.Tokens.AccessToken); err != nil {
		t.Fatalf("Logout error: %v", err)
	}

	if _, err := h.auth.RefreshToken(ctx, res.Tokens.RefreshToken, meta, false); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("refresh still works after logout: %v", err)
	}

	if err := h.auth.Logout(ctx, "not-a-jwt"); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid for garbage token, got %v", err)
	}
}

func TestPendingChallengeByToken(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.seedUser(t, "u1", testEmail, testPassword, true, true, false)

	ctx := context.Background()

	ch, err := h.auth.LoginWithOtp(ctx,
		Credentials{Email: testEmail, Password: testPassword}, false)
	if err != nil {
		t.Fatalf("LoginWithOtp error: %v", err)
	}

	got, err := h.auth.PendingChallengeByToken(ctx, storage.PurposeLogin, ch.Token)
	if err != nil {
		t.Fatalf("PendingChallengeByToken error: %v", err)
	}
	if got.Otp != ch.Otp {
		t.Fatalf("resolved a different challenge: %+v", got)
	}

	// The login token is meaningless in the recovery store.
	if _, err := h.auth.PendingChallengeByToken(ctx, storage.PurposePasswordRecover, ch.Token); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid across purposes, got %v", err)
	}

	h.login.expire(testEmail)

	if _, err := h.auth.PendingChallengeByToken(ctx, storage.PurposeLogin, ch.Token); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid for expired challenge, got %v", err)
	}
}

func TestOtpTTLMinutes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)

	if got := h.auth.OtpTTLMinutes(); got != 10 {
		t.Fatalf("OtpTTLMinutes() = %d, want 10", got)
	}
}
