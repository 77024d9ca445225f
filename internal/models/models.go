package models

import "time"

type User struct {
	ID           string
	Firstname    string
	Lastname     string
	Email        string
	Phone        string
	Password     string
	PasswordSalt string
	Verified     bool
	Active       bool
	IsAdmin      bool
	CreatedAt    time.Time
}

// PublicUser is a User with the credential fields stripped. Every profile
// returned to a caller goes through User.Public.
type PublicUser struct {
	ID        string    `json:"id"`
	Firstname string    `json:"firstname"`
	Lastname  string    `json:"lastname"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Verified  bool      `json:"verified"`
	Active    bool      `json:"active"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Firstname: u.Firstname,
		Lastname:  u.Lastname,
		Email:     u.Email,
		Phone:     u.Phone,
		Verified:  u.Verified,
		Active:    u.Active,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
	}
}

// OtpChallenge is a single-use, time-boxed step-up secret. The numeric Otp
// and the opaque Token travel separately and must be presented together.
type OtpChallenge struct {
	ID      string    `json:"-"`
	Otp     string    `json:"otp"`
	Token   string    `json:"token"`
	Email   string    `json:"email"`
	Phone   string    `json:"phone"`
	Exp     time.Time `json:"exp"`
	Checked bool      `json:"-"`
}

// Pending reports whether the challenge is still usable: never consumed and
// not past its expiry.
func (c *OtpChallenge) Pending(now time.Time) bool {
	return !c.Checked && now.Before(c.Exp)
}

func (c *OtpChallenge) Expired(now time.Time) bool {
	return !now.Before(c.Exp)
}

// TokenRecord is the single tracked session per (user, app type). A new
// login overwrites it, which silently invalidates the previous pair.
type TokenRecord struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	IPAddress    string
	AppType      string
	Active       bool
}

// TokenData is what an API login returns.
type TokenData struct {
	AccessToken      string `json:"access_token"`
	AccessExpiresAt  int64  `json:"access_expires_at"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresAt int64  `json:"refresh_expires_at"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope"`
}

// Message is the payload pushed to the mail queue. Rendering and transport
// live in the separate mail sender service.
type Message struct {
	Template  string         `json:"template"`
	Email     string         `json:"to"`
	UserID    string         `json:"user_id,omitempty"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}
