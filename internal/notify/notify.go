package notify

import (
	"context"
	"log/slog"
	"time"

	sl "event_auth/internal/lib/logger"
	"event_auth/internal/models"
)

// Template slugs resolved by the external mail sender.
const (
	TemplateLoginOtp          = "mail-authentication-otp"
	TemplatePasswordResetOtp  = "mail-password-reset-otp"
	TemplateEmailVerification = "mail-email-verification"
)

type Publisher interface {
	SendMessage(ctx context.Context, msg models.Message) error
}

// Service publishes templated email notifications to the mail queue.
// Delivery is fire-and-forget; rendering and transport are the mail
// sender's problem.
type Service struct {
	log       *slog.Logger
	publisher Publisher
	appName   string
	timeout   time.Duration
}

func New(log *slog.Logger, publisher Publisher, appName string) *Service {
	return &Service{
		log:       log,
		publisher: publisher,
		appName:   appName,
		timeout:   5 * time.Second,
	}
}

// SendTemplateEmail dispatches asynchronously. Failures are logged and
// discarded; no auth flow ever waits on, or breaks because of, mail.
func (s *Service) SendTemplateEmail(template string, payload map[string]any, recipient, userID string) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["appName"] = s.appName

	msg := models.Message{
		Template:  template,
		Email:     recipient,
		UserID:    userID,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := s.publisher.SendMessage(ctx, msg); err != nil {
			s.log.Error("notify: failed to publish email",
				slog.String("template", template),
				sl.Err(err),
			)
		}
	}()
}
