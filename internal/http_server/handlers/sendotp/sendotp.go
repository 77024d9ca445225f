package sendotp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"event_auth/internal/auth"
	"event_auth/internal/lib/api/httputil"
	resp "event_auth/internal/lib/api/response"
	sl "event_auth/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Token string `json:"token" validate:"required"`
}

type Response struct {
	resp.Response
}

type Notifier interface {
	SendTemplateEmail(template string, payload map[string]any, recipient, userID string)
}

// New dispatches the otp code of a pending challenge by mail. purpose
// selects the login or recovery store, template the mail rendered for it.
// The same handler serves both flows; only the wiring differs.
func New(ctx context.Context,
	log *slog.Logger,
	authService *auth.Auth,
	notifier Notifier,
	purpose string,
	template string,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.sendotp.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validator.New().Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		challenge, err := authService.PendingChallengeByToken(ctx, purpose, req.Token)
		if err != nil {
			var authErr *auth.Error
			if errors.As(err, &authErr) {
				w.WriteHeader(resp.HTTPStatus(authErr.Code))
				render.JSON(w, r, resp.ErrorWithCode(authErr.Code, authErr.Clean))

				return
			}

			log.Error("failed to resolve challenge", sl.Err(err))

			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		lang := httputil.Lang(r)

		notifier.SendTemplateEmail(template, map[string]any{
			"lang":      lang,
			"isFr":      lang == "fr",
			"otpCode":   challenge.Otp,
			"expiresIn": authService.OtpTTLMinutes(),
		}, challenge.Email, "")

		log.Info("Otp mail dispatched", slog.String("purpose", purpose))

		render.JSON(w, r, Response{Response: resp.OK()})
	}
}
