package recoverotp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"event_auth/internal/auth"
	resp "event_auth/internal/lib/api/response"
	sl "event_auth/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Email string `json:"email" validate:"required,email"`
}

type Response struct {
	resp.Response
	Token string    `json:"token"`
	Exp   time.Time `json:"exp"`
}

// New starts the password-recovery flow by issuing (or reissuing) a
// recovery challenge for the account.
func New(ctx context.Context,
	log *slog.Logger,
	authService *auth.Auth,
	asAdmin bool,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.recoverotp.New"

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

		challenge, err := authService.RequestPasswordResetOtp(ctx, req.Email, asAdmin)
		if err != nil {
			var authErr *auth.Error
			if errors.As(err, &authErr) {
				w.WriteHeader(resp.HTTPStatus(authErr.Code))
				render.JSON(w, r, resp.ErrorWithCode(authErr.Code, authErr.Clean))

				return
			}

			log.Error("failed to issue recovery otp", sl.Err(err))

			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("Recovery otp challenge issued")

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Token:    challenge.Token,
			Exp:      challenge.Exp,
		})
	}
}
