package recovervalidate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"event_auth/internal/auth"
	resp "event_auth/internal/lib/api/response"
	sl "event_auth/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Otp      string `json:"otp" validate:"required,len=6,numeric"`
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type Response struct {
	resp.Response
}

// New consumes a recovery challenge and, on success, sets the new
// password for the resolved account.
func New(ctx context.Context,
	log *slog.Logger,
	authService *auth.Auth,
	asAdmin bool,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.recovervalidate.New"

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

		user, err := authService.ValidatePasswordResetOtp(ctx,
			auth.OtpValidation{Otp: req.Otp, Token: req.Token},
			asAdmin,
		)
		if err == nil {
			err = authService.UpdatePassword(ctx, user.ID, req.Password)
		}
		if err != nil {
			var authErr *auth.Error
			if errors.As(err, &authErr) {
				w.WriteHeader(resp.HTTPStatus(authErr.Code))
				render.JSON(w, r, resp.ErrorWithCode(authErr.Code, authErr.Clean))

				return
			}

			log.Error("failed to reset password", sl.Err(err))

			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("Password reset completed")

		render.JSON(w, r, Response{Response: resp.OK()})
	}
}
