package resendemail

import (
	"context"
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
	Email string `json:"email" validate:"required,email"`
}

type Response struct {
	resp.Response
}

// New re-sends the verification mail. The response is 200 whether or not
// the address exists or is already verified, to keep the endpoint useless
// for account enumeration.
func New(ctx context.Context,
	log *slog.Logger,
	authService *auth.Auth,
	callbackPath string,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.resendemail.New"

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

		authService.ResendVerificationEmail(ctx, req.Email, callbackPath, httputil.Lang(r))

		log.Info("Verification email requested")

		render.JSON(w, r, Response{Response: resp.OK()})
	}
}
