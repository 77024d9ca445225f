package login

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"event_auth/internal/auth"
	"event_auth/internal/lib/api/httputil"
	resp "event_auth/internal/lib/api/response"
	sl "event_auth/internal/lib/logger"
	"event_auth/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Email string `json:"email" validate:"required,email"`
	Pass  string `json:"password" validate:"required"`
}

type Response struct {
	resp.Response
	Tokens *models.TokenData `json:"tokens,omitempty"`
}

func New(ctx context.Context,
	log *slog.Logger,
	authService *auth.Auth,
	asAdmin bool,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.login.New"

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

		result, err := authService.Login(ctx,
			auth.Credentials{Email: req.Email, Password: req.Pass},
			auth.Metadata{IPAddress: httputil.ClientIP(r), AppType: httputil.AppType(r)},
			auth.Options{AsAPI: true, AsAdmin: asAdmin},
		)
		if err != nil {
			var authErr *auth.Error
			if errors.As(err, &authErr) {
				w.WriteHeader(resp.HTTPStatus(authErr.Code))
				render.JSON(w, r, resp.ErrorWithCode(authErr.Code, authErr.Clean))

				return
			}

			log.Error("failed to login user", sl.Err(err))

			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("User logged in successfully")

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Tokens:   result.Tokens,
		})
	}
}
