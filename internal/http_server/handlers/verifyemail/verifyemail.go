package verifyemail

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
)

type Response struct {
	resp.Response
}

// New handles the verification link from the mail: the encrypted token
// arrives as a query parameter.
func New(ctx context.Context,
	log *slog.Logger,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.verifyemail.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		token := r.URL.Query().Get("token")
		if token == "" {
			log.Warn("missing verification token")

			render.JSON(w, r, resp.Error("missing token"))

			return
		}

		if err := authService.VerifyEmail(ctx, token); err != nil {
			var authErr *auth.Error
			if errors.As(err, &authErr) {
				log.Warn("verification rejected", sl.Err(err))

				w.WriteHeader(resp.HTTPStatus(authErr.Code))
				render.JSON(w, r, resp.ErrorWithCode(authErr.Code, authErr.Clean))

				return
			}

			log.Error("failed to verify email", sl.Err(err))

			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("internal error"))

			return
		}

		log.Info("Email verified successfully")

		render.JSON(w, r, Response{Response: resp.OK()})
	}
}
