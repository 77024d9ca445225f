package logout

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
)

type Response struct {
	resp.Response
}

// New revokes the session behind the bearer access token. Proof of
// possession is the token itself; there is no request body.
func New(ctx context.Context,
	log *slog.Logger,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logout.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		token := httputil.BearerToken(r)
		if token == "" {
			log.Warn("missing bearer token")

			w.WriteHeader(http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("missing bearer token"))

			return
		}

		if err := authService.Logout(ctx, token); err != nil {
			var authErr *auth.Error
			if errors.As(err, &authErr) {
				w.WriteHeader(resp.HTTPStatus(authErr.Code))
				render.JSON(w, r, resp.ErrorWithCode(authErr.Code, authErr.Clean))

				return
			}

			log.Error("failed to logout", sl.Err(err))

			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("Logout successful")

		render.JSON(w, r, Response{Response: resp.OK()})
	}
}
