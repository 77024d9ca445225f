package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"event_auth/internal/auth"
	"event_auth/internal/config"
	"event_auth/internal/http_server/handlers/login"
	"event_auth/internal/http_server/handlers/loginotp"
	"event_auth/internal/http_server/handlers/logout"
	"event_auth/internal/http_server/handlers/recoverotp"
	"event_auth/internal/http_server/handlers/recovervalidate"
	"event_auth/internal/http_server/handlers/refresh"
	"event_auth/internal/http_server/handlers/resendemail"
	"event_auth/internal/http_server/handlers/sendotp"
	"event_auth/internal/http_server/handlers/validateotp"
	"event_auth/internal/http_server/handlers/verifyemail"
	"event_auth/internal/journal"
	"event_auth/internal/lib/cipher"
	"event_auth/internal/lib/jwt"
	"event_auth/internal/notify"
	"event_auth/internal/rabbitmq"
	"event_auth/internal/storage"
	"event_auth/internal/storage/postgres"
	redisrepo "event_auth/internal/storage/redis"
	"event_auth/internal/token"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

const verifyEmailCallbackPath = "/user/auth/verify-email"

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting auth service", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	db, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	sessions, err := redisrepo.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Error("failed to connect redis", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer sessions.Close()

	msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect rabbitmq", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer msgBroker.Close()

	signer, err := jwt.NewSigner(cfg.Jwt.Secret, cfg.Jwt.Issuer)
	if err != nil {
		log.Error("failed to build token signer", slog.String("err", err.Error()))
		os.Exit(1)
	}

	codec, err := cipher.New(cfg.EmailVerification.CipherKey, cfg.EmailVerification.CipherIV)
	if err != nil {
		log.Error("failed to build verification codec", slog.String("err", err.Error()))
		os.Exit(1)
	}

	notifier := notify.New(log, msgBroker, cfg.App.Name)
	journalService := journal.New(log, db)
	tracker := token.New(log, sessions, cfg.TokenValidationEnabled, cfg.Jwt.RefreshTokenTTL)

	authService := auth.New(
		log,
		db,
		db.Challenges(storage.PurposeLogin),
		db.Challenges(storage.PurposePasswordRecover),
		signer,
		tracker,
		notifier,
		journalService,
		codec,
		cfg,
	)

	router := setupRouter(ctx, log, authService, notifier)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", slog.String("err", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", slog.String("err", err.Error()))
	} else {
		log.Info("Server stopped gracefully")
	}

	log.Info("Main service stopped")
}

func setupRouter(
	ctx context.Context,
	log *slog.Logger,
	authService *auth.Auth,
	notifier *notify.Service,
) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	mountAuthRoutes := func(r chi.Router, asAdmin bool) {
		r.Post("/login", login.New(ctx, log, authService, asAdmin))
		r.Post("/login/otp", loginotp.New(ctx, log, authService, asAdmin))
		r.Post("/login/sendotp",
			sendotp.New(ctx, log, authService, notifier, storage.PurposeLogin, notify.TemplateLoginOtp),
		)
		r.Post("/login/validate_otp", validateotp.New(ctx, log, authService, asAdmin))
		r.Post("/refresh_token", refresh.New(ctx, log, authService, asAdmin))
		r.Post("/logout", logout.New(ctx, log, authService))
		r.Post("/password/recover/request_otp", recoverotp.New(ctx, log, authService, asAdmin))
		r.Post("/password/recover/send_otp",
			sendotp.New(ctx, log, authService, notifier, storage.PurposePasswordRecover, notify.TemplatePasswordResetOtp),
		)
		r.Post("/password/recover/validate_otp", recovervalidate.New(ctx, log, authService, asAdmin))
	}

	r.Route("/user/auth", func(r chi.Router) {
		mountAuthRoutes(r, false)
		r.Post("/resend-verify-email",
			resendemail.New(ctx, log, authService, verifyEmailCallbackPath),
		)
		r.Get("/verify-email", verifyemail.New(ctx, log, authService))
	})

	r.Route("/admin/auth", func(r chi.Router) {
		mountAuthRoutes(r, true)
	})

	return r
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
