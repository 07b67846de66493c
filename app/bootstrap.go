// Package app wires configuration, storage, and the HTTP surface into one
// runtime. Both entry points (the serverless function and the standalone
// server) call Build and only differ in how they serve the returned handler.
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"auth-service/internal/auth"
	"auth-service/internal/config"
	"auth-service/internal/db"
	"auth-service/internal/mail"
	"auth-service/internal/maintenance"
	"auth-service/internal/oauth"
	"auth-service/internal/observability"
	"auth-service/internal/password"
	"auth-service/internal/token"
	"auth-service/internal/twofactor"
	"auth-service/internal/verification"
)

const serviceName = "auth-service"

type Options struct {
	LoadDotEnv bool
}

type Runtime struct {
	Config  *config.Config
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	cfg, err := config.Load(options.LoadDotEnv)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger()

	if cfg.ExposeDebugTokens {
		logger.Warn("debug_token_exposure_enabled", map[string]any{"app_env": cfg.AppEnv})
	}

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	keyring, err := token.NewKeyringFromSecrets(cfg.JWTSecret, cfg.JWTPreviousSecrets...)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("build signing keyring: %w", err)
	}
	issuer := token.NewIssuer(keyring, cfg.AccessTokenExpiry, cfg.RefreshTokenExpiry)

	var mailer mail.Sender
	if cfg.EmailEnabled {
		smtp, err := mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.EmailSMTPHost,
			Port:     cfg.EmailSMTPPort,
			Username: cfg.EmailUsername,
			Password: cfg.EmailPassword,
			From:     cfg.EmailFrom,
		})
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("init mail sender: %w", err)
		}
		mailer = smtp
	} else {
		mailer = mail.NewNopSender(logger)
	}

	hasher := auth.NewBcryptHasher()
	authRepo := auth.NewRepository(database)
	authService := auth.NewService(authRepo, issuer, hasher, logger)
	authHandler := auth.NewHandler(authService)

	oauthRepo := oauth.NewRepository(database)
	providers := oauth.Registry{}
	if cfg.GoogleClientID != "" {
		providers.Add(oauth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.AppURL+"/oauth/google/callback"))
	}
	if cfg.GithubClientID != "" {
		providers.Add(oauth.NewGithubProvider(cfg.GithubClientID, cfg.GithubClientSecret, cfg.AppURL+"/oauth/github/callback"))
	}
	resolver := oauth.NewResolver(oauthRepo, authRepo, logger)
	oauthHandler := oauth.NewHandler(providers, resolver, oauthRepo, authRepo, authService, logger, cfg.IsProduction())

	passwordRepo := password.NewRepository(database)
	passwordService := password.NewService(authRepo, passwordRepo, authRepo, hasher, mailer, logger, cfg.AppURL, cfg.ExposeDebugTokens)
	passwordHandler := password.NewHandler(passwordService)

	verificationRepo := verification.NewRepository(database)
	verificationService := verification.NewService(authRepo, verificationRepo, mailer, logger, cfg.AppURL, cfg.ExposeDebugTokens)
	verificationHandler := verification.NewHandler(verificationService)

	twofactorService := twofactor.NewService(authRepo, logger, serviceName)
	twofactorHandler := twofactor.NewHandler(twofactorService)

	cleanupHandler := maintenance.NewHandler(cfg.CronSecret, []maintenance.Sweep{
		{Name: "refresh_tokens", Run: func(ctx context.Context) (int64, error) {
			return authRepo.DeleteStaleRefreshTokens(ctx, cfg.RefreshTokenRetention, cfg.CleanupBatchSize)
		}},
		{Name: "blacklisted_access_tokens", Run: func(ctx context.Context) (int64, error) {
			return authRepo.DeleteExpiredBlacklistedTokens(ctx, cfg.CleanupBatchSize)
		}},
		{Name: "password_reset_tokens", Run: func(ctx context.Context) (int64, error) {
			return passwordRepo.DeleteExpiredResetTokens(ctx, cfg.CleanupBatchSize)
		}},
		{Name: "verification_tokens", Run: func(ctx context.Context) (int64, error) {
			return verificationRepo.DeleteExpiredTokens(ctx, cfg.CleanupBatchSize)
		}},
	}, logger)

	loginLimiter := auth.NewLoginRateLimiter(cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow)

	protected := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(issuer, authRepo, h)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/register", authHandler.Register)
	mux.Handle("POST /auth/login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /auth/refresh", authHandler.Refresh)
	mux.Handle("POST /auth/logout", protected(authHandler.Logout))

	mux.HandleFunc("POST /password/forgot", passwordHandler.Forgot)
	mux.HandleFunc("POST /password/reset", passwordHandler.Reset)
	mux.Handle("POST /password/change", protected(passwordHandler.Change))
	mux.Handle("POST /password/set", protected(passwordHandler.Set))

	mux.Handle("POST /email/verify/request", protected(verificationHandler.Request))
	mux.HandleFunc("POST /email/verify/confirm", verificationHandler.Confirm)
	mux.HandleFunc("POST /email/verify/resend", verificationHandler.Resend)

	mux.HandleFunc("GET /oauth/{provider}/start", oauthHandler.Start)
	mux.HandleFunc("GET /oauth/{provider}/callback", oauthHandler.Callback)
	mux.Handle("POST /oauth/link", protected(oauthHandler.Link))
	mux.Handle("GET /oauth/accounts", protected(oauthHandler.List))
	mux.Handle("DELETE /oauth/{provider}", protected(oauthHandler.Unlink))

	mux.Handle("POST /2fa/setup", protected(twofactorHandler.Setup))
	mux.Handle("POST /2fa/enable", protected(twofactorHandler.Enable))
	mux.Handle("POST /2fa/verify", protected(twofactorHandler.Verify))

	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Cleanup)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Cleanup)

	mux.HandleFunc("GET /health", healthHandler(database))
	mux.Handle("GET /metrics", observability.MetricsHandler())

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Config:  cfg,
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
