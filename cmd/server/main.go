package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rohits-web03/esigned/internal/api"
	"github.com/rohits-web03/esigned/internal/api/handlers"
	"github.com/rohits-web03/esigned/internal/api/services"
	"github.com/rohits-web03/esigned/internal/config"
	"github.com/rohits-web03/esigned/internal/logging"
	"github.com/rohits-web03/esigned/internal/password"
	"github.com/rohits-web03/esigned/internal/ratelimit"
	"github.com/rohits-web03/esigned/internal/repositories"
	"golang.org/x/sync/errgroup"
)

// @title eSigned API
// @version 1.0
// @description Document upload and e-signature backend.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.Environment)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting eSigned", slog.String("config", cfg.String()))

	db, err := repositories.ConnectDatabase(cfg.DB_URL, logger)
	if err != nil {
		return err
	}

	files, err := newFileStore(cfg)
	if err != nil {
		return err
	}

	hasher, err := password.New(cfg.PasswordHasher)
	if err != nil {
		return err
	}

	var limiter *ratelimit.AttemptLimiter
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, activation attempts are not limited until it recovers", logging.Err(err))
		}
		limiter = ratelimit.NewAttemptLimiter(rdb, logger, "", cfg.ActivationMaxAttempts, cfg.ActivationAttemptWindow)
	}

	mailer := services.NewSMTPMailer(cfg.SMTP, logger)
	dispatcher := services.NewDispatcher(mailer, cfg.SMTP.Workers, cfg.SMTP.QueueSize, cfg.SMTP.SendTimeout, logger)

	accounts := services.NewAccountService(services.AccountDeps{
		Users:   repositories.NewUserRepository(db),
		Hasher:  hasher,
		Tokens:  services.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL),
		Mailer:  mailer,
		Queue:   dispatcher,
		Limiter: limiter,
		Admin:   cfg.Admin,
		Logger:  logger,
	})
	documents := services.NewDocumentService(repositories.NewDocumentRepository(db), files, logger)

	if _, err := accounts.BootstrapAdmin(ctx); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	router := api.SetupRouter(api.Deps{
		Config:     cfg,
		Logger:     logger,
		Handler:    handlers.New(accounts, documents, logger, cfg.MaxUploadBytes),
		Auth:       accounts,
		Authorizer: accounts,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
		// Timeouts prevent resource exhaustion from slow clients
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("listening", slog.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on port %s: %w", cfg.Port, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newFileStore(cfg *config.Config) (repositories.FileStore, error) {
	if cfg.StorageDriver == "r2" {
		return repositories.NewR2Store(cfg.R2)
	}
	return repositories.NewLocalStore(cfg.StorageRoot)
}
