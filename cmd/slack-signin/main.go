package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexjbarnes/slack-signin/internal/auth"
	"github.com/alexjbarnes/slack-signin/internal/config"
	"github.com/alexjbarnes/slack-signin/internal/logging"
	"github.com/alexjbarnes/slack-signin/internal/server"
	"github.com/alexjbarnes/slack-signin/internal/session"
	"github.com/alexjbarnes/slack-signin/internal/slack"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	// Handle gen-secret subcommand before config loading.
	if len(os.Args) > 1 && os.Args[1] == "gen-secret" {
		fmt.Println(auth.RandomHex(32))
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	logger.Info("slack-signin starting",
		slog.String("version", Version),
		slog.Bool("verify_state", cfg.VerifyState),
	)

	if !cfg.Credentials().Complete() {
		logger.Warn("slack credentials incomplete; callbacks will fail with config_error")
	}

	variant, err := slack.ParseVariant(cfg.Variant)
	if err != nil {
		return err
	}

	client, err := slack.NewClient(slack.Options{
		Variant:     variant,
		Credentials: cfg.Credentials(),
		BaseURL:     cfg.APIBaseURL,
		Scopes:      cfg.Scopes,
	})
	if err != nil {
		return fmt.Errorf("creating slack client: %w", err)
	}

	logger.Info("slack client ready",
		slog.String("variant", string(client.Variant())),
		slog.String("profile_shape", string(client.Shape())),
	)

	sessions, err := session.NewIssuer(cfg.SessionSecret, !cfg.IsDevelopment())
	if err != nil {
		return fmt.Errorf("creating session issuer: %w", err)
	}

	mux := server.NewMux(server.MuxConfig{
		Coordinator: auth.NewCoordinator(client, cfg.Credentials(), cfg.VerifyState, logger),
		Sessions:    sessions,
		Paths:       auth.Paths{Landing: cfg.LandingPath, Home: cfg.HomePath},
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server",
			slog.String("listen", cfg.ListenAddr),
			slog.String("redirect_uri", cfg.RedirectURI),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	// Shutdown when the context is cancelled by a signal or a failed
	// listener.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
