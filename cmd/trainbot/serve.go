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

	"github.com/ashureev/trainbot/internal/api"
	"github.com/ashureev/trainbot/internal/config"
	"github.com/ashureev/trainbot/internal/dialogue"
	"github.com/ashureev/trainbot/internal/dispatch"
	"github.com/ashureev/trainbot/internal/health"
	"github.com/ashureev/trainbot/internal/identity"
	"github.com/ashureev/trainbot/internal/logging"
	"github.com/ashureev/trainbot/internal/middleware"
	"github.com/ashureev/trainbot/internal/session"
	"github.com/ashureev/trainbot/internal/store"
	"github.com/ashureev/trainbot/internal/transport/telegram"
	"github.com/ashureev/trainbot/internal/transport/webchat"
	"github.com/ashureev/trainbot/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	healthInterval  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func addServe(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat transports, the HTTP API and the health service.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logCloser := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
			defer func() { _ = logCloser.Close() }()

			return serve(cmd.Context(), cfg)
		},
	}
	topLevel.AddCommand(cmd)
}

type drainer interface {
	Shutdown(ctx context.Context) error
}

type socketCloser interface {
	CloseAll()
}

// stopChat drains queued replies before closing the web sockets they are
// addressed to. sockets is nil when web chat is disabled.
func stopChat(ctx context.Context, d drainer, sockets socketCloser) {
	if err := d.Shutdown(ctx); err != nil {
		slog.Warn("Dispatcher did not drain in time", "error", err)
	}
	if sockets != nil {
		sockets.CloseAll()
	}
}

//nolint:gocognit // Startup wiring is intentionally sequential to keep dependency setup explicit.
func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("Starting trainbot",
		"port", cfg.Port,
		"transports", cfg.Transports,
		"store", cfg.Store.Backend,
		"timezone", cfg.Location.String(),
		"dev", cfg.IsDevelopment(),
	)

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("Failed to close record store", "error", closeErr)
		}
	}()

	checker := health.New(st)
	if err := checker.Check(ctx); err != nil {
		return fmt.Errorf("record store health check: %w", err)
	}
	slog.Info("Record store connected", "backend", cfg.Store.Backend)

	sessions := session.NewRegistry(cfg.SessionTTL)
	engine := dialogue.NewEngine(st,
		dialogue.WithLocation(cfg.Location),
		dialogue.WithStoreTimeout(cfg.StoreTimeout),
	)
	dispatcher := dispatch.New(engine, sessions)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	// Setup router.
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))

	api.NewHealthHandler(checker, sessions).RegisterHealth(r)
	api.NewRecordHandler(st, engine.Today, cfg.StoreTimeout).RegisterRoutes(r)

	var conns *webchat.ConnectionManager
	if cfg.HasTransport(config.TransportWeb) {
		conns = webchat.NewConnectionManager()
		chat := webchat.NewHandler(dispatcher, conns, cfg.FrontendURL, cfg.IsDevelopment())
		r.With(identity.Middleware(cfg.IsDevelopment())).Get("/ws/chat", chat.ServeHTTP)
		r.Handle("/*", web.SPAHandler())
		slog.Info("Web chat enabled", "path", "/ws/chat")
	}

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// WebSocket connections are long-lived; no WriteTimeout.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	var sockets socketCloser
	if conns != nil {
		sockets = conns
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		stopChat(shutdownCtx, dispatcher, sockets)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if cfg.HasTransport(config.TransportTelegram) {
		botAPI, err := telegram.Connect(cfg.TelegramToken)
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		bot := telegram.New(botAPI, dispatcher)
		g.Go(func() error { return bot.Run(gctx) })
	}

	if cfg.GRPCHealthAddr != "" {
		g.Go(func() error { return checker.Serve(gctx, cfg.GRPCHealthAddr) })
	}
	g.Go(func() error {
		checker.Watch(gctx, healthInterval)
		return nil
	})

	err = g.Wait()
	slog.Info("Shutting down gracefully...")
	if err != nil {
		return err
	}
	slog.Info("Server stopped successfully")
	return nil
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.FrontendURL == "" || cfg.IsDevelopment() {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
