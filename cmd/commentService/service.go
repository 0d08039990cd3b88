package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CommentThreads/internal/config"
	"CommentThreads/internal/events"
	"CommentThreads/internal/feed"
	"CommentThreads/internal/gateway"
	"CommentThreads/internal/http-server/handlers"
	"CommentThreads/internal/http-server/middleware/auth"
	"CommentThreads/internal/http-server/middleware/logger"
	"CommentThreads/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.MustLoad()

	var out io.Writer = os.Stdout
	if cfg.LogsFile != "" {
		file := logger.MustNewLocalLogger(cfg.LogsFile)
		defer file.Close()
		out = file
	}
	log := setupLogger(cfg.Env, out)
	log.Info("starting comment service", "env", cfg.Env, "storage", cfg.Storage.Driver, "broker", cfg.Events.Broker)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Storage, log)
	if err != nil {
		log.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	publisher, err := events.Open(cfg.Events)
	if err != nil {
		log.Error("failed to open event broker", "error", err)
		os.Exit(1)
	}
	gwCfg := gateway.Config{
		WriteTimeout:  cfg.Gateway.WriteTimeout,
		DefaultAuthor: cfg.Gateway.DefaultAuthor,
	}
	if publisher != nil {
		defer publisher.Close()
		gwCfg.Publisher = publisher
	}

	notices := handlers.NewNoticeHub(log)
	gwCfg.Notifier = notices
	gw := gateway.New(store, gateway.IdentityFunc(auth.FromContext), log, gwCfg)

	if cfg.Auth.JWTSecret == "" {
		log.Warn("auth.jwt_secret is empty, every request is anonymous and replies are refused")
	}

	router := newRouter(log, store, gw, notices, auth.NewVerifier(cfg.Auth.JWTSecret), cfg.HTTPServer.AllowedOrigins)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("server is starting", "address", cfg.HTTPServer.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server is interrupted", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("stopping server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop server", "error", err)
	}

	// dispatched writes outlive their requests
	gw.Wait()
	log.Info("server stopped")
}

func newRouter(log *slog.Logger, store feed.Feed, gw *gateway.Gateway, notices *handlers.NoticeHub, verifier *auth.Verifier, allowedOrigins []string) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(logger.New(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)
	router.Use(auth.New(log, verifier))

	router.Route("/posts/{postID}/comments", func(r chi.Router) {
		r.Get("/", handlers.GetComments(log, store))
		r.Post("/", handlers.CreateComment(log, gw, auth.FromContext))
		r.Get("/live", handlers.LiveComments(log, store, notices, auth.FromContext, allowedOrigins))
		r.Delete("/{commentID}", handlers.DeleteComment(log, gw, auth.FromContext))
	})

	return router
}

func setupLogger(env string, out io.Writer) *slog.Logger {
	switch env {
	case config.EnvProd:
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
