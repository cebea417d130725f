package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"popreveal/internal/config"
	"popreveal/internal/feedback"
	"popreveal/internal/game"
	"popreveal/internal/handlers"
	"popreveal/internal/logging"
)

//go:embed static/*
var embeddedStatic embed.FS

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "popreveal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	catalog, err := loadCatalog(cfg.Themes)
	if err != nil {
		return fmt.Errorf("themes: %w", err)
	}

	var collab feedback.Collaborator = feedback.Static{}
	if cfg.Feedback.Endpoint != "" {
		collab = feedback.NewHTTPCollaborator(cfg.Feedback.Endpoint, cfg.Feedback.APIKey, cfg.Feedback.Timeout)
	}

	store, err := game.NewStore(game.Options{
		Round:           cfg.Round,
		Catalog:         catalog,
		Collaborator:    collab,
		FeedbackTimeout: cfg.Feedback.Timeout,
		Logger:          log,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	_ = mime.AddExtensionType(".js", "application/javascript")
	_ = mime.AddExtensionType(".css", "text/css")
	_ = mime.AddExtensionType(".svg", "image/svg+xml")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Requests(log.Named("http")))
	r.Use(middleware.Recoverer)

	staticFS, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		return err
	}
	r.Mount("/static", http.StripPrefix("/static", http.FileServer(http.FS(staticFS))))

	// The stream and websocket routes stay open for the whole game, so the
	// request timeout is applied per route group inside the handlers.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
		handlers.NewHomeHandler(store, log).RegisterRoutes(r)
	})
	handlers.NewGameHandler(store, log, cfg.Server.BaseURL, cfg.Server.RequestTimeout).RegisterRoutes(r)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("listening", zap.String("addr", server.Addr), zap.String("base_url", cfg.Server.BaseURL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		store.RunSweeper(ctx, cfg.Sessions.SweepInterval, cfg.Sessions.IdleTimeout)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		// Streams never finish on their own; closing the store ends them.
		store.Close()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func loadCatalog(cfg config.Themes) (*game.Catalog, error) {
	if cfg.Dir == "" {
		return game.EmbeddedCatalog(cfg.Default)
	}
	return game.LoadCatalog(os.DirFS(cfg.Dir), cfg.Default)
}
