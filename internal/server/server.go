// Package server is the composition root: it wires the database,
// services, handlers, background schedulers and all route definitions,
// and owns startup and graceful shutdown.
package server

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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m3uprocessor/m3u-processor/internal/apperror"
	"github.com/m3uprocessor/m3u-processor/internal/auth"
	"github.com/m3uprocessor/m3u-processor/internal/config"
	"github.com/m3uprocessor/m3u-processor/internal/fetch"
	"github.com/m3uprocessor/m3u-processor/internal/handler"
	"github.com/m3uprocessor/m3u-processor/internal/middleware"
	"github.com/m3uprocessor/m3u-processor/internal/model"
	sqliteRepo "github.com/m3uprocessor/m3u-processor/internal/repository/sqlite"
	"github.com/m3uprocessor/m3u-processor/internal/scheduler"
	"github.com/m3uprocessor/m3u-processor/internal/service"
)

// Server holds the router and every long-lived resource it owns: the
// database connection and the two background schedulers. All of them
// are started in Start and torn down during graceful shutdown.
type Server struct {
	router *chi.Mux
	cfg    config.Config
	logger *slog.Logger

	db      *sqliteRepo.DB
	refresh *scheduler.Refresh
	checker *scheduler.Availability
}

// New assembles the full dependency chain: database, auth primitives,
// services, handlers and schedulers. Each layer only receives the
// interfaces it needs; handlers never touch the database and services
// never touch HTTP.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring token service: %w", err)
	}
	passwords := auth.NewPasswordService()
	github := auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)

	fetcher := fetch.New(cfg.FetchTimeout, cfg.MaxFetchSize)

	playlistSvc := service.NewPlaylistService(db, fetcher, logger)
	userSvc := service.NewUserService(db, db, passwords, tokens, logger)
	adminSvc := service.NewAdminService(db, db, db, db, logger)

	s := &Server{
		router:  chi.NewRouter(),
		cfg:     cfg,
		logger:  logger,
		db:      db,
		refresh: scheduler.NewRefresh(db, playlistSvc, cfg.RefreshTick, logger),
		checker: scheduler.NewAvailability(db, playlistSvc, cfg.CheckTick, cfg.CheckMaxAge, logger),
	}

	if err := s.seedAdmin(context.Background(), passwords); err != nil {
		db.Close()
		return nil, fmt.Errorf("seeding admin account: %w", err)
	}

	s.setupRoutes(playlistSvc, userSvc, adminSvc, tokens, github)
	return s, nil
}

// seedAdmin creates the bootstrap administrator on first boot. It is a
// no-op when admin_password is unset or the account already exists.
func (s *Server) seedAdmin(ctx context.Context, passwords *auth.PasswordService) error {
	if s.cfg.AdminPassword == "" {
		s.logger.Warn("admin_password not set, skipping admin bootstrap")
		return nil
	}

	_, err := s.db.GetUserByEmail(ctx, s.cfg.AdminEmail)
	if err == nil {
		return nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return err
	}

	hash, err := passwords.Hash(s.cfg.AdminPassword)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	admin := &model.User{
		Email:        s.cfg.AdminEmail,
		Username:     "admin",
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		Active:       true,
		Approved:     true,
		ApprovedAt:   &now,
	}
	if err := s.db.CreateUser(ctx, admin); err != nil {
		return err
	}
	s.logger.Info("bootstrap admin created", slog.String("email", s.cfg.AdminEmail))
	return nil
}

func (s *Server) setupRoutes(
	playlistSvc *service.PlaylistService,
	userSvc *service.UserService,
	adminSvc *service.AdminService,
	tokens *auth.TokenService,
	github *auth.GitHubProvider,
) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	playlistHandler := handler.NewPlaylistHandler(playlistSvc, userSvc, s.cfg.BaseURL, s.logger)
	myHandler := handler.NewMyHandler(playlistSvc, s.cfg.BaseURL, s.logger)
	authHandler := handler.NewAuthHandler(userSvc, github, s.cfg.FrontendURL, s.logger)
	adminHandler := handler.NewAdminHandler(adminSvc, s.logger)

	// Raw playlist downloads live outside /api so the token URL stays
	// short enough to paste into a player.
	s.router.Get("/raw/{token}", playlistHandler.HandleRaw)

	s.router.Handle("/metrics", promhttp.Handler())

	// OAuth endpoints are browser redirects, not JSON API calls.
	s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
	s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", playlistHandler.HandleHealth)

		r.Post("/process", playlistHandler.HandleProcess)
		r.Post("/fetch-m3u", playlistHandler.HandleFetch)
		// Generate works anonymously; a logged-in approved user becomes
		// the playlist owner.
		r.With(auth.OptionalAuth(tokens)).Post("/generate", playlistHandler.HandleGenerate)

		r.Get("/playlist/{token}", playlistHandler.HandleInfo)
		r.Post("/playlist/{token}/check", playlistHandler.HandleCheck)
		r.Post("/playlist/{token}/refresh", playlistHandler.HandleRefresh)
		r.Get("/board", playlistHandler.HandleBoard)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/logout", authHandler.HandleLogout)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAuth(tokens))
				r.Get("/me", authHandler.HandleMe)
				r.Put("/me", authHandler.HandleUpdateMe)
			})
		})

		r.Route("/my", func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/playlists", myHandler.HandleList)
			r.Put("/playlists/{token}", myHandler.HandleUpdate)
			r.Delete("/playlists/{token}", myHandler.HandleDelete)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/stats", adminHandler.HandleStats)
			r.Get("/users", adminHandler.HandleListUsers)
			r.Put("/users/{userID}", adminHandler.HandleUpdateUser)
			r.Post("/users/{userID}/approve", adminHandler.HandleApprove)
			r.Post("/users/{userID}/reject", adminHandler.HandleReject)
			r.Delete("/users/{userID}", adminHandler.HandleDeleteUser)
			r.Get("/playlists", adminHandler.HandleListPlaylists)
			r.Delete("/playlists/{token}", adminHandler.HandleDeletePlaylist)
			r.Get("/settings", adminHandler.HandleGetSettings)
			r.Put("/settings", adminHandler.HandleUpdateSettings)
		})
	})
}

// Start runs the HTTP server and the background schedulers, blocking
// until a shutdown signal or a server error. Shutdown order: stop
// accepting connections, drain in-flight requests, stop the
// schedulers, close the database.
func (s *Server) Start() error {
	defer s.db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.refresh.Start(ctx)
	s.checker.Start(ctx)
	defer s.refresh.Stop()
	defer s.checker.Stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("base_url", s.cfg.BaseURL),
			slog.String("database", s.cfg.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
