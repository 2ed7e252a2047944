// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the "wiring" layer: it connects the store, services,
// handlers and middleware, and decides which permission each route needs.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → sqlite.DB → services → handlers → routes
//
// All dependencies are assembled in New; nothing below this package
// constructs its own collaborators.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/quoteboard/internal/auth"
	"github.com/sakif/quoteboard/internal/config"
	"github.com/sakif/quoteboard/internal/handler"
	"github.com/sakif/quoteboard/internal/metrics"
	"github.com/sakif/quoteboard/internal/middleware"
	"github.com/sakif/quoteboard/internal/modlog"
	"github.com/sakif/quoteboard/internal/permission"
	sqliteRepo "github.com/sakif/quoteboard/internal/repository/sqlite"
	"github.com/sakif/quoteboard/internal/service"
	"github.com/sakif/quoteboard/internal/view"
)

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the database connection and closes it on shutdown.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB

	accounts *service.AuthService
	votes    *service.VoteService
}

// New opens the database and wires every route. It fails if the session
// secret is unusable or the database cannot be opened.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID  → assigns an id used in request logs
//  2. RealIP     → client IP for logs and the rate limiter
//  3. Logger     → request log line and HTTP metrics
//  4. Recoverer  → a panic becomes a 500
//  5. auth Load  → decodes the session cookie once per request
//
// Route permissions are attached with auth.Middleware.Require per group.
func (s *Server) setupRoutes() error {
	cfg := s.config

	// === Core dependencies ===
	tokens, err := auth.NewTokenService(cfg.Session.Secret)
	if err != nil {
		return err
	}
	gate := auth.NewGate(cfg.Session.TTL)
	sessions := auth.NewMiddleware(tokens, gate, s.logger, cfg.Session.SecureCookie)
	passwords := auth.NewPasswordService()

	var github *auth.GitHubProvider
	if cfg.GitHub.Enabled() {
		github = auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.CallbackURL)
	}

	views, err := view.New(s.logger)
	if err != nil {
		return err
	}

	modLog := modlog.New(s.db.ModLog(), s.logger, metrics.ModLogFailuresTotal)

	// === Services ===
	s.accounts = service.NewAuthService(s.db.Users(), passwords, s.logger)
	s.votes = service.NewVoteService(s.db.Quotes(), s.db.Votes(), s.logger)
	quotes := service.NewQuoteService(s.db.Quotes(), s.db.Votes(), s.votes, modLog, s.logger)
	users := service.NewUserService(s.db.Users(), passwords, modLog, s.logger)

	// === Handlers ===
	authH := handler.NewAuthHandler(s.accounts, sessions, github, views, s.logger)
	quoteH := handler.NewQuoteHandler(quotes, views, s.logger)
	modH := handler.NewModerationHandler(quotes, modLog, views, s.logger)
	voteH := handler.NewVoteHandler(s.votes, views, s.logger)
	userH := handler.NewUserHandler(users, views, s.logger)
	apiH := handler.NewAPIHandler(quotes, s.votes, s.logger)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, s.logger)
	require := sessions.Require

	// === Global Middleware ===
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(sessions.Load)

	r.NotFound(handler.NotFound(views, s.logger))

	// === Operational ===
	// Denial and failure counters are for moderators, not the public.
	r.With(require(permission.All(permission.ListUsers))).Handle("/metrics", metrics.Handler())

	var static fs.FS = view.Static()
	if cfg.Web.StaticDir != "" {
		static = os.DirFS(cfg.Web.StaticDir)
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	// === Public pages ===
	r.Get("/", quoteH.HandleList)
	r.Get("/quotes", quoteH.HandleList)
	r.Get("/quotes/{sort}", quoteH.HandleList)
	r.Get("/quote/{id}", quoteH.HandleShow)

	r.Get("/login", authH.HandleLoginForm)
	r.With(limiter.Limit).Post("/login", authH.HandleLogin)
	r.Post("/logout", authH.HandleLogout)
	r.Get("/register", authH.HandleRegisterForm)
	r.With(limiter.Limit).Post("/register", authH.HandleRegister)

	if github != nil {
		r.Get("/auth/github/login", authH.HandleGitHubLogin)
		r.Get("/auth/github/callback", authH.HandleGitHubCallback)
	}

	// === Any logged-in user ===
	r.Group(func(r chi.Router) {
		r.Use(require(permission.LoggedIn()))
		r.Get("/account/password", authH.HandleAccount)
		r.Post("/account/password", authH.HandleChangePassword)
		r.Post("/account/delete", authH.HandleDeleteAccount)
		// Ownership is checked by the service.
		r.Post("/quote/{id}/delete", quoteH.HandleDelete)
	})

	// === Quotes ===
	r.Group(func(r chi.Router) {
		r.Use(require(permission.All(permission.PostQuotes)))
		r.Get("/quote/new", quoteH.HandleNewForm)
		r.Post("/quote/new", quoteH.HandleCreate)
	})
	r.Group(func(r chi.Router) {
		r.Use(require(permission.All(permission.EditQuotes)))
		r.Get("/quote/{id}/edit", quoteH.HandleEditForm)
		r.Post("/quote/{id}/edit", quoteH.HandleUpdate)
	})
	r.Group(func(r chi.Router) {
		r.Use(require(permission.All(permission.ApproveQuotes)))
		r.Post("/quote/{id}/approve", modH.HandleApprove)
		r.Post("/quote/{id}/unapprove", modH.HandleUnapprove)
		r.Get("/modq", modH.HandleQueue)
		r.Get("/modlog", modH.HandleModLog)
	})

	// === Votes ===
	r.Group(func(r chi.Router) {
		r.Use(require(permission.All(permission.CanVote)))
		r.Use(limiter.Limit)
		r.Post("/upvote/{id}", voteH.HandleUpvote)
		r.Post("/unvote/{id}", voteH.HandleUnvote)
	})

	// === Users ===
	r.With(require(permission.All(permission.ListUsers))).Get("/users", userH.HandleList)
	r.With(require(permission.All(permission.SetFlags))).Post("/user/{id}/flags", userH.HandleSetFlags)
	r.Group(func(r chi.Router) {
		r.Use(require(permission.All(permission.EditUsers)))
		r.Get("/user/{id}/edit", userH.HandleEditForm)
		r.Post("/user/{id}/edit", userH.HandleEdit)
		r.Post("/user/{id}/delete", userH.HandleDelete)
	})

	// === JSON API ===
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.MarkProgrammatic)

		r.Get("/quotes", apiH.HandleListQuotes)
		r.Get("/quotes/{id}", apiH.HandleGetQuote)
		r.With(require(permission.All(permission.PostQuotes))).Post("/quotes", apiH.HandleCreateQuote)

		r.Group(func(r chi.Router) {
			r.Use(require(permission.All(permission.CanVote)))
			r.Use(limiter.Limit)
			r.Post("/quotes/{id}/vote", apiH.HandleVote)
			r.Delete("/quotes/{id}/vote", apiH.HandleUnvote)
		})

		r.With(require(permission.All(permission.EditQuotes))).Post("/admin/recount", apiH.HandleRecount)
		r.With(require(permission.LoggedIn())).Get("/me", apiH.HandleMe)
	})

	return nil
}

// Bootstrap prepares the store before the server accepts traffic: it creates
// or promotes the configured administrator and repairs any upvote count left
// stale by an earlier failure.
func (s *Server) Bootstrap(ctx context.Context) error {
	if admin := s.config.Admin; admin.Name != "" {
		if err := s.accounts.EnsureAdmin(ctx, admin.Name, admin.Password); err != nil {
			return err
		}
	}

	fixed, err := s.votes.RepairAll(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("startup vote recount complete", slog.Int64("repaired", fixed))
	return nil
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (server.shutdownTimeout)
//  3. Close the database connection (flushes WAL, releases file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
			slog.String("database", s.config.DB.Path),
			slog.Bool("github", s.config.GitHub.Enabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
