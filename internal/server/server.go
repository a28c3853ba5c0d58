package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linklite/apiserver/config"
	"github.com/linklite/apiserver/internal/auth"
	"github.com/linklite/apiserver/internal/db"
	"github.com/linklite/apiserver/internal/handlers"
	"github.com/linklite/apiserver/internal/logging"
	"github.com/linklite/apiserver/internal/mq"
	"github.com/linklite/apiserver/internal/services"
	"github.com/linklite/apiserver/internal/store"
	"go.uber.org/zap"
)

const (
	// requestTimeout must stay below writeTimeout or the 504 can never be sent.
	requestTimeout = 10 * time.Second
	writeTimeout   = 15 * time.Second
)

// Server wraps the HTTP server and the resources it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	logger     *zap.Logger
}

// Dependencies are the collaborators the HTTP layer is built from.
type Dependencies struct {
	Auth     *services.AuthService
	Users    *services.UserService
	Resolver *services.IdentityResolver
	Limiter  *handlers.RateLimiter
	Logger   *zap.Logger
}

// NewDependencies builds the service graph on top of repo.
// events may be nil when no broker is configured.
func NewDependencies(cfg config.Config, repo services.UserRepository, events *services.AccountEvents, logger *zap.Logger) (Dependencies, error) {
	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return Dependencies{}, err
	}
	hasher := auth.NewPasswordHasher(cfg.Auth.BcryptCost)

	return Dependencies{
		Auth:     services.NewAuthService(repo, hasher, tokens, events, logger),
		Users:    services.NewUserService(repo, events),
		Resolver: services.NewIdentityResolver(repo, tokens),
		Limiter:  handlers.NewRateLimiter(cfg.Auth.RateLimit, cfg.Auth.RateBurst),
		Logger:   logger,
	}, nil
}

// NewRouter mounts every route with the shared middleware stack.
func NewRouter(deps Dependencies) *chi.Mux {
	authn := handlers.NewAuthenticator(deps.Resolver, deps.Logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger(deps.Logger),
		middleware.Recoverer,
		middleware.Timeout(requestTimeout),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, deps.Auth, authn, deps.Limiter, deps.Logger)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, deps.Users, authn, deps.Logger)
	})
	return router
}

// ConnectEvents dials the configured broker. Both return values are nil when
// events are disabled.
func ConnectEvents(ctx context.Context, cfg config.Config, logger *zap.Logger) (*mq.MQ, *services.AccountEvents, error) {
	queue, err := mq.Connect(ctx, cfg.MQ, logger)
	if err != nil {
		if errors.Is(err, mq.ErrDisabled) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	return queue, services.NewAccountEvents(queue, cfg.MQ.Channel, logger), nil
}

// New opens the database and broker and wires the HTTP server.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	queue, events, err := ConnectEvents(ctx, cfg, logger)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	deps, err := NewDependencies(cfg, store.NewUserRepository(dbConn), events, logger)
	if err != nil {
		closeQueue(queue)
		_ = dbConn.Close()
		return nil, err
	}
	router := NewRouter(deps)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
		logger:     logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the broker and database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	closeQueue(s.queue)
	if s.db != nil {
		if cerr := s.db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func closeQueue(queue *mq.MQ) {
	if queue != nil {
		_ = queue.Close()
	}
}
