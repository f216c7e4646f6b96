// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"simcomps-service/internal/config"
	"simcomps-service/internal/db"
	"simcomps-service/internal/domain/user"
	authHandler "simcomps-service/internal/handlers/auth"
	userHandler "simcomps-service/internal/handlers/user"
	wsHandler "simcomps-service/internal/handlers/websocket"
	"simcomps-service/internal/middleware"
	xerrors "simcomps-service/internal/pkg/errors"
	"simcomps-service/internal/pkg/presence"
	"simcomps-service/internal/pkg/session"
	"simcomps-service/internal/repository/postgres"
	authUsecase "simcomps-service/internal/service/auth"
	userUsecase "simcomps-service/internal/service/user"
	ws "simcomps-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Server owns every stateful component. Everything is constructed here
// once and handed down by reference; nothing hangs off package globals.
type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger

	pool     *pgxpool.Pool
	redis    *redis.Client
	sessions *session.Store
	registry *presence.Registry
	hub      *ws.Hub

	httpSrv *http.Server
	hubStop context.CancelFunc
}

func NewServer(cfg config.AppConfig, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	return &Server{
		cfg:    cfg,
		engine: gin.New(),
		logger: logger,
	}
}

// Start wires the components together and serves HTTP until Shutdown.
func (s *Server) Start() error {
	ctx := context.Background()

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	s.pool = pool

	userRepo := postgres.NewUserRepository(pool)
	if err := userRepo.EnsureSchema(ctx); err != nil {
		return err
	}

	// ----- Redis (optional, login rate limiting only) -----
	var redisClient *redis.Client
	if s.cfg.RedisAddr != "" {
		redisClient, err = db.NewRedisClient(db.RedisConfig{
			Addr:     s.cfg.RedisAddr,
			Password: s.cfg.RedisPass,
			PoolSize: 10,
		})
		if err != nil {
			return err
		}
		s.redis = redisClient
	} else {
		s.logger.Warn("REDIS_ADDR not set, login rate limiting disabled")
	}

	// ----- Session store & presence registry -----
	s.sessions = session.NewStore(s.cfg.SessionTTL, s.cfg.RememberTTL, s.logger)
	s.sessions.StartSweeper(s.cfg.SweepInterval)

	s.registry = presence.NewRegistry(s.sessions, s.logger)

	limiter := session.NewRateLimiter(redisClient)

	// ----- WebSocket hub -----
	s.hub = ws.NewHub(s.registry, s.logger)
	hubCtx, hubStop := context.WithCancel(context.Background())
	s.hubStop = hubStop
	go s.hub.Run(hubCtx)

	// ----- Services -----
	authService := authUsecase.NewAuthService(userRepo, s.sessions, s.registry, limiter, s.logger)
	userService := userUsecase.NewUserService(userRepo, s.sessions, s.registry, s.logger)

	// ----- Bootstrap admin -----
	if err := s.ensureAdmin(ctx, userRepo); err != nil {
		s.logger.Error("failed to ensure admin account", zap.Error(err))
		// Don't fail startup, just log the error
	}

	// ----- Handlers & middleware -----
	cookie := middleware.CookieConfig{Name: s.cfg.CookieName, Secure: s.cfg.CookieSecure}
	authMiddleware := middleware.NewAuthMiddleware(s.sessions, s.registry, userRepo, cookie, s.logger)

	handlers := &Handlers{
		AuthHandler:    authHandler.NewAuthHandler(authService, cookie, s.logger),
		UserHandler:    userHandler.NewUserHandler(userService, s.logger),
		WSHandler:      wsHandler.NewWebSocketHandler(s.hub, s.logger),
		AuthMiddleware: authMiddleware,
	}

	s.engine.Use(
		middleware.RecoveryMiddleware(s.logger),
		middleware.LoggingMiddleware(s.logger),
		authMiddleware.Mount(),
	)
	SetupRouter(s.engine, handlers)

	// ----- Start HTTP -----
	s.httpSrv = &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.engine,
	}

	s.logger.Info("server listening", zap.String("addr", s.cfg.HTTPAddr))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP listener, the websocket hub and the session
// sweeper, then releases the connection pools. Session state is
// memory-only, so there is nothing to persist on the way out.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}

	if s.hubStop != nil {
		s.hubStop()
	}
	if s.sessions != nil {
		s.sessions.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}

	s.logger.Info("server stopped")
	return firstErr
}

// ensureAdmin creates the bootstrap administrator when it does not exist.
// Skipped entirely unless ADMIN_PASSWORD is set; a default admin password
// is not something this service will invent.
func (s *Server) ensureAdmin(ctx context.Context, users *postgres.UserRepository) error {
	if s.cfg.AdminPassword == "" {
		s.logger.Warn("ADMIN_PASSWORD not set, skipping admin bootstrap")
		return nil
	}
	if len(s.cfg.AdminPassword) < 8 {
		return fmt.Errorf("admin password must be at least 8 characters")
	}

	_, err := users.FindByName(ctx, s.cfg.AdminName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(s.cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &user.User{
		Name:           s.cfg.AdminName,
		PasswordHash:   string(hash),
		PermissionRule: user.RuleAdmin,
	}
	if err := users.Create(ctx, admin); err != nil {
		return err
	}

	s.logger.Info("bootstrap admin created", zap.String("name", admin.Name))
	return nil
}
