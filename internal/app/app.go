package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mocktalk/realtime/internal/config"
	"github.com/mocktalk/realtime/internal/database"
	"github.com/mocktalk/realtime/internal/middleware"
	"github.com/mocktalk/realtime/internal/modules/realtime/gateway"
	"github.com/mocktalk/realtime/internal/modules/realtime/notify"
	"github.com/mocktalk/realtime/internal/modules/realtime/presence"
	pkgcron "github.com/mocktalk/realtime/internal/pkg/cron"
	pkgredis "github.com/mocktalk/realtime/internal/pkg/redis"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds all application dependencies.
type App struct {
	cfg        *config.AppConfig
	router     *gin.Engine
	db         *gorm.DB
	rc         *pkgredis.Client
	logger     *zap.Logger
	cancel     context.CancelFunc
	sched      *pkgcron.Scheduler
	boards     *gateway.BoardBroadcaster
	users      *gateway.NotificationBroadcaster
	tracker    *presence.Tracker
	dispatcher *notify.Dispatcher
	startedAt  time.Time
}

// New initializes the application: config → DB → Redis → realtime → routes.
// Redis is optional; without it the instance serves only its own connections.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := configureRuntime(cfg, logger); err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg, cfg.AutoMigrate)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis unavailable, cross-instance fan-out and ingest disabled", zap.Error(err))
		rc = nil
	}

	return build(logger, cfg, db, rc), nil
}

func build(logger *zap.Logger, cfg *config.AppConfig, db *gorm.DB, rc *pkgredis.Client) *App {
	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	allowOrigin := originMatcher(cfg.AllowedOrigins)
	if cfg.IsDev() {
		allowOrigin = originMatcher(nil)
	}
	router.Use(cors.New(corsMiddlewareConfig(allowOrigin)))

	rt := cfg.Realtime
	var (
		relay      gateway.Relay
		redisRelay *gateway.RedisRelay
	)
	if rc != nil {
		redisRelay = gateway.NewRedisRelay(rc, rt.RelayChannel, logger)
		relay = redisRelay
	}
	boards := gateway.NewBoardBroadcaster(gateway.Options{
		Cap:          rt.BoardConnectionCap,
		SendBuffer:   rt.SendBuffer,
		ReplayBuffer: rt.ReplayBufferSize,
		Logger:       logger,
		Relay:        relay,
	})
	users := gateway.NewNotificationBroadcaster(gateway.Options{
		Cap:          rt.UserConnectionCap,
		SendBuffer:   rt.SendBuffer,
		ReplayBuffer: rt.ReplayBufferSize,
		Logger:       logger,
		Relay:        relay,
	})
	presenceOpts := []presence.Option{
		presence.WithTTL(rt.PresenceTTL()),
		presence.WithMaxSessions(rt.PresenceMaxSessions),
	}
	if rc != nil {
		// heartbeats and unread pushes may land on different instances
		presenceOpts = append(presenceOpts, presence.WithStore(presence.NewRedisStore(rc.Raw(), "")))
	}
	tracker := presence.NewTracker(presenceOpts...)
	dispatcher := notify.NewDispatcher(boards, users, tracker, logger)

	ctx, cancel := context.WithCancel(context.Background())
	if redisRelay != nil {
		redisRelay.Handle(gateway.ScopeBoard, boards.Receive)
		redisRelay.Handle(gateway.ScopeUser, users.Receive)
		go redisRelay.Run(ctx)
		go notify.NewConsumer(rc, rt.IngestChannel, dispatcher, logger).Run(ctx)
	}

	sched := pkgcron.New(pkgcron.WithLogger(logger))
	app := &App{
		cfg:        cfg,
		router:     router,
		db:         db,
		rc:         rc,
		logger:     logger,
		cancel:     cancel,
		sched:      sched,
		boards:     boards,
		users:      users,
		tracker:    tracker,
		dispatcher: dispatcher,
		startedAt:  time.Now(),
	}
	registerCronJobs(sched, app)
	go sched.Start(ctx)

	app.registerRoutes(websocketOriginCheck(allowOrigin))
	return app
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Dispatcher is the in-process entry point for forum state changes.
func (a *App) Dispatcher() *notify.Dispatcher { return a.dispatcher }

// CloseStreams stops background goroutines and ends every open stream, so
// the HTTP server can drain without waiting on long-lived responses.
func (a *App) CloseStreams() {
	a.cancel()
	a.boards.Close()
	a.users.Close()
}

// Close releases Redis and the database. Call it after the HTTP server has
// stopped serving requests.
func (a *App) Close() {
	if err := a.rc.Close(); err != nil {
		a.logger.Warn("redis close failed", zap.Error(err))
	}
	if sqlDB, err := a.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.logger.Warn("database close failed", zap.Error(err))
		}
	}
}

// Shutdown is CloseStreams followed by Close.
func (a *App) Shutdown() {
	a.CloseStreams()
	a.Close()
}
