package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mocktalk/realtime/internal/middleware"
	"github.com/mocktalk/realtime/internal/modules/content/reaction"
	"github.com/mocktalk/realtime/internal/modules/realtime/presence"
	"github.com/mocktalk/realtime/internal/modules/realtime/stream"
	"github.com/mocktalk/realtime/internal/pkg/response"
)

const apiPrefix = "/api/v2"

func (a *App) registerRoutes(checkOrigin func(r *http.Request) bool) {
	r := a.router
	authMW := middleware.Auth()
	optionalAuthMW := middleware.OptionalAuth()

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	api := r.Group(apiPrefix)
	api.GET("/health", a.health)
	api.GET("/realtime/jobs", authMW, func(c *gin.Context) {
		response.OK(c, a.sched.List())
	})

	rt := api.Group("/realtime")
	stream.NewHandler(stream.Options{
		Boards:        a.boards,
		Users:         a.users,
		StreamTimeout: a.cfg.Realtime.StreamTimeout(),
		CheckOrigin:   checkOrigin,
		Logger:        a.logger,
	}).RegisterRoutes(rt, authMW, optionalAuthMW)

	presenceLimit := middleware.RateLimit(a.rc.Raw(), middleware.RateLimitOptions{
		Prefix: "realtime:presence",
		Max:    int64(a.cfg.Realtime.PresenceRateLimit),
		Window: time.Second,
	}, a.logger)
	presence.NewHandler(a.tracker).RegisterRoutes(rt, authMW, presenceLimit)

	reaction.NewHandler(
		reaction.NewService(a.db),
		reaction.NewLocator(a.db),
		a.boards,
		a.logger,
	).RegisterRoutes(api, authMW, optionalAuthMW)
}

func (a *App) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	dbState := "ok"
	if sqlDB, err := a.db.DB(); err != nil {
		dbState = err.Error()
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbState = err.Error()
	}
	if dbState != "ok" {
		status = http.StatusServiceUnavailable
	}

	redisState := "disabled"
	if a.rc != nil {
		redisState = "ok"
		if err := a.rc.Ping(ctx); err != nil {
			redisState = err.Error()
		}
	}

	var presenceState interface{}
	if n, err := a.tracker.Users(ctx); err != nil {
		presenceState = err.Error()
	} else {
		presenceState = n
	}

	c.JSON(status, gin.H{
		"status":   http.StatusText(status),
		"database": dbState,
		"redis":    redisState,
		"uptime":   time.Since(a.startedAt).Round(time.Second).String(),
		"boards":   a.boards.Stats(),
		"users":    a.users.Stats(),
		"presence": presenceState,
	})
}
