package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mocktalk/realtime/internal/app"
	"github.com/mocktalk/realtime/internal/config"
	"github.com/mocktalk/realtime/internal/pkg/logging"
	"github.com/mocktalk/realtime/internal/pkg/proctitle"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger, _ := zap.NewProduction()
		bootLogger.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := logging.NewZapLogger(logging.Options{Dir: cfg.LogDir(), Debug: cfg.IsDev()})
	if err != nil {
		logger, _ = zap.NewProduction()
		logger.Warn("log pipeline unavailable, fallback to zap production logger", zap.Error(err))
	}
	defer logger.Sync()

	if err := proctitle.Set(proctitle.Default); err != nil {
		logger.Debug("process title not set", zap.Error(err))
	}

	application, err := app.New(logger, cfg)
	if err != nil {
		logger.Fatal("failed to initialize app", zap.Error(err))
	}

	// WriteTimeout stays unset: SSE and WebSocket responses are long-lived.
	srv := &http.Server{
		Addr:              application.Addr(),
		Handler:           application.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	// streams end first so the drain below does not wait on them
	application.CloseStreams()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	application.Close()
	logger.Info("server exited")
}
