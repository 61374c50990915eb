package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mocktalk/realtime/internal/config"
	jwtpkg "github.com/mocktalk/realtime/internal/pkg/jwt"
	"go.uber.org/zap"
)

// configureRuntime installs the token secret and the process time zone used
// for log timestamps and cron bookkeeping.
func configureRuntime(cfg *config.AppConfig, logger *zap.Logger) error {
	if cfg.JWTSecret != "" {
		jwtpkg.SetSecret(cfg.JWTSecret)
	} else {
		logger.Warn("jwt_secret not set, stream and reaction tokens use the development secret")
	}

	if cfg.Timezone == "" {
		return nil
	}
	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}
	time.Local = loc
	return nil
}

// loadLocation accepts an IANA zone name or a fixed offset such as "+08:00".
func loadLocation(name string) (*time.Location, error) {
	if !strings.HasPrefix(name, "+") && !strings.HasPrefix(name, "-") {
		return time.LoadLocation(name)
	}
	t, err := time.Parse("-07:00", name)
	if err != nil {
		return nil, errors.New("offset must look like +08:00")
	}
	_, offset := t.Zone()
	return time.FixedZone("UTC"+name, offset), nil
}
