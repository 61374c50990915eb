package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	DSN            string                `yaml:"dsn"` // MySQL DSN
	RedisURL       string                `yaml:"redis_url"`
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	Env            string                `yaml:"env"` // "development" | "production"
	LogDirectory   string                `yaml:"log_dir"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	JWTSecret      string                `yaml:"jwt_secret"`
	Timezone       string                `yaml:"timezone"`
	AutoMigrate    bool                  `yaml:"auto_migrate"`
	Realtime       RealtimeConfig        `yaml:"realtime"`

	// baseDir anchors relative paths; it is the config file's directory.
	baseDir string
}

type DatabaseRuntimeConfig struct {
	DSN       string            `yaml:"dsn"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime bool              `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type RedisRuntimeConfig struct {
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       int               `yaml:"db"`
	TLS      bool              `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

type rawAppConfig struct {
	Port           int               `yaml:"port"`
	DSN            string            `yaml:"dsn"`
	DatabaseURL    string            `yaml:"database_url"`
	RedisURL       string            `yaml:"redis_url"`
	Database       rawDatabaseConfig `yaml:"database"`
	Redis          rawRedisConfig    `yaml:"redis"`
	Env            string            `yaml:"env"`
	LogDir         string            `yaml:"log_dir"`
	AllowedOrigins []string          `yaml:"allowed_origins"`
	JWTSecret      string            `yaml:"jwt_secret"`
	Timezone       string            `yaml:"timezone"`
	TZ             string            `yaml:"tz"`
	AutoMigrate    *bool             `yaml:"auto_migrate"`
	Realtime       rawRealtimeConfig `yaml:"realtime"`
}

type rawDatabaseConfig struct {
	DSN       string            `yaml:"dsn"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime *bool             `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type rawRedisConfig struct {
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       *int              `yaml:"db"`
	TLS      *bool             `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}
	if abs, err := filepath.Abs(path); err == nil {
		cfg.baseDir = filepath.Dir(abs)
	}
	return cfg, nil
}

// Parse decodes YAML content on top of the defaults. Unknown keys are errors.
func Parse(content []byte) (*AppConfig, error) {
	cfg := defaultAppConfig()
	raw := rawAppConfig{}
	if len(bytes.TrimSpace(content)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse: %w", err)
		}
	}

	applyRawAppConfig(&cfg, raw)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.Env {
	case envDevelopment:
	case envProduction:
		if c.JWTSecret == "" {
			return errors.New("jwt_secret is required in production")
		}
	default:
		return fmt.Errorf("invalid env %q, expected development or production", c.Env)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", c.Port)
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database.port %d, expected 1-65535", c.Database.Port)
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		return fmt.Errorf("invalid redis.port %d, expected 1-65535", c.Redis.Port)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d, expected >= 0", c.Redis.DB)
	}
	if err := validateDSN(c.DSN); err != nil {
		return err
	}
	return c.Realtime.validate()
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseRuntimeConfig{
			Host:      defaultDBHost,
			Port:      defaultDBPort,
			User:      defaultDBUser,
			Password:  defaultDBPassword,
			Name:      defaultDBName,
			Charset:   defaultDBCharset,
			ParseTime: true,
			Loc:       defaultDBLoc,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Realtime: defaultRealtimeConfig(),
	}
	cfg.Database.fillDefaults()
	cfg.Redis.fillDefaults()
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	cfg.Database = applyRawDatabaseConfig(cfg.Database, raw)
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw)
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.LogDirectory = v
	}
	if raw.AllowedOrigins != nil {
		cfg.AllowedOrigins = cleanOrigins(raw.AllowedOrigins)
	}
	if v := strings.TrimSpace(raw.JWTSecret); v != "" {
		cfg.JWTSecret = v
	}
	if v := strings.TrimSpace(raw.Timezone); v != "" {
		cfg.Timezone = v
	}
	if v := strings.TrimSpace(raw.TZ); v != "" {
		cfg.Timezone = v
	}
	if raw.AutoMigrate != nil {
		cfg.AutoMigrate = *raw.AutoMigrate
	}
	cfg.Realtime = applyRawRealtimeConfig(cfg.Realtime, raw.Realtime)

	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	cfg.Env = canonicalEnv(cfg.Env)
}

func applyRawDatabaseConfig(current DatabaseRuntimeConfig, raw rawAppConfig) DatabaseRuntimeConfig {
	cfg := current

	if v := strings.TrimSpace(raw.Database.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.DatabaseURL); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.Database.Host); v != "" {
		cfg.Host = v
	}
	if raw.Database.Port != 0 {
		cfg.Port = raw.Database.Port
	}
	if v := strings.TrimSpace(raw.Database.User); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(raw.Database.Password); v != "" {
		cfg.Password = v
	}
	if v := strings.TrimSpace(raw.Database.Name); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(raw.Database.Charset); v != "" {
		cfg.Charset = v
	}
	if raw.Database.ParseTime != nil {
		cfg.ParseTime = *raw.Database.ParseTime
	}
	if v := strings.TrimSpace(raw.Database.Loc); v != "" {
		cfg.Loc = v
	}
	if raw.Database.Params != nil {
		cfg.Params = raw.Database.Params
	}

	cfg.fillDefaults()
	return cfg
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawAppConfig) RedisRuntimeConfig {
	cfg := current

	if v := strings.TrimSpace(raw.Redis.URL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.RedisURL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.Redis.Host); v != "" {
		cfg.Host = v
	}
	if raw.Redis.Port != 0 {
		cfg.Port = raw.Redis.Port
	}
	if v := strings.TrimSpace(raw.Redis.Username); v != "" {
		cfg.Username = v
	}
	if v := strings.TrimSpace(raw.Redis.Password); v != "" {
		cfg.Password = v
	}
	if raw.Redis.DB != nil {
		cfg.DB = *raw.Redis.DB
	}
	if raw.Redis.TLS != nil {
		cfg.TLS = *raw.Redis.TLS
	}
	if v := strings.TrimSpace(raw.Redis.Scheme); v != "" {
		cfg.Scheme = v
	}
	if raw.Redis.Params != nil {
		cfg.Params = raw.Redis.Params
	}

	cfg.fillDefaults()
	return cfg
}

func (c *AppConfig) IsDev() bool {
	return c.Env == envDevelopment
}

// LogDir returns the directory for rotated log files; empty means stdout
// only. A relative log_dir is resolved against the config file's directory,
// or the working directory when the config did not come from a file.
func (c *AppConfig) LogDir() string {
	dir := strings.TrimSpace(c.LogDirectory)
	if dir == "" {
		return ""
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	base := c.baseDir
	if base == "" {
		if wd, err := os.Getwd(); err == nil {
			base = wd
		}
	}
	return filepath.Join(base, dir)
}
