package config

import "strings"

const (
	envDevelopment = "development"
	envProduction  = "production"
)

// envAliases folds the short names deploy scripts tend to use.
var envAliases = map[string]string{
	"dev":         envDevelopment,
	"local":       envDevelopment,
	"development": envDevelopment,
	"prod":        envProduction,
	"production":  envProduction,
}

// canonicalEnv maps raw onto development or production. Unrecognized names
// come back lowercased so validate can report them.
func canonicalEnv(raw string) string {
	env := strings.ToLower(strings.TrimSpace(raw))
	if env == "" {
		return defaultEnv
	}
	if v, ok := envAliases[env]; ok {
		return v
	}
	return env
}

func (c *DatabaseRuntimeConfig) fillDefaults() {
	setDefault(&c.Host, defaultDBHost)
	setDefault(&c.User, defaultDBUser)
	setDefault(&c.Password, defaultDBPassword)
	setDefault(&c.Name, defaultDBName)
	setDefault(&c.Charset, defaultDBCharset)
	setDefault(&c.Loc, defaultDBLoc)
	if c.Port == 0 {
		c.Port = defaultDBPort
	}
	c.Params = cleanParams(c.Params)
}

func (c *RedisRuntimeConfig) fillDefaults() {
	c.URL = withRedisScheme(c.URL)
	c.Scheme = strings.ToLower(c.Scheme)
	if c.URL == "" {
		setDefault(&c.Host, defaultRedisHost)
	}
	if c.Port == 0 {
		c.Port = defaultRedisPort
	}
	if c.Scheme == "" {
		c.Scheme = "redis"
		if c.TLS {
			c.Scheme = "rediss"
		}
	}
	c.Params = cleanParams(c.Params)
}

func setDefault(field *string, value string) {
	if *field = strings.TrimSpace(*field); *field == "" {
		*field = value
	}
}

// withRedisScheme lets redis_url be written as a bare host:port.
func withRedisScheme(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Contains(raw, "://") {
		return raw
	}
	return "redis://" + raw
}

// cleanOrigins lowercases allowed_origins entries, strips a trailing slash
// and drops blanks and repeats while keeping the configured order.
func cleanOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	seen := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		origin = strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
		if origin == "" {
			continue
		}
		if _, dup := seen[origin]; dup {
			continue
		}
		seen[origin] = struct{}{}
		out = append(out, origin)
	}
	return out
}

// cleanParams returns a trimmed copy of DSN/URL query params without empty
// keys or values.
func cleanParams(params map[string]string) map[string]string {
	if params == nil {
		return nil
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}
