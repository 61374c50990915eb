package config

import (
	"fmt"
	"net"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DSNValue returns the explicit DSN, or assembles one from the discrete fields.
func (c DatabaseRuntimeConfig) DSNValue() string {
	if v := strings.TrimSpace(c.DSN); v != "" {
		return v
	}

	dsn := mysql.NewConfig()
	dsn.User = c.User
	dsn.Passwd = c.Password
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	dsn.DBName = c.Name
	dsn.ParseTime = c.ParseTime
	if loc, err := time.LoadLocation(c.Loc); err == nil {
		dsn.Loc = loc
	}
	dsn.Params = map[string]string{"charset": c.Charset}
	for k, v := range c.Params {
		dsn.Params[k] = v
	}
	return dsn.FormatDSN()
}

func validateDSN(dsn string) error {
	if _, err := mysql.ParseDSN(dsn); err != nil {
		return fmt.Errorf("invalid database dsn: %w", err)
	}
	return nil
}

func (c RedisRuntimeConfig) URLValue() string {
	if u := withRedisScheme(c.URL); u != "" {
		return u
	}

	host := strings.TrimSpace(c.Host)
	if host == "" {
		host = defaultRedisHost
	}
	port := c.Port
	if port == 0 {
		port = defaultRedisPort
	}
	db := c.DB
	if db < 0 {
		db = defaultRedisDB
	}

	scheme := strings.ToLower(strings.TrimSpace(c.Scheme))
	if scheme != "redis" && scheme != "rediss" {
		scheme = "redis"
		if c.TLS {
			scheme = "rediss"
		}
	}

	u := &neturl.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + strconv.Itoa(db),
	}
	username := strings.TrimSpace(c.Username)
	password := strings.TrimSpace(c.Password)
	if username != "" {
		if password != "" {
			u.User = neturl.UserPassword(username, password)
		} else {
			u.User = neturl.User(username)
		}
	} else if password != "" {
		u.User = neturl.UserPassword("", password)
	}

	if len(c.Params) > 0 {
		query := neturl.Values{}
		for k, v := range c.Params {
			query.Set(k, v)
		}
		u.RawQuery = query.Encode()
	}
	return u.String()
}
