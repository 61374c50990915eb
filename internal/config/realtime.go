package config

import (
	"fmt"
	"strings"
	"time"
)

// RealtimeConfig tunes the push gateway, presence tracker and relay.
type RealtimeConfig struct {
	UserConnectionCap     int    `yaml:"user_connection_cap"`
	BoardConnectionCap    int    `yaml:"board_connection_cap"` // 0 = unbounded
	SendBuffer            int    `yaml:"send_buffer"`
	HeartbeatSeconds      int    `yaml:"heartbeat_interval_seconds"`
	StreamTimeoutMinutes  int    `yaml:"stream_timeout_minutes"`
	PresenceTTLSeconds    int    `yaml:"presence_ttl_seconds"`
	PresenceMaxSessions   int    `yaml:"presence_max_sessions"`
	PresenceSweepSeconds  int    `yaml:"presence_sweep_interval_seconds"`
	ReplayBufferSize      int    `yaml:"replay_buffer_size"` // 0 disables Last-Event-ID replay
	BacklogRetentionHours int    `yaml:"backlog_retention_hours"`
	RelayChannel          string `yaml:"relay_channel"`
	IngestChannel         string `yaml:"ingest_channel"`
	PresenceRateLimit     int    `yaml:"presence_rate_limit"` // updates per second per user, 0 disables
}

type rawRealtimeConfig struct {
	UserConnectionCap     *int   `yaml:"user_connection_cap"`
	BoardConnectionCap    *int   `yaml:"board_connection_cap"`
	SendBuffer            *int   `yaml:"send_buffer"`
	HeartbeatSeconds      *int   `yaml:"heartbeat_interval_seconds"`
	StreamTimeoutMinutes  *int   `yaml:"stream_timeout_minutes"`
	PresenceTTLSeconds    *int   `yaml:"presence_ttl_seconds"`
	PresenceMaxSessions   *int   `yaml:"presence_max_sessions"`
	PresenceSweepSeconds  *int   `yaml:"presence_sweep_interval_seconds"`
	ReplayBufferSize      *int   `yaml:"replay_buffer_size"`
	BacklogRetentionHours *int   `yaml:"backlog_retention_hours"`
	RelayChannel          string `yaml:"relay_channel"`
	IngestChannel         string `yaml:"ingest_channel"`
	PresenceRateLimit     *int   `yaml:"presence_rate_limit"`
}

func defaultRealtimeConfig() RealtimeConfig {
	return RealtimeConfig{
		UserConnectionCap:     defaultUserConnectionCap,
		SendBuffer:            defaultSendBuffer,
		HeartbeatSeconds:      defaultHeartbeatSeconds,
		StreamTimeoutMinutes:  defaultStreamTimeoutMinutes,
		PresenceTTLSeconds:    defaultPresenceTTLSeconds,
		PresenceMaxSessions:   defaultPresenceMaxSessions,
		PresenceSweepSeconds:  defaultPresenceSweepSeconds,
		BacklogRetentionHours: defaultBacklogRetentionHours,
		RelayChannel:          defaultRelayChannel,
		IngestChannel:         defaultIngestChannel,
		PresenceRateLimit:     defaultPresenceRateLimit,
	}
}

func applyRawRealtimeConfig(cfg RealtimeConfig, raw rawRealtimeConfig) RealtimeConfig {
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setInt(&cfg.UserConnectionCap, raw.UserConnectionCap)
	setInt(&cfg.BoardConnectionCap, raw.BoardConnectionCap)
	setInt(&cfg.SendBuffer, raw.SendBuffer)
	setInt(&cfg.HeartbeatSeconds, raw.HeartbeatSeconds)
	setInt(&cfg.StreamTimeoutMinutes, raw.StreamTimeoutMinutes)
	setInt(&cfg.PresenceTTLSeconds, raw.PresenceTTLSeconds)
	setInt(&cfg.PresenceMaxSessions, raw.PresenceMaxSessions)
	setInt(&cfg.PresenceSweepSeconds, raw.PresenceSweepSeconds)
	setInt(&cfg.ReplayBufferSize, raw.ReplayBufferSize)
	setInt(&cfg.BacklogRetentionHours, raw.BacklogRetentionHours)
	setInt(&cfg.PresenceRateLimit, raw.PresenceRateLimit)
	if v := strings.TrimSpace(raw.RelayChannel); v != "" {
		cfg.RelayChannel = v
	}
	if v := strings.TrimSpace(raw.IngestChannel); v != "" {
		cfg.IngestChannel = v
	}
	return cfg
}

func (c RealtimeConfig) validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"realtime.user_connection_cap", c.UserConnectionCap},
		{"realtime.send_buffer", c.SendBuffer},
		{"realtime.heartbeat_interval_seconds", c.HeartbeatSeconds},
		{"realtime.stream_timeout_minutes", c.StreamTimeoutMinutes},
		{"realtime.presence_ttl_seconds", c.PresenceTTLSeconds},
		{"realtime.presence_max_sessions", c.PresenceMaxSessions},
		{"realtime.presence_sweep_interval_seconds", c.PresenceSweepSeconds},
	}
	for _, p := range positive {
		if p.value < 1 {
			return fmt.Errorf("invalid %s %d, expected >= 1", p.name, p.value)
		}
	}
	if c.BoardConnectionCap < 0 || c.ReplayBufferSize < 0 || c.PresenceRateLimit < 0 || c.BacklogRetentionHours < 0 {
		return fmt.Errorf("realtime caps, replay_buffer_size, backlog_retention_hours and presence_rate_limit must be >= 0")
	}
	return nil
}

func (c RealtimeConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

func (c RealtimeConfig) StreamTimeout() time.Duration {
	return time.Duration(c.StreamTimeoutMinutes) * time.Minute
}

func (c RealtimeConfig) PresenceTTL() time.Duration {
	return time.Duration(c.PresenceTTLSeconds) * time.Second
}

func (c RealtimeConfig) PresenceSweepInterval() time.Duration {
	return time.Duration(c.PresenceSweepSeconds) * time.Second
}

func (c RealtimeConfig) BacklogRetention() time.Duration {
	return time.Duration(c.BacklogRetentionHours) * time.Hour
}
