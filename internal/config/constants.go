package config

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 2334
	defaultEnv        = "development"
	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "mocktalk"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"
	defaultRedisHost  = "localhost"
	defaultRedisPort  = 6379
	defaultRedisDB    = 0

	defaultUserConnectionCap     = 2
	defaultSendBuffer            = 32
	defaultHeartbeatSeconds      = 25
	defaultStreamTimeoutMinutes  = 30
	defaultPresenceTTLSeconds    = 45
	defaultPresenceMaxSessions   = 8
	defaultPresenceSweepSeconds  = 30
	defaultRelayChannel          = "forum:realtime:fanout"
	defaultIngestChannel         = "forum:realtime:ingest"
	defaultPresenceRateLimit     = 10
	defaultBacklogRetentionHours = 1
)
