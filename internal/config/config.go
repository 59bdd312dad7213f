package config

import (
	"os"
	"strconv"
)

type Config struct {
	DBHost string
	DBPort string
	DBName string
	DBUser string
	DBPass string

	// DBMaxOpenConns is the maximum number of open connections to the database (default 25).
	DBMaxOpenConns int
	// DBMaxIdleConns is the maximum number of idle connections (default 5).
	DBMaxIdleConns int

	// RadiusAuthPort and RadiusAcctPort are the UDP listen ports for
	// Access-Request and Accounting-Request traffic.
	RadiusAuthPort int
	RadiusAcctPort int

	// CoAEnabled turns on the CoA/Disconnect listener. Dynamic authorization
	// is always NAKed; the listener exists only to answer, so it stays off
	// unless explicitly requested.
	CoAEnabled bool
	CoAPort    int

	// SyslogPort is the UDP port syslogd binds. Devices are configured to
	// ship their logs here by the enforcement sweep.
	SyslogPort int

	// HealthAddr serves /health and /metrics for the daemon ("" disables).
	HealthAddr string

	// RedisAddr is the local-user cache backend. Empty disables caching and
	// every origin decision fetches the user list live.
	RedisAddr         string
	LocalUserCacheTTL int

	// Correlation tuning. The window/interval/ceiling are empirically tuned
	// in production; they are configuration, not constants.
	CorrWindowSeconds  int
	CorrPollIntervalMS int
	CorrMaxPolls       int

	// DeviceRPCTimeoutSeconds bounds every RouterOS API call.
	DeviceRPCTimeoutSeconds int
	// DeviceRPCWorkers sizes the pool that keeps blocking device I/O off
	// the packet handlers.
	DeviceRPCWorkers int

	// SweepCron schedules the radius-client/syslog-action enforcement sweep.
	SweepCron string

	// LogFormat is "text" (default) or "json" for structured logging.
	LogFormat string
}

func Load() Config {
	return Config{
		DBHost: getEnv("DB_HOST", "localhost"),
		DBPort: getEnv("DB_PORT", "5432"),
		DBName: getEnv("DB_NAME", "mikrowizard"),
		DBUser: getEnv("DB_USER", "mikrowizard"),
		DBPass: getEnv("DB_PASS", "mikrowizard"),

		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),

		RadiusAuthPort: getEnvInt("RADIUS_AUTH_PORT", 1812),
		RadiusAcctPort: getEnvInt("RADIUS_ACCT_PORT", 1813),

		CoAEnabled: getEnvBool("COA_ENABLED", false),
		CoAPort:    getEnvInt("COA_PORT", 3799),

		SyslogPort: getEnvInt("SYSLOG_PORT", 5014),

		HealthAddr: getEnv("HEALTH_ADDR", ":9180"),

		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		LocalUserCacheTTL: getEnvInt("LOCAL_USER_CACHE_TTL", 30),

		CorrWindowSeconds:  getEnvInt("CORR_WINDOW_SECONDS", 2),
		CorrPollIntervalMS: getEnvInt("CORR_POLL_INTERVAL_MS", 300),
		CorrMaxPolls:       getEnvInt("CORR_MAX_POLLS", 33),

		DeviceRPCTimeoutSeconds: getEnvInt("DEVICE_RPC_TIMEOUT", 5),
		DeviceRPCWorkers:        getEnvInt("DEVICE_RPC_WORKERS", 8),

		SweepCron: getEnv("SWEEP_CRON", "@every 30m"),

		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
