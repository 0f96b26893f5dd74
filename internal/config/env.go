package config

import (
	"os"
	"strconv"
)

const envPrefix = "VIGIL_"

// applyEnvOverrides lets deployment environments override the settings
// that differ per environment, mainly addresses and credentials, without
// editing the config file.
func applyEnvOverrides(cfg *Config) {
	if v := envString("DATABASE_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := envInt("DATABASE_PORT"); v > 0 {
		cfg.Database.Port = v
	}
	if v := envString("DATABASE_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := envString("DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := envString("DATABASE_NAME"); v != "" {
		cfg.Database.DBName = v
	}
	if v := envString("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := envString("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := envString("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := envInt("SERVER_PORT"); v > 0 {
		cfg.Server.Port = v
	}
	if v := envString("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func envString(key string) string {
	return os.Getenv(envPrefix + key)
}

func envInt(key string) int {
	v := envString(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
