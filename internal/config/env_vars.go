package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	envVar            = "ENV"
	appNameVar        = "APP_NAME"
	apiBaseURLVar     = "API_BASE_URL"
	logLevelVar       = "LOG_LEVEL"
	tokenStoreVar     = "TOKEN_STORE"
	tokenStorePathVar = "TOKEN_STORE_PATH"
	callbackAddrVar   = "CALLBACK_ADDR"
	otlpEndpointVar   = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

// Token store drivers accepted by TOKEN_STORE.
const (
	TokenStoreFile   = "file"
	TokenStoreSQLite = "sqlite"
	TokenStoreMemory = "memory"
)

// Default API base URLs per environment.
var apiBaseURLs = map[string]string{
	"DEV":  "http://localhost:8000",
	"PROD": "https://api.adstat.app",
}

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetEnv() string {
	env := os.Getenv(envVar)
	if env == "" {
		return "DEV"
	}
	return env
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "adstat")
}

// GetAPIBaseURL returns the backend base URL. API_BASE_URL wins over the
// per-environment default; unknown environments fall back to DEV.
func (e EnvVars) GetAPIBaseURL() string {
	if v := os.Getenv(apiBaseURLVar); v != "" {
		return v
	}
	if v, ok := apiBaseURLs[e.GetEnv()]; ok {
		return v
	}
	return apiBaseURLs["DEV"]
}

func (e EnvVars) GetLogLevel() string {
	if e.GetEnv() == "DEV" {
		return GetEnv(logLevelVar, "debug")
	}
	return GetEnv(logLevelVar, "info")
}

func (EnvVars) GetTokenStore() string {
	return GetEnv(tokenStoreVar, TokenStoreFile)
}

// GetTokenStorePath returns the file backing the token store. The default
// lives under $XDG_CONFIG_HOME/adstat (or ~/.config/adstat).
func (e EnvVars) GetTokenStorePath() string {
	if v := os.Getenv(tokenStorePathVar); v != "" {
		return v
	}
	name := "token.json"
	if e.GetTokenStore() == TokenStoreSQLite {
		name = "adstat.db"
	}
	return filepath.Join(configDir(), name)
}

func (EnvVars) GetCallbackAddr() string {
	return GetEnv(callbackAddrVar, "localhost:3000")
}

func (EnvVars) GetOTLPEndpoint() string {
	return GetEnv(otlpEndpointVar, "")
}

func configDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "adstat")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "adstat")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvInt reads an integer, returning defaultValue when unset or unparsable.
func GetEnvInt(envVar string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return v
}

// GetEnvDuration reads a time.ParseDuration value such as "500ms".
func GetEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return v
}
