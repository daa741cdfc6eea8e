// Package config loads runtime configuration for the ATM.
//
// Sources & precedence
//
//  1. Built-in defaults.
//  2. An optional .env file in the working directory.
//  3. Environment variables prefixed with ATM_ (e.g. ATM_BACKEND=sqlite).
//
// Invalid values never abort startup: the default is kept and a message is
// appended to Config.Warnings so the caller can log it once a logger exists.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

const (
	defaultBackend        = BackendJSON
	defaultDataFile       = "users.json"
	defaultSQLitePath     = "ledger.db"
	defaultSessionTimeout = 30 * time.Second
	defaultAdminPassword  = "admin_pass"
	defaultAutosave       = "@every 1m"
	defaultLogLevel       = "info"
	defaultLogFile        = "atm.log"
)

// Config holds runtime settings for the ATM process.
type Config struct {
	Backend        string
	DataFile       string
	SQLitePath     string
	SessionTimeout time.Duration
	AdminPassword  string
	AdminLockout   bool
	Autosave       string
	LogLevel       string
	LogFile        string

	Warnings []string
}

// Load reads .env (if present) and ATM_* environment variables on top of
// the defaults.
func Load() *Config {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ATM")
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	v.SetDefault("backend", defaultBackend)
	v.SetDefault("data_file", defaultDataFile)
	v.SetDefault("sqlite_path", defaultSQLitePath)
	v.SetDefault("session_timeout", defaultSessionTimeout.String())
	v.SetDefault("admin_password", defaultAdminPassword)
	v.SetDefault("admin_lockout", true)
	v.SetDefault("autosave", defaultAutosave)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("log_file", defaultLogFile)

	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		DataFile:      v.GetString("data_file"),
		SQLitePath:    v.GetString("sqlite_path"),
		AdminPassword: v.GetString("admin_password"),
		AdminLockout:  v.GetBool("admin_lockout"),
		Autosave:      strings.TrimSpace(v.GetString("autosave")),
		LogLevel:      strings.ToLower(v.GetString("log_level")),
		LogFile:       v.GetString("log_file"),
	}

	switch b := strings.ToLower(v.GetString("backend")); b {
	case BackendJSON, BackendSQLite:
		cfg.Backend = b
	default:
		cfg.Backend = defaultBackend
		cfg.warnf("unknown ATM_BACKEND %q, using %s", b, defaultBackend)
	}

	raw := v.GetString("session_timeout")
	timeout, err := time.ParseDuration(raw)
	if err != nil || timeout <= 0 {
		timeout = defaultSessionTimeout
		cfg.warnf("invalid ATM_SESSION_TIMEOUT %q, using %s", raw, defaultSessionTimeout)
	}
	cfg.SessionTimeout = timeout

	if cfg.DataFile == "" {
		cfg.DataFile = defaultDataFile
		cfg.warnf("empty ATM_DATA_FILE, using %s", defaultDataFile)
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = defaultSQLitePath
		cfg.warnf("empty ATM_SQLITE_PATH, using %s", defaultSQLitePath)
	}
	if cfg.AdminPassword == "" {
		cfg.AdminPassword = defaultAdminPassword
		cfg.warnf("empty ATM_ADMIN_PASSWORD, using the built-in default")
	}
	if !cfg.AdminLockout {
		cfg.warnf("ATM_ADMIN_LOCKOUT is disabled: admin logins skip the attempt counter")
	}

	return cfg
}

func (c *Config) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}
