// Package settings loads process configuration for the knights server.
//
// Values come from, in increasing priority: defaults, the YAML file, the
// environment (a .env file in the working directory is loaded first) and
// finally command-line flags applied by the caller.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Storage backends for sessions.
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageRedis  = "redis"
)

var ErrInvalidSettings = errors.New("invalid settings")

type Settings struct {
	Host           string        `yaml:"host" env:"KNIGHTS_HOST" env-default:"localhost"`
	Port           int           `yaml:"port" env:"KNIGHTS_PORT" env-default:"8080"`
	LogLevel       string        `yaml:"log-level" env:"KNIGHTS_LOG_LEVEL" env-default:"info"`
	LogFormat      string        `yaml:"log-format" env:"KNIGHTS_LOG_FORMAT" env-default:"console"`
	RulesetDir     string        `yaml:"ruleset-dir" env:"KNIGHTS_RULESET_DIR" env-default:"configs"`
	DefaultRuleset string        `yaml:"default-ruleset" env:"KNIGHTS_DEFAULT_RULESET" env-default:"classic"`
	SessionTTL     time.Duration `yaml:"session-ttl" env:"KNIGHTS_SESSION_TTL" env-default:"24h"`
	Storage        Storage       `yaml:"storage"`
	Archive        Archive       `yaml:"archive"`
	Ngrok          Ngrok         `yaml:"ngrok"`
}

type Storage struct {
	Backend     string `yaml:"backend" env:"KNIGHTS_STORAGE" env-default:"memory"`
	SessionsDir string `yaml:"sessions-dir" env:"KNIGHTS_SESSIONS_DIR" env-default:"sessions"`
	Redis       Redis  `yaml:"redis"`
}

type Redis struct {
	Host     string        `yaml:"host" env:"KNIGHTS_REDIS_HOST" env-default:"localhost"`
	Port     string        `yaml:"port" env:"KNIGHTS_REDIS_PORT" env-default:"6379"`
	Password string        `yaml:"password" env:"KNIGHTS_REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"KNIGHTS_REDIS_DB" env-default:"0"`
	Prefix   string        `yaml:"prefix" env:"KNIGHTS_REDIS_PREFIX" env-default:"knights:session:"`
	TTL      time.Duration `yaml:"ttl" env:"KNIGHTS_REDIS_TTL" env-default:"0s"`
}

// Addr returns host:port.
func (r Redis) Addr() string {
	return net.JoinHostPort(r.Host, r.Port)
}

type Archive struct {
	DatabaseURL string `yaml:"database-url" env:"KNIGHTS_ARCHIVE_DSN"`
}

type Ngrok struct {
	Enabled   bool   `yaml:"enabled" env:"NGROK_ENABLED"`
	AuthToken string `yaml:"auth-token" env:"NGROK_AUTHTOKEN"`
	Domain    string `yaml:"domain" env:"NGROK_DOMAIN"`
}

// Load reads settings from path when that file exists and from the
// environment otherwise. A missing .env file is not an error.
func Load(path string) (*Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	s := &Settings{}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, s); err != nil {
				return nil, fmt.Errorf("unable to load config file: %w", err)
			}
			return s, s.Validate()
		}
	}
	if err := cleanenv.ReadEnv(s); err != nil {
		return nil, fmt.Errorf("unable to read environment: %w", err)
	}
	return s, s.Validate()
}

// Validate checks values that cleanenv cannot.
func (s *Settings) Validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidSettings, s.Port)
	}
	switch s.Storage.Backend {
	case StorageMemory, StorageFile, StorageRedis:
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidSettings, s.Storage.Backend)
	}
	switch s.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidSettings, s.LogFormat)
	}
	if s.SessionTTL < 0 {
		return fmt.Errorf("%w: session-ttl must not be negative", ErrInvalidSettings)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (s *Settings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
