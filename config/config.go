package config

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config carries every runtime setting. Remote storage, caching and Auth0 are
// all optional: with none of them configured the server runs single-user
// against the local data directory.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" env-default:":8080"`
	Debug      bool   `env:"DEBUG" env-default:"false"`

	DataDir string `env:"DATA_DIR" env-default:"./data"`

	StorageConnectionString string `env:"STORAGE_CONNECTION_STRING"`
	CardsTable              string `env:"CARDS_TABLE" env-default:"cards"`

	RedisConnectionString string        `env:"REDIS_CONNECTION_STRING"`
	BoardCacheTTL         time.Duration `env:"BOARD_CACHE_TTL" env-default:"15m"`

	DebounceWindow time.Duration `env:"DEBOUNCE_WINDOW" env-default:"500ms"`

	Auth0Domain   string `env:"AUTH0_DOMAIN"`
	Auth0Audience string `env:"AUTH0_AUDIENCE"`
}

// Load reads the configuration from a .env file (if present) and the process
// environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := new(Config)
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RemoteEnabled reports whether board persistence goes to the cloud table.
func (c *Config) RemoteEnabled() bool {
	return c.StorageConnectionString != ""
}

// CacheEnabled reports whether board loads go through Redis.
func (c *Config) CacheEnabled() bool {
	return c.RedisConnectionString != ""
}

// AuthEnabled reports whether requests must carry Auth0-issued tokens.
func (c *Config) AuthEnabled() bool {
	return c.Auth0Domain != "" && c.Auth0Audience != ""
}
