package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	// AdminToken enables the admin routes when set.
	AdminToken string        `mapstructure:"admin_token"`

	Rooms   RoomsConfig    `mapstructure:"rooms"`
	Stats   StatsConfig    `mapstructure:"stats"`
	Signal  SignalConfig   `mapstructure:"signal"`
	Redis   RedisConfig    `mapstructure:"redis"`
	Content []ContentEntry `mapstructure:"content"`
}

type RoomsConfig struct {
	MaxClients  int           `mapstructure:"max_clients"`
	GracePeriod time.Duration `mapstructure:"grace_period"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	LobbyTick   time.Duration `mapstructure:"lobby_tick"`
	PageTick    time.Duration `mapstructure:"page_tick"`
	PostTick    time.Duration `mapstructure:"post_tick"`
	CursorRate  float64       `mapstructure:"cursor_rate"`
	CursorBurst int           `mapstructure:"cursor_burst"`
}

type StatsConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	KnownBuckets []string      `mapstructure:"known_buckets"`
}

type SignalConfig struct {
	JoinLimit  int           `mapstructure:"join_limit"`
	JoinWindow time.Duration `mapstructure:"join_window"`
}

// RedisConfig enables the stats sink when URL is set.
type RedisConfig struct {
	URL     string        `mapstructure:"url"`
	Channel string        `mapstructure:"channel"`
	Key     string        `mapstructure:"key"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type ContentEntry struct {
	ID    string `mapstructure:"id"`
	Title string `mapstructure:"title"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "presence-dev-secret")
	v.SetDefault("admin_token", "")

	v.SetDefault("rooms.max_clients", 50)
	v.SetDefault("rooms.grace_period", "5s")
	v.SetDefault("rooms.idle_timeout", "60s")
	v.SetDefault("rooms.lobby_tick", "10s")
	v.SetDefault("rooms.page_tick", "5s")
	v.SetDefault("rooms.post_tick", "30s")
	v.SetDefault("rooms.cursor_rate", 30)
	v.SetDefault("rooms.cursor_burst", 10)

	v.SetDefault("stats.interval", "3s")
	v.SetDefault("stats.known_buckets", []string{"home", "about", "portfolio", "blog", "contact"})

	v.SetDefault("signal.join_limit", 5)
	v.SetDefault("signal.join_window", "10s")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.channel", "presence:stats")
	v.SetDefault("redis.key", "presence:stats:latest")
	v.SetDefault("redis.ttl", "1m")
}

// Load reads config/config.<CONFIG_ENV>.yaml on top of the defaults.
// PRESENCE_* environment variables override both.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("PRESENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("config: port %d out of range", c.Port)
	case c.Rooms.MaxClients <= 0:
		return fmt.Errorf("config: rooms.max_clients must be positive")
	case c.Stats.Interval <= 0:
		return fmt.Errorf("config: stats.interval must be positive")
	case c.Signal.JoinLimit <= 0 || c.Signal.JoinWindow <= 0:
		return fmt.Errorf("config: signal join limit and window must be positive")
	}
	return nil
}
