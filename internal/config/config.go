package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dkeye/Lobby/internal/app"
)

type StoreConfig struct {
	// Dir is the badger directory; empty keeps membership in memory.
	Dir string `mapstructure:"dir"`
}

type BusConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type PolicyConfig struct {
	ApprovalKey          string `mapstructure:"approval_key"`
	DeclineRemovesMember bool   `mapstructure:"decline_removes_member"`
	Backpressure         string `mapstructure:"backpressure"`
}

type RateConfig struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	LogLevel   string        `mapstructure:"log_level"`
	Secret     string        `mapstructure:"secret"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Store      StoreConfig   `mapstructure:"store"`
	Bus        BusConfig     `mapstructure:"bus"`
	Policy     PolicyConfig  `mapstructure:"policy"`
	Rate       RateConfig    `mapstructure:"rate"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "lobby-dev-secret")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("store.dir", "")
	v.SetDefault("bus.poll_interval", "1s")
	v.SetDefault("policy.approval_key", "recipient")
	v.SetDefault("policy.decline_removes_member", false)
	v.SetDefault("policy.backpressure", "drop")
	v.SetDefault("rate.limit", 20)
	v.SetDefault("rate.interval", "1s")
}

// Load reads config/config.<CONFIG_ENV>.yaml, falling back to defaults.
// LOBBY_* environment variables override both.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	setDefaults(v)
	v.SetEnvPrefix("lobby")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Bool("in_memory_store", cfg.Store.Dir == "").Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer)
	}
	if c.PingPeriod >= c.PongWait {
		return fmt.Errorf("ping_period (%s) must be shorter than pong_wait (%s)", c.PingPeriod, c.PongWait)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	_, err := c.SessionPolicy()
	return err
}

// SessionPolicy converts the policy section into the coordinator's policy.
func (c *Config) SessionPolicy() (app.Policy, error) {
	key, err := app.ParseApprovalKey(c.Policy.ApprovalKey)
	if err != nil {
		return app.Policy{}, err
	}
	bp, err := app.ParseBackpressureAction(c.Policy.Backpressure)
	if err != nil {
		return app.Policy{}, err
	}
	return app.Policy{
		ApprovalKey:          key,
		DeclineRemovesMember: c.Policy.DeclineRemovesMember,
		Backpressure:         bp,
	}, nil
}

func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
