package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode            string        `mapstructure:"mode"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	ReadLimit       int64         `mapstructure:"read_limit"`
	PingPeriod      time.Duration `mapstructure:"ping_period"`

	Daily     DailyConfig     `mapstructure:"daily"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type DailyConfig struct {
	APIURL         string        `mapstructure:"api_url"`
	APIKey         string        `mapstructure:"api_key"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	RoomExpiry     time.Duration `mapstructure:"room_expiry"`
	SIPDisplayName string        `mapstructure:"sip_display_name"`
}

type WorkerConfig struct {
	Command   string        `mapstructure:"command"`
	Args      []string      `mapstructure:"args"`
	Dir       string        `mapstructure:"dir"`
	StopGrace time.Duration `mapstructure:"stop_grace"`
}

type RateLimitConfig struct {
	StartRequests int           `mapstructure:"start_requests"`
	Window        time.Duration `mapstructure:"window"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Flags returns the command line flags Load understands.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("dialin", pflag.ContinueOnError)
	fs.String("host", "127.0.0.1", "Host address")
	fs.Int("port", 7860, "Port number")
	fs.String("config-env", "", "Config environment, selects config/config.<env>.yaml")
	return fs
}

// Load reads .env, config/config.<env>.yaml, the environment and flags,
// in increasing precedence. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Overload(); err == nil {
		log.Info().Str("module", "config").Msg("loaded .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if fs != nil {
		if f := fs.Lookup("config-env"); f != nil && f.Changed {
			env = f.Value.String()
		}
	}
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	v.SetDefault("mode", "release")
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", 7860)
	v.SetDefault("log_level", "debug")
	v.SetDefault("shutdown_timeout", "15s")
	v.SetDefault("read_limit", 4096)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("daily.api_url", "https://api.daily.co/v1")
	v.SetDefault("daily.api_key", "")
	v.SetDefault("daily.token_ttl", "1h")
	v.SetDefault("daily.room_expiry", "1h")
	v.SetDefault("daily.sip_display_name", "dialin-user")
	v.SetDefault("worker.command", "python3")
	v.SetDefault("worker.args", []string{"-m", "bot"})
	v.SetDefault("worker.dir", "")
	v.SetDefault("worker.stop_grace", "5s")
	v.SetDefault("rate_limit.start_requests", 0)
	v.SetDefault("rate_limit.window", "1m")

	v.SetEnvPrefix("DIALIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Names the bot deployment already uses.
	_ = v.BindEnv("host", "DIALIN_HOST", "HOST")
	_ = v.BindEnv("port", "DIALIN_PORT", "FAST_API_PORT")
	_ = v.BindEnv("daily.api_url", "DIALIN_DAILY_API_URL", "DAILY_API_URL")
	_ = v.BindEnv("daily.api_key", "DIALIN_DAILY_API_KEY", "DAILY_API_KEY")

	if fs != nil {
		for _, name := range []string{"host", "port"} {
			if f := fs.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(name, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Daily.APIKey == "" {
		log.Warn().Str("module", "config").Msg("DAILY_API_KEY is not set, room creation will fail")
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Str("addr", cfg.Addr()).Str("worker", cfg.Worker.Command).Msg("config ready")
	return &cfg, nil
}
