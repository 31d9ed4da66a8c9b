package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string   `mapstructure:"PORT"`
	Env           string   `mapstructure:"ENV"`
	LogLevel      string   `mapstructure:"LOG_LEVEL"`
	AuthMode      string   `mapstructure:"AUTH_MODE"`
	AuthJWTSecret string   `mapstructure:"AUTH_JWT_SECRET"`
	CORSOrigins   []string `mapstructure:"CORS_ORIGINS"`
	MaxBatch      int      `mapstructure:"MAX_BATCH"`
	ChartYLower   float64  `mapstructure:"CHART_Y_LOWER"`
	ChartYUpper   float64  `mapstructure:"CHART_Y_UPPER"`
	ChartDPI      float64  `mapstructure:"CHART_DPI"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("AUTH_MODE", "none")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("MAX_BATCH", 10000)
	v.SetDefault("CHART_Y_LOWER", 50)
	v.SetDefault("CHART_Y_UPPER", 1000)
	v.SetDefault("CHART_DPI", 300)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("AUTH_MODE")
	v.BindEnv("AUTH_JWT_SECRET")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("MAX_BATCH")
	v.BindEnv("CHART_Y_LOWER")
	v.BindEnv("CHART_Y_UPPER")
	v.BindEnv("CHART_DPI")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Token auth
// needs a signing secret, and the chart Y bounds must form a range.
func (c *Config) Validate() error {
	switch c.AuthMode {
	case "none", "token":
	default:
		return fmt.Errorf("AUTH_MODE must be \"none\" or \"token\", got %q", c.AuthMode)
	}
	if c.AuthMode == "token" && c.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET must be set when AUTH_MODE is \"token\"")
	}
	if c.ChartYLower >= c.ChartYUpper {
		return fmt.Errorf("CHART_Y_LOWER (%v) must be below CHART_Y_UPPER (%v)", c.ChartYLower, c.ChartYUpper)
	}
	if c.MaxBatch < 0 {
		return fmt.Errorf("MAX_BATCH must not be negative, got %d", c.MaxBatch)
	}
	return nil
}
