package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	RabbitMQ struct {
		URL   string `yaml:"url"`
		Queue string `yaml:"queue"`
	} `yaml:"rabbitmq"`
	AnswerKeys struct {
		TTL string `yaml:"ttl"`
	} `yaml:"answer_keys"`
	Payout struct {
		TierRatio         string `yaml:"tier_ratio"`
		PlatformFeeBps    uint16 `yaml:"platform_fee_bps"`
		MaxPlatformFeeBps uint16 `yaml:"max_platform_fee_bps"`
		Treasury          string `yaml:"treasury"`
		RelayInterval     string `yaml:"relay_interval"`
	} `yaml:"payout"`
	Contest struct {
		MaxWinnersCap int `yaml:"max_winners_cap"`
	} `yaml:"contest"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the settings the payout engine refuses to start without.
func (c Config) Validate() error {
	if c.Payout.MaxPlatformFeeBps > 10_000 {
		return fmt.Errorf("payout.max_platform_fee_bps %d exceeds 10000", c.Payout.MaxPlatformFeeBps)
	}
	if c.Payout.PlatformFeeBps > c.Payout.MaxPlatformFeeBps {
		return fmt.Errorf("payout.platform_fee_bps %d exceeds max_platform_fee_bps %d",
			c.Payout.PlatformFeeBps, c.Payout.MaxPlatformFeeBps)
	}
	if c.Contest.MaxWinnersCap < 0 {
		return fmt.Errorf("contest.max_winners_cap must not be negative")
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
