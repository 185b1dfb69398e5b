package auth

import (
	"fmt"
	"time"
)

type Config struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	RedisURL string        `mapstructure:"redis_url"`
	Leeway   time.Duration `mapstructure:"leeway"`
}

func (c *Config) Validate() error {
	if len(c.Secret) < 32 {
		return fmt.Errorf("secret must be at least 32 bytes")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("redis_url is required")
	}
	return nil
}
