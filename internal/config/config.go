package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/andrew-solarstorm/go-packages/common"
)

type ServerEnv = string

var (
	DevEnv     ServerEnv = "dev"
	StagingEnv ServerEnv = "staging"
	ProdEnv    ServerEnv = "prod"
)

const (
	GENERAL_CONFIG_KEY = "general-config"
	RPC_CONFIG_KEY     = "rpc-config"
	ROUTER_CONFIG_KEY  = "router-config"
)

type GeneralConfig struct {
	HTTPPort string
	HTTPHost string
	Env      string
	LogLevel string
	// RateLimitPerMinute is the per-IP request budget of the public API.
	RateLimitPerMinute int
	RateLimitBurst     int
	// QuoteTimeout bounds one quote request end to end.
	QuoteTimeout time.Duration
}

func (gc *GeneralConfig) Key() string {
	return GENERAL_CONFIG_KEY
}

func (gc *GeneralConfig) Load() error {
	gc.HTTPPort = common.GetEnvOrDefault("HTTP_PORT", "8080")
	gc.HTTPHost = common.GetEnvOrDefault("HTTP_HOST", "localhost")
	gc.Env = common.GetEnvOrDefault("ENV", "dev")
	gc.LogLevel = common.GetEnvOrDefault("LOG_LEVEL", "INFO")
	gc.RateLimitPerMinute = common.GetEnvOrDefaultInt("HTTP_RATE_LIMIT_PER_MINUTE", 600)
	gc.RateLimitBurst = common.GetEnvOrDefaultInt("HTTP_RATE_LIMIT_BURST", 20)

	var err error
	if gc.QuoteTimeout, err = time.ParseDuration(common.GetEnvOrDefault("HTTP_QUOTE_TIMEOUT", "30s")); err != nil {
		return fmt.Errorf("invalid HTTP_QUOTE_TIMEOUT: %w", err)
	}
	return gc.Validate()
}

func (gc *GeneralConfig) Validate() error {
	if gc.HTTPPort == "" || gc.HTTPHost == "" || gc.Env == "" {
		return errors.New("invalid server config")
	}
	if gc.RateLimitPerMinute <= 0 || gc.RateLimitBurst <= 0 {
		return errors.New("invalid server config: rate limit must be positive")
	}
	return nil
}
