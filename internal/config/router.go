package config

import (
	"errors"
	"fmt"

	"github.com/andrew-solarstorm/go-packages/common"
	"github.com/shopspring/decimal"
)

type RouterConfig struct {
	// DBPath is the BoltDB file holding pools, tokens and cached routes.
	DBPath             string
	PersistenceEnabled bool
	// PoolSeedFile is an optional JSON file of tokens and pools loaded at start.
	PoolSeedFile string

	MinSplits           int
	MaxSplits           int
	DistributionPercent int
	MaxHops             int
	MaxCandidatePaths   int
	ForceCrossProtocol  bool

	CacheEnabled   bool
	CacheTTLBlocks uint64

	NativeUSDPrice       decimal.Decimal
	FallbackGasPriceGwei int

	// Batch overrides; zero keeps the chain default.
	BatchChunkSize       int
	BatchGasLimitPerCall int
	BatchMaxAttempts     int
}

func (c *RouterConfig) Key() string {
	return ROUTER_CONFIG_KEY
}

func (c *RouterConfig) Load() error {
	c.DBPath = common.GetEnvOrDefault("ROUTER_DB_PATH", "./data/swap-router.db")
	c.PersistenceEnabled = common.GetEnvOrDefault("ROUTER_PERSISTENCE_ENABLED", "true") == "true"
	c.PoolSeedFile = common.GetEnvOrDefault("ROUTER_POOL_SEED_FILE", "")

	c.MinSplits = common.GetEnvOrDefaultInt("ROUTER_MIN_SPLITS", 1)
	c.MaxSplits = common.GetEnvOrDefaultInt("ROUTER_MAX_SPLITS", 3)
	c.DistributionPercent = common.GetEnvOrDefaultInt("ROUTER_DISTRIBUTION_PERCENT", 5)
	c.MaxHops = common.GetEnvOrDefaultInt("ROUTER_MAX_HOPS", 3)
	c.MaxCandidatePaths = common.GetEnvOrDefaultInt("ROUTER_MAX_CANDIDATE_PATHS", 12)
	c.ForceCrossProtocol = common.GetEnvOrDefault("ROUTER_FORCE_CROSS_PROTOCOL", "false") == "true"

	c.CacheEnabled = common.GetEnvOrDefault("ROUTER_CACHE_ENABLED", "true") == "true"
	c.CacheTTLBlocks = uint64(common.GetEnvOrDefaultInt("ROUTER_CACHE_TTL_BLOCKS", 20))

	price, err := decimal.NewFromString(common.GetEnvOrDefault("ROUTER_NATIVE_USD_PRICE", "2000"))
	if err != nil {
		return fmt.Errorf("invalid ROUTER_NATIVE_USD_PRICE: %w", err)
	}
	c.NativeUSDPrice = price
	c.FallbackGasPriceGwei = common.GetEnvOrDefaultInt("ROUTER_FALLBACK_GAS_PRICE_GWEI", 20)

	c.BatchChunkSize = common.GetEnvOrDefaultInt("ROUTER_BATCH_CHUNK_SIZE", 0)
	c.BatchGasLimitPerCall = common.GetEnvOrDefaultInt("ROUTER_BATCH_GAS_LIMIT_PER_CALL", 0)
	c.BatchMaxAttempts = common.GetEnvOrDefaultInt("ROUTER_BATCH_MAX_ATTEMPTS", 0)
	return c.Validate()
}

func (c *RouterConfig) Validate() error {
	if c.MaxSplits < 1 || c.MinSplits > c.MaxSplits {
		return errors.New("invalid router config: split bounds")
	}
	if c.DistributionPercent <= 0 || 100%c.DistributionPercent != 0 {
		return errors.New("invalid router config: distribution percent must divide 100")
	}
	if c.MaxHops < 1 {
		return errors.New("invalid router config: max hops must be positive")
	}
	if c.BatchChunkSize < 0 || c.BatchGasLimitPerCall < 0 || c.BatchMaxAttempts < 0 {
		return errors.New("invalid router config: batch overrides must not be negative")
	}
	return nil
}
