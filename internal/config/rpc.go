package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/andrew-solarstorm/go-packages/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

type RPCConfig struct {
	RPCUrl  string
	ChainID uint64

	MulticallAddress   ethcommon.Address
	QuoterV2Address    ethcommon.Address
	MixedQuoterAddress ethcommon.Address

	// CallTimeout bounds a single batched eth_call.
	CallTimeout time.Duration
	// RateLimitPerSecond caps outgoing RPC calls; 0 disables the limiter.
	RateLimitPerSecond int
	// MaxConcurrentBatches caps in-flight batched calls.
	MaxConcurrentBatches int
	// HeadRefreshInterval is how often the chain head and gas price are polled.
	HeadRefreshInterval time.Duration
}

func (r *RPCConfig) Key() string {
	return RPC_CONFIG_KEY
}

func (r *RPCConfig) Load() error {
	r.RPCUrl = common.GetEnvOrDefault("RPC_URL", "")
	r.ChainID = uint64(common.GetEnvOrDefaultInt("CHAIN_ID", 1))

	chain := ChainParams(r.ChainID)
	var err error
	if r.MulticallAddress, err = addressFromEnv("MULTICALL_ADDRESS", chain.MulticallAddress); err != nil {
		return err
	}
	if r.QuoterV2Address, err = addressFromEnv("QUOTER_V2_ADDRESS", chain.QuoterV2Address); err != nil {
		return err
	}
	if r.MixedQuoterAddress, err = addressFromEnv("MIXED_QUOTER_ADDRESS", chain.MixedQuoterAddress); err != nil {
		return err
	}

	if r.CallTimeout, err = time.ParseDuration(common.GetEnvOrDefault("RPC_CALL_TIMEOUT", "10s")); err != nil {
		return fmt.Errorf("invalid RPC_CALL_TIMEOUT: %w", err)
	}
	if r.HeadRefreshInterval, err = time.ParseDuration(common.GetEnvOrDefault("RPC_HEAD_REFRESH_INTERVAL", "2s")); err != nil {
		return fmt.Errorf("invalid RPC_HEAD_REFRESH_INTERVAL: %w", err)
	}
	r.RateLimitPerSecond = common.GetEnvOrDefaultInt("RPC_RATE_LIMIT_PER_SECOND", 50)
	r.MaxConcurrentBatches = common.GetEnvOrDefaultInt("RPC_MAX_CONCURRENT_BATCHES", 8)
	return nil
}

func (r *RPCConfig) Validate() error {
	if r.RPCUrl == "" {
		return errors.New("invalid rpc config: RPC_URL is required")
	}
	if r.MulticallAddress == (ethcommon.Address{}) || r.QuoterV2Address == (ethcommon.Address{}) {
		return errors.New("invalid rpc config: multicall and quoter addresses are required")
	}
	if r.MaxConcurrentBatches <= 0 || r.RateLimitPerSecond < 0 {
		return errors.New("invalid rpc config: concurrency and rate limit must be positive")
	}
	return nil
}

func addressFromEnv(key string, def ethcommon.Address) (ethcommon.Address, error) {
	raw := common.GetEnvOrDefault(key, "")
	if raw == "" {
		return def, nil
	}
	if !ethcommon.IsHexAddress(raw) {
		return ethcommon.Address{}, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return ethcommon.HexToAddress(raw), nil
}
