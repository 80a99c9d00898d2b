package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/swap-router/internal/aggregator"
	"github.com/hxuan190/swap-router/internal/aggregator/adapters/blockchain"
	"github.com/hxuan190/swap-router/internal/common"
	"github.com/hxuan190/swap-router/internal/config"
	"github.com/hxuan190/swap-router/internal/http"
	"github.com/hxuan190/swap-router/internal/services"
)

// @title Swap Router API
// @version 1.0
// @description Quote service for EVM token swaps across Uniswap-style V2 and V3 pools.
// @description
// @description ## - Features
// @description - **Split Routing**: the amount can be divided over several routes that share no pool
// @description - **Batched On-Chain Quotes**: every candidate is quoted through multicall against a single block
// @description - **Gas Aware**: routes are compared net of gas, including the L1 data fee on rollups
// @description - **Route Cache**: recently winning route shapes are re-quoted instead of searched again
// @description
// @description ## - Usage Tips
// @description - Amounts are in the token's smallest unit (wei for ETH, 1 USDC = 1000000)
// @description - Exact output is served by V3 routes only
// @description - Default slippage is 50 bps (0.5%)
// @description - Send X-Request-Id to correlate requests with server logs
// @BasePath /
// @schemes https http
// @tag.name quote
// @tag.description Find the best swap plan for a token pair
// @tag.name pools
// @tag.description Inspect the pools available for routing

func main() {
	// load env; a missing .env is fine when the environment is set directly
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Error().Err(err).Msg("failed to load env")
		return
	}
	services.SetLogLevel(os.Getenv("LOG_LEVEL"))
	common.InitRuntime()

	// di container config
	conf := container.NewConf(
		&config.GeneralConfig{},
		&config.RPCConfig{},
		&config.RouterConfig{},
	)

	// di container; instances are configured in order
	dic, err := container.New(
		conf,

		&blockchain.HeadCacheService{},
		&aggregator.Service{},
		&http.HTTPService{},
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to create di container")
		return
	}

	// Run blocks until SIGINT/SIGTERM
	if err := dic.Run(); err != nil {
		log.Error().Err(err).Msg("failed to run di container")
		return
	}

	log.Info().Msg("Shutting down services...")
	if err := dic.Stop(); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
	log.Info().Msg("Shutdown complete")
}
