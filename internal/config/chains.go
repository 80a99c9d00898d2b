package config

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/hxuan190/swap-router/internal/services/gas"
	"github.com/hxuan190/swap-router/internal/services/quoter"
)

const (
	ChainMainnet  uint64 = 1
	ChainOptimism uint64 = 10
	ChainPolygon  uint64 = 137
	ChainBase     uint64 = 8453
	ChainArbitrum uint64 = 42161
	ChainCelo     uint64 = 42220
)

// Chain carries the per-chain defaults the router needs.
type Chain struct {
	ID   uint64
	Name string

	MulticallAddress   common.Address
	QuoterV2Address    common.Address
	MixedQuoterAddress common.Address

	Batch quoter.BatchParams
	Gas   gas.HeuristicParams

	// HasL1SettlementFee marks rollups that charge for L1 calldata.
	HasL1SettlementFee bool
	L1Scalar           decimal.Decimal
	L1FixedOverhead    uint64
}

var (
	defaultMulticall = common.HexToAddress("0x1F98415757620B543A52E61c46B32eB19261F984")
	defaultQuoterV2  = common.HexToAddress("0x61fFE014bA17989E743c5F6cB21bF9697530B21e")
)

// ChainParams returns defaults for chainID. Unknown chains get mainnet
// batching without a mixed-route quoter.
func ChainParams(chainID uint64) Chain {
	c := Chain{
		ID:               chainID,
		Name:             "unknown",
		MulticallAddress: defaultMulticall,
		QuoterV2Address:  defaultQuoterV2,
		Batch:            quoter.DefaultBatchParams(),
		Gas:              gas.DefaultHeuristicParams(),
		L1Scalar:         decimal.NewFromInt(1),
	}

	switch chainID {
	case ChainMainnet:
		c.Name = "mainnet"
		c.MixedQuoterAddress = common.HexToAddress("0x84E44095eeBfEC7793Cd7d5b57B7e401D7f1cA2E")
	case ChainOptimism:
		c.Name = "optimism"
		c.HasL1SettlementFee = true
		c.L1FixedOverhead = 2100
	case ChainBase:
		c.Name = "base"
		c.MulticallAddress = common.HexToAddress("0x091e99cb1C49331a94dD62755D168E941AbD0693")
		c.QuoterV2Address = common.HexToAddress("0x3d4e44Eb1374240CE5F1B871ab261CD16335B76a")
		c.HasL1SettlementFee = true
		c.L1FixedOverhead = 2100
	case ChainArbitrum:
		c.Name = "arbitrum"
		c.MulticallAddress = common.HexToAddress("0xadF885960B47eA2CD9B55E6DAc6B42b7Cb2806dB")
		c.Batch.ChunkSize = 10
		c.Batch.GasLimitPerCall = 12_000_000
		c.Batch.MinSuccessRate = 0.15
		c.Batch.OutOfGasOverride = quoter.Override{ChunkSize: 5, GasLimitPerCall: 15_000_000}
		c.Batch.SuccessRateOverride = quoter.Override{ChunkSize: 5, GasLimitPerCall: 15_000_000}
	case ChainPolygon:
		c.Name = "polygon"
		c.Batch.ChunkSize = 110
		c.Batch.BaseBlockOffset = 1
	case ChainCelo:
		c.Name = "celo"
		c.MulticallAddress = common.HexToAddress("0x633987602DE5C4F337e3DbF265303A1080324204")
		c.QuoterV2Address = common.HexToAddress("0x82825d0554fA07f7FC52Ab63c961F330fdEFa8E8")
		c.Batch.ChunkSize = 10
		c.Batch.GasLimitPerCall = 5_000_000
		c.Batch.OutOfGasOverride = quoter.Override{ChunkSize: 5, GasLimitPerCall: 5_000_000}
		c.Batch.SuccessRateOverride = quoter.Override{ChunkSize: 5, GasLimitPerCall: 6_250_000}
		c.Batch.UnderReportsCallGas = true
	}
	return c
}

// BatchParams applies the router overrides on top of the chain defaults.
func (c *RouterConfig) BatchParams(chain Chain, rpc *RPCConfig) quoter.BatchParams {
	p := chain.Batch
	if c.BatchChunkSize > 0 {
		p.ChunkSize = c.BatchChunkSize
	}
	if c.BatchGasLimitPerCall > 0 {
		p.GasLimitPerCall = uint64(c.BatchGasLimitPerCall)
	}
	if c.BatchMaxAttempts > 0 {
		p.MaxAttempts = c.BatchMaxAttempts
	}
	if rpc != nil && rpc.CallTimeout > 0 {
		p.CallTimeout = rpc.CallTimeout
	}
	return p
}
