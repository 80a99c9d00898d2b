package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SwapRequest is the input of the routing API.
type SwapRequest struct {
	TokenIn  common.Address
	TokenOut common.Address
	// Amount is the input amount for exact input, the output amount for
	// exact output.
	Amount    *big.Int
	TradeType TradeType

	MinSplits          int
	MaxSplits          int
	ForceCrossProtocol bool
}

// QuoteToken is the token the quote is denominated in.
func (r *SwapRequest) QuoteToken() common.Address {
	if r.TradeType == ExactOutput {
		return r.TokenIn
	}
	return r.TokenOut
}

// SwapPlan is the final selected combination of paths and fractions.
// No two routes share a pool and route amounts sum to the requested amount.
type SwapPlan struct {
	TradeType TradeType
	Amount    *big.Int
	Routes    []*RouteWithValidQuote

	Quote               *big.Int
	QuoteGasAdjusted    *big.Int
	EstimatedGasUsed    *big.Int
	GasCostInQuoteToken *big.Int
	GasCostInUSD        *big.Int
	// L1SettlementFee is the once-per-plan fee in quote token units; zero
	// on chains without one.
	L1SettlementFee *big.Int

	BlockNumber uint64
	FromCache   bool
}

// Percents lists the fraction of each route, in route order.
func (p *SwapPlan) Percents() []int {
	out := make([]int, len(p.Routes))
	for i, r := range p.Routes {
		out[i] = r.Percent
	}
	return out
}
