package domain

import (
	"math/big"
)

type TradeType uint8

const (
	ExactInput TradeType = iota
	ExactOutput
)

func (t TradeType) String() string {
	if t == ExactOutput {
		return "ExactOut"
	}
	return "ExactIn"
}

// Better reports whether a beats b under the trade direction: more output
// for exact input, less input for exact output. Equal values are not better.
func (t TradeType) Better(a, b *big.Int) bool {
	if t == ExactOutput {
		return a.Cmp(b) < 0
	}
	return a.Cmp(b) > 0
}

// TradeFraction is one percentage slice of the total trade amount.
type TradeFraction struct {
	Percent int
	Amount  *big.Int
}

// PathQuote is the on-chain result of evaluating one (Path, TradeFraction).
// It is either fully populated or not created at all.
type PathQuote struct {
	Path    *Path
	Percent int
	// Amount is the fraction's absolute amount (input for exact input,
	// output for exact output).
	Amount *big.Int
	// Quote is the quoted output (exact input) or required input (exact output).
	Quote *big.Int

	SqrtPriceX96AfterList       []*big.Int
	InitializedTicksCrossedList []uint32
	GasEstimate                 *big.Int
}

// TicksCrossed sums the per-hop initialized tick crossings.
func (q *PathQuote) TicksCrossed() uint64 {
	var total uint64
	for _, n := range q.InitializedTicksCrossedList {
		total += uint64(n)
	}
	return total
}

// RouteWithValidQuote is a PathQuote annotated with its gas cost. It is
// derived per request and never persisted.
type RouteWithValidQuote struct {
	*PathQuote
	TradeType TradeType

	GasEstimate         *big.Int
	GasCostInQuoteToken *big.Int
	GasCostInUSD        *big.Int
	// QuoteAdjustedForGas is Quote minus gas cost for exact input, plus gas
	// cost for exact output. It is the optimizer's comparison key.
	QuoteAdjustedForGas *big.Int
}

// NewRouteWithValidQuote applies the gas cost to the raw quote.
func NewRouteWithValidQuote(q *PathQuote, tradeType TradeType, gasEstimate, gasInQuote, gasInUSD *big.Int) *RouteWithValidQuote {
	adjusted := new(big.Int)
	if tradeType == ExactOutput {
		adjusted.Add(q.Quote, gasInQuote)
	} else {
		adjusted.Sub(q.Quote, gasInQuote)
	}
	return &RouteWithValidQuote{
		PathQuote:           q,
		TradeType:           tradeType,
		GasEstimate:         gasEstimate,
		GasCostInQuoteToken: gasInQuote,
		GasCostInUSD:        gasInUSD,
		QuoteAdjustedForGas: adjusted,
	}
}

// WithAmount returns a shallow copy carrying a different fraction amount.
// Used by rounding reconciliation so the original quote is never mutated.
func (r *RouteWithValidQuote) WithAmount(amount *big.Int) *RouteWithValidQuote {
	pq := *r.PathQuote
	pq.Amount = amount
	cp := *r
	cp.PathQuote = &pq
	return &cp
}
