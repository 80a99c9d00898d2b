package gas

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// USDDecimals is the fixed-point scale of every USD amount the router
// reports (micro-dollars).
const USDDecimals = 6

// NativeDecimals is the scale of the chain's native gas token.
const NativeDecimals = 18

// PriceSource yields the current gas price in wei.
type PriceSource interface {
	GasPrice(ctx context.Context) (*uint256.Int, error)
}

// TokenPrice is the USD valuation of one whole token.
type TokenPrice struct {
	Decimals uint8
	USD      decimal.Decimal
}

// PriceOracle values tokens in USD.
type PriceOracle interface {
	TokenPrice(token common.Address) (TokenPrice, bool)
}

// StaticPrices is a PriceOracle backed by a fixed table, refreshed via Set.
type StaticPrices struct {
	mu     sync.RWMutex
	prices map[common.Address]TokenPrice
}

func NewStaticPrices(prices map[common.Address]TokenPrice) *StaticPrices {
	cp := make(map[common.Address]TokenPrice, len(prices))
	for k, v := range prices {
		cp[k] = v
	}
	return &StaticPrices{prices: cp}
}

func (s *StaticPrices) TokenPrice(token common.Address) (TokenPrice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[token]
	return p, ok
}

func (s *StaticPrices) Set(token common.Address, price TokenPrice) {
	s.mu.Lock()
	s.prices[token] = price
	s.mu.Unlock()
}

// Converter turns wei amounts into quote-token and USD base units.
type Converter struct {
	oracle    PriceOracle
	nativeUSD decimal.Decimal
}

func NewConverter(oracle PriceOracle, nativeUSD decimal.Decimal) *Converter {
	return &Converter{oracle: oracle, nativeUSD: nativeUSD}
}

func (c *Converter) nativeAmount(wei *uint256.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei.ToBig(), -NativeDecimals)
}

// WeiToUSD values wei in USD base units.
func (c *Converter) WeiToUSD(wei *uint256.Int) *big.Int {
	usd := c.nativeAmount(wei).Mul(c.nativeUSD)
	return usd.Shift(USDDecimals).Floor().BigInt()
}

// WeiToToken values wei in base units of token. Unpriced tokens cost
// nothing, which leaves the raw quote as the ranking key.
func (c *Converter) WeiToToken(wei *uint256.Int, token common.Address) (*big.Int, bool) {
	price, ok := c.oracle.TokenPrice(token)
	if !ok || price.USD.Sign() <= 0 {
		return new(big.Int), false
	}
	usd := c.nativeAmount(wei).Mul(c.nativeUSD)
	return usd.Div(price.USD).Shift(int32(price.Decimals)).Floor().BigInt(), true
}
