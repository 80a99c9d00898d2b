package gas

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/swap-router/internal/domain"
)

// Default heuristic constants, in gas units.
const (
	DefaultBaseSwapCost    = 2_000
	DefaultCostPerHop      = 80_000
	DefaultCostPerInitTick = 31_000
)

// Cost is a gas estimate together with its valuation.
type Cost struct {
	Gas          *big.Int
	InQuoteToken *big.Int
	InUSD        *big.Int
}

// Model estimates the execution cost of swapping along one quoted path.
type Model interface {
	Estimate(q *domain.PathQuote) Cost
}

// L1FeeCalculator prices the once-per-plan settlement fee of rollups.
type L1FeeCalculator interface {
	PlanFee(routes []*domain.RouteWithValidQuote) Cost
}

type HeuristicParams struct {
	BaseSwapCost    uint64
	CostPerHop      uint64
	CostPerInitTick uint64
}

func DefaultHeuristicParams() HeuristicParams {
	return HeuristicParams{
		BaseSwapCost:    DefaultBaseSwapCost,
		CostPerHop:      DefaultCostPerHop,
		CostPerInitTick: DefaultCostPerInitTick,
	}
}

// HeuristicModel is bound to one request: its gas price, quote token and
// the observed per-call gas ceiling are fixed at construction.
type HeuristicModel struct {
	params     HeuristicParams
	gasPrice   *uint256.Int
	quoteToken common.Address
	converter  *Converter
	// callGasCap is the p99 gas of successful quote calls; 0 disables it.
	callGasCap uint64
}

func (m *HeuristicModel) gasUnits(q *domain.PathQuote) uint64 {
	var units uint64
	if q.GasEstimate != nil && q.GasEstimate.Sign() > 0 && q.GasEstimate.IsUint64() {
		units = q.GasEstimate.Uint64() + m.params.BaseSwapCost
	} else {
		units = m.params.BaseSwapCost +
			m.params.CostPerHop*uint64(q.Path.HopCount()) +
			m.params.CostPerInitTick*q.TicksCrossed()
	}
	if m.callGasCap > 0 && units > m.callGasCap {
		units = m.callGasCap
	}
	return units
}

func (m *HeuristicModel) Estimate(q *domain.PathQuote) Cost {
	units := m.gasUnits(q)
	wei := new(uint256.Int).Mul(uint256.NewInt(units), m.gasPrice)
	inQuote, _ := m.converter.WeiToToken(wei, m.quoteToken)
	return Cost{
		Gas:          new(big.Int).SetUint64(units),
		InQuoteToken: inQuote,
		InUSD:        m.converter.WeiToUSD(wei),
	}
}

// Factory builds request-scoped gas models.
type Factory struct {
	params         HeuristicParams
	prices         PriceSource
	converter      *Converter
	fallbackGasWei *uint256.Int
	l1             *L1Params
	l1Fees         L1BaseFeeSource
	logger         zerolog.Logger
}

func NewFactory(params HeuristicParams, prices PriceSource, converter *Converter, fallbackGasWei *uint256.Int, l1 *L1Params) *Factory {
	if fallbackGasWei == nil {
		fallbackGasWei = uint256.NewInt(1_000_000_000)
	}
	return &Factory{
		params:         params,
		prices:         prices,
		converter:      converter,
		fallbackGasWei: fallbackGasWei,
		l1:             l1,
		logger:         log.With().Str("component", "gas-model").Logger(),
	}
}

// WithL1BaseFeeSource refreshes L1Params.BaseFeeWei on every Build.
func (f *Factory) WithL1BaseFeeSource(src L1BaseFeeSource) *Factory {
	f.l1Fees = src
	return f
}

// Build fetches the gas price once and binds a model to the quote token.
// A failing price source degrades to the fallback price.
func (f *Factory) Build(ctx context.Context, quoteToken common.Address, callGasCap uint64) (*HeuristicModel, L1FeeCalculator) {
	gasPrice := f.fallbackGasWei
	if f.prices != nil {
		if p, err := f.prices.GasPrice(ctx); err == nil && p != nil && !p.IsZero() {
			gasPrice = p
		} else if err != nil {
			f.logger.Warn().Err(err).Msg("gas price unavailable, using fallback")
		}
	}
	if _, ok := f.converter.oracle.TokenPrice(quoteToken); !ok {
		f.logger.Debug().Str("token", quoteToken.Hex()).Msg("quote token unpriced, gas cost ignored in ranking")
	}

	model := &HeuristicModel{
		params:     f.params,
		gasPrice:   gasPrice,
		quoteToken: quoteToken,
		converter:  f.converter,
		callGasCap: callGasCap,
	}

	var l1 L1FeeCalculator = noL1Fee{}
	if f.l1 != nil {
		params := *f.l1
		if f.l1Fees != nil {
			if fee, err := f.l1Fees.L1BaseFee(ctx); err == nil && fee != nil {
				params.BaseFeeWei = fee
			} else if err != nil {
				f.logger.Warn().Err(err).Msg("l1 base fee unavailable, using configured value")
			}
		}
		if params.BaseFeeWei == nil {
			params.BaseFeeWei = new(uint256.Int)
		}
		l1 = &L1SettlementFeeCalculator{params: params, quoteToken: quoteToken, converter: f.converter}
	}
	return model, l1
}

// Annotate applies the model to every quote of a percent bucket.
func Annotate(m Model, quotes []*domain.PathQuote, tradeType domain.TradeType) []*domain.RouteWithValidQuote {
	out := make([]*domain.RouteWithValidQuote, 0, len(quotes))
	for _, q := range quotes {
		c := m.Estimate(q)
		out = append(out, domain.NewRouteWithValidQuote(q, tradeType, c.Gas, c.InQuoteToken, c.InUSD))
	}
	return out
}
