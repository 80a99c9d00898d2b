package gas

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/hxuan190/swap-router/internal/domain"
)

const (
	// calldata gas per non-zero byte
	calldataGasPerByte = 16
	// router call envelope: selector, deadline, recipient, amounts, offsets
	routeCallOverheadBytes = 4 + 5*32
)

// L1Params configures rollup settlement pricing.
type L1Params struct {
	BaseFeeWei *uint256.Int
	Scalar     decimal.Decimal
	// FixedOverhead is charged once per plan, in L1 gas units.
	FixedOverhead uint64
}

// L1BaseFeeSource reports the live L1 base fee seen by the rollup.
type L1BaseFeeSource interface {
	L1BaseFee(ctx context.Context) (*uint256.Int, error)
}

// L1SettlementFeeCalculator prices the L1 data cost of the whole plan's
// calldata. It is charged once per plan, never per route.
type L1SettlementFeeCalculator struct {
	params     L1Params
	quoteToken common.Address
	converter  *Converter
}

// CalldataBytes approximates the encoded size of a plan.
func CalldataBytes(routes []*domain.RouteWithValidQuote) uint64 {
	var n uint64
	for _, r := range routes {
		hops := uint64(r.Path.HopCount())
		n += routeCallOverheadBytes + 20*(hops+1) + 3*hops
	}
	return n
}

func (c *L1SettlementFeeCalculator) PlanFee(routes []*domain.RouteWithValidQuote) Cost {
	l1Gas := c.params.FixedOverhead + calldataGasPerByte*CalldataBytes(routes)

	baseFee := decimal.NewFromBigInt(c.params.BaseFeeWei.ToBig(), 0)
	weiDec := baseFee.Mul(c.params.Scalar).Mul(decimal.NewFromInt(int64(l1Gas))).Floor()
	wei, overflow := uint256.FromBig(weiDec.BigInt())
	if overflow {
		wei = new(uint256.Int).SetAllOne()
	}

	inQuote, _ := c.converter.WeiToToken(wei, c.quoteToken)
	return Cost{
		Gas:          new(big.Int).SetUint64(l1Gas),
		InQuoteToken: inQuote,
		InUSD:        c.converter.WeiToUSD(wei),
	}
}

type noL1Fee struct{}

func (noL1Fee) PlanFee([]*domain.RouteWithValidQuote) Cost {
	return Cost{Gas: new(big.Int), InQuoteToken: new(big.Int), InUSD: new(big.Int)}
}
