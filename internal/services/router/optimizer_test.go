package router

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/swap-router/internal/domain"
	"github.com/hxuan190/swap-router/internal/services/gas"
)

var (
	tokenIn  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	tokenOut = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	tokenMid = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
)

func pool(addr string, protocol domain.Protocol, a, b common.Address) *domain.Pool {
	return &domain.Pool{Address: common.HexToAddress(addr), Protocol: protocol, Token0: a, Token1: b, Fee: 500}
}

func directPath(t testing.TB, addr string, protocol domain.Protocol) *domain.Path {
	t.Helper()
	p, err := domain.NewPath(tokenIn, []*domain.Pool{pool(addr, protocol, tokenIn, tokenOut)})
	require.NoError(t, err)
	return p
}

func route(path *domain.Path, percent int, amount, quote, gasCost int64, tradeType domain.TradeType) *domain.RouteWithValidQuote {
	q := &domain.PathQuote{
		Path:    path,
		Percent: percent,
		Amount:  big.NewInt(amount),
		Quote:   big.NewInt(quote),
	}
	return domain.NewRouteWithValidQuote(q, tradeType, big.NewInt(100_000), big.NewInt(gasCost), big.NewInt(gasCost))
}

// curve is the quote of a path at 25, 50, 75 and 100 percent of 1000 units.
type curve struct {
	path   *domain.Path
	quotes [4]int64
}

func buildInput(tradeType domain.TradeType, amount int64, gasCost int64, curves ...curve) Input {
	in := Input{
		Amount:    big.NewInt(amount),
		TradeType: tradeType,
		Percents:  []int{25, 50, 75, 100},
		Quotes:    make(map[int][]*domain.RouteWithValidQuote),
	}
	for _, c := range curves {
		for i, percent := range in.Percents {
			amt := amount * int64(percent) / 100
			in.Quotes[percent] = append(in.Quotes[percent], route(c.path, percent, amt, c.quotes[i], gasCost, tradeType))
		}
	}
	return in
}

func pathIDs(plan *domain.SwapPlan) []string {
	ids := make([]string, len(plan.Routes))
	for i, r := range plan.Routes {
		ids[i] = r.Path.ID()
	}
	return ids
}

func TestOptimizeSingleRouteWhenMaxSplitsIsOne(t *testing.T) {
	a := directPath(t, "0xa1", domain.ProtocolV3)
	b := directPath(t, "0xb1", domain.ProtocolV3)
	in := buildInput(domain.ExactInput, 1000, 0,
		curve{a, [4]int64{260, 520, 770, 1000}},
		curve{b, [4]int64{255, 510, 760, 990}},
	)

	cfg := DefaultConfig()
	cfg.MaxSplits = 1
	plan, ok := NewOptimizer(cfg).Optimize(in)
	require.True(t, ok)
	require.Len(t, plan.Routes, 1)
	assert.Equal(t, a.ID(), plan.Routes[0].Path.ID())
	assert.Equal(t, 100, plan.Routes[0].Percent)
	assert.Equal(t, int64(1000), plan.Quote.Int64())
}

func TestOptimizeSplitsWhenItBeatsSingleRoute(t *testing.T) {
	a := directPath(t, "0xa1", domain.ProtocolV3)
	b := directPath(t, "0xb1", domain.ProtocolV3)
	c := directPath(t, "0xc1", domain.ProtocolV3)
	in := buildInput(domain.ExactInput, 1000, 0,
		curve{a, [4]int64{260, 520, 770, 1000}},
		curve{b, [4]int64{255, 510, 760, 990}},
		curve{c, [4]int64{250, 500, 745, 980}},
	)

	cfg := DefaultConfig()
	cfg.MinSplits = 2
	cfg.MaxSplits = 3
	plan, ok := NewOptimizer(cfg).Optimize(in)
	require.True(t, ok)
	require.Len(t, plan.Routes, 2)
	assert.Equal(t, []int{50, 50}, plan.Percents())
	assert.Equal(t, int64(1030), plan.Quote.Int64())
	assert.ElementsMatch(t, []string{a.ID(), b.ID()}, pathIDs(plan))
}

func TestOptimizeNeverReusesPool(t *testing.T) {
	shared := pool("0xa1", domain.ProtocolV3, tokenIn, tokenMid)
	viaMid1, err := domain.NewPath(tokenIn, []*domain.Pool{shared, pool("0xc1", domain.ProtocolV3, tokenMid, tokenOut)})
	require.NoError(t, err)
	viaMid2, err := domain.NewPath(tokenIn, []*domain.Pool{shared, pool("0xc2", domain.ProtocolV3, tokenMid, tokenOut)})
	require.NoError(t, err)
	other := directPath(t, "0xb1", domain.ProtocolV3)

	in := buildInput(domain.ExactInput, 1000, 0,
		curve{viaMid1, [4]int64{300, 600, 800, 950}},
		curve{viaMid2, [4]int64{299, 598, 790, 940}},
		curve{other, [4]int64{250, 480, 700, 900}},
	)

	cfg := DefaultConfig()
	cfg.MinSplits = 2
	plan, ok := NewOptimizer(cfg).Optimize(in)
	require.True(t, ok)

	seen := make(map[common.Address]bool)
	for _, r := range plan.Routes {
		for _, p := range r.Path.Pools {
			require.False(t, seen[p.Address], "pool %s reused", p.Address.Hex())
			seen[p.Address] = true
		}
	}
	assert.Contains(t, pathIDs(plan), other.ID())
}

func TestOptimizeConservesAmountAfterRounding(t *testing.T) {
	a := directPath(t, "0xa1", domain.ProtocolV3)
	b := directPath(t, "0xb1", domain.ProtocolV3)
	c := directPath(t, "0xd1", domain.ProtocolV3)
	in := buildInput(domain.ExactInput, 1003, 0,
		curve{a, [4]int64{300, 500, 600, 700}},
		curve{b, [4]int64{300, 500, 600, 700}},
		curve{c, [4]int64{300, 500, 600, 700}},
	)

	plan, ok := NewOptimizer(DefaultConfig()).Optimize(in)
	require.True(t, ok)
	require.Len(t, plan.Routes, 3)

	total := new(big.Int)
	for _, r := range plan.Routes {
		total.Add(total, r.Amount)
	}
	assert.Equal(t, int64(1003), total.Int64())
	assert.Equal(t, int64(1003), plan.Amount.Int64())

	sum := 0
	for _, p := range plan.Percents() {
		sum += p
	}
	assert.Equal(t, 100, sum)
}

func TestOptimizeTieGoesToEarlierDiscoveredPath(t *testing.T) {
	late := directPath(t, "0xa1", domain.ProtocolV3)
	early := directPath(t, "0xf1", domain.ProtocolV3)
	quotes := [4]int64{260, 520, 770, 1000}

	cfg := DefaultConfig()
	cfg.MaxSplits = 1

	in := buildInput(domain.ExactInput, 1000, 0, curve{early, quotes}, curve{late, quotes})
	for i := 0; i < 5; i++ {
		plan, ok := NewOptimizer(cfg).Optimize(in)
		require.True(t, ok)
		require.Len(t, plan.Routes, 1)
		assert.Equal(t, early.ID(), plan.Routes[0].Path.ID())
	}

	reversed := buildInput(domain.ExactInput, 1000, 0, curve{late, quotes}, curve{early, quotes})
	plan, ok := NewOptimizer(cfg).Optimize(reversed)
	require.True(t, ok)
	assert.Equal(t, late.ID(), plan.Routes[0].Path.ID())
}

func TestOptimizeRespectsMinSplits(t *testing.T) {
	a := directPath(t, "0xa1", domain.ProtocolV3)
	in := buildInput(domain.ExactInput, 1000, 0, curve{a, [4]int64{250, 500, 750, 1000}})

	cfg := DefaultConfig()
	cfg.MinSplits = 2
	_, ok := NewOptimizer(cfg).Optimize(in)
	assert.False(t, ok)
}

func TestOptimizeForceCrossProtocol(t *testing.T) {
	v3a := directPath(t, "0xa1", domain.ProtocolV3)
	v3b := directPath(t, "0xa2", domain.ProtocolV3)
	v2 := directPath(t, "0xb1", domain.ProtocolV2)
	in := buildInput(domain.ExactInput, 1000, 0,
		curve{v3a, [4]int64{300, 600, 850, 1000}},
		curve{v3b, [4]int64{300, 600, 850, 1000}},
		curve{v2, [4]int64{200, 390, 560, 700}},
	)

	cfg := DefaultConfig()
	cfg.ForceCrossProtocol = true
	plan, ok := NewOptimizer(cfg).Optimize(in)
	require.True(t, ok)

	protocols := make(map[domain.Protocol]bool)
	for _, r := range plan.Routes {
		protocols[r.Path.Protocol] = true
	}
	assert.Len(t, protocols, 2)
}

// stepInput quotes every path at 10% steps of 1000 units.
func stepInput(quote map[*domain.Path]func(percent int64) int64, order ...*domain.Path) Input {
	in := Input{
		Amount:    big.NewInt(1000),
		TradeType: domain.ExactInput,
		Quotes:    make(map[int][]*domain.RouteWithValidQuote),
	}
	for percent := 10; percent <= 100; percent += 10 {
		in.Percents = append(in.Percents, percent)
		for _, p := range order {
			amt := int64(percent) * 10
			in.Quotes[percent] = append(in.Quotes[percent], route(p, percent, amt, quote[p](int64(percent)), 0, domain.ExactInput))
		}
	}
	return in
}

// knee is linear at 10 per percent up to limit, then nearly flat.
func knee(limit int64) func(int64) int64 {
	return func(pct int64) int64 {
		if pct <= limit {
			return 10 * pct
		}
		return 10*limit + (pct - limit)
	}
}

func TestOptimizeForceCrossProtocolReachesUnevenSplits(t *testing.T) {
	v3a := directPath(t, "0xa1", domain.ProtocolV3)
	v3b := directPath(t, "0xa2", domain.ProtocolV3)
	v2 := directPath(t, "0xb1", domain.ProtocolV2)
	in := stepInput(map[*domain.Path]func(int64) int64{
		v3a: knee(50),
		v3b: knee(40),
		v2:  func(pct int64) int64 { return 5 * pct },
	}, v3a, v3b, v2)

	cfg := DefaultConfig()
	cfg.ForceCrossProtocol = true
	plan, ok := NewOptimizer(cfg).Optimize(in)
	require.True(t, ok)
	assert.Equal(t, []string{v3a.ID(), v3b.ID(), v2.ID()}, pathIDs(plan))
	assert.Equal(t, []int{50, 40, 10}, plan.Percents())
	assert.Equal(t, int64(950), plan.Quote.Int64())
}

func TestOptimizeRanksByGasAdjustedQuote(t *testing.T) {
	a := directPath(t, "0xa1", domain.ProtocolV3)
	b := directPath(t, "0xb1", domain.ProtocolV3)
	// Splitting gains 30 before gas; each route costs 50.
	in := buildInput(domain.ExactInput, 1000, 50,
		curve{a, [4]int64{260, 520, 770, 1000}},
		curve{b, [4]int64{255, 510, 760, 990}},
	)

	plan, ok := NewOptimizer(DefaultConfig()).Optimize(in)
	require.True(t, ok)
	require.Len(t, plan.Routes, 1)
	assert.Equal(t, int64(950), plan.QuoteGasAdjusted.Int64())
	assert.Equal(t, int64(50), plan.GasCostInQuoteToken.Int64())
}

type flatL1Fee struct{ perPlan int64 }

func (f flatL1Fee) PlanFee(routes []*domain.RouteWithValidQuote) gas.Cost {
	return gas.Cost{Gas: big.NewInt(1), InQuoteToken: big.NewInt(f.perPlan * int64(len(routes))), InUSD: big.NewInt(0)}
}

func TestOptimizeChargesL1FeeOncePerPlan(t *testing.T) {
	a := directPath(t, "0xa1", domain.ProtocolV3)
	b := directPath(t, "0xb1", domain.ProtocolV3)
	in := buildInput(domain.ExactInput, 1000, 0,
		curve{a, [4]int64{260, 520, 770, 1000}},
		curve{b, [4]int64{255, 510, 760, 990}},
	)
	in.L1 = flatL1Fee{perPlan: 20}

	plan, ok := NewOptimizer(DefaultConfig()).Optimize(in)
	require.True(t, ok)
	require.Len(t, plan.Routes, 2)
	assert.Equal(t, int64(1030-40), plan.QuoteGasAdjusted.Int64())
	assert.Equal(t, int64(40), plan.L1SettlementFee.Int64())
}

func TestOptimizeExactOutputPrefersLowerInput(t *testing.T) {
	a := directPath(t, "0xa1", domain.ProtocolV3)
	b := directPath(t, "0xb1", domain.ProtocolV3)
	in := buildInput(domain.ExactOutput, 1000, 0,
		curve{a, [4]int64{240, 490, 760, 1050}},
		curve{b, [4]int64{245, 495, 770, 1010}},
	)

	cfg := DefaultConfig()
	cfg.MaxSplits = 1
	plan, ok := NewOptimizer(cfg).Optimize(in)
	require.True(t, ok)
	assert.Equal(t, b.ID(), plan.Routes[0].Path.ID())

	split, ok := NewOptimizer(DefaultConfig()).Optimize(in)
	require.True(t, ok)
	assert.Equal(t, int64(985), split.Quote.Int64())
}

func TestOptimizeNoQuotes(t *testing.T) {
	_, ok := NewOptimizer(DefaultConfig()).Optimize(Input{
		Amount:   big.NewInt(10),
		Percents: []int{50, 100},
		Quotes:   map[int][]*domain.RouteWithValidQuote{},
	})
	assert.False(t, ok)
}

func TestConfigValidate(t *testing.T) {
	assert.ErrorIs(t, Config{MinSplits: 3, MaxSplits: 2}.Validate(), ErrInvalidSplitBounds)
	assert.ErrorIs(t, Config{MaxSplits: 0}.Validate(), ErrInvalidSplitBounds)
	assert.NoError(t, DefaultConfig().Validate())
}

func BenchmarkOptimizeTwentyPaths(b *testing.B) {
	curves := make([]curve, 0, 20)
	for i := 0; i < 20; i++ {
		p := directPath(b, fmt.Sprintf("0x%x", 0x100+i), domain.ProtocolV3)
		base := int64(1000 - i)
		curves = append(curves, curve{p, [4]int64{base * 26 / 100, base * 51 / 100, base * 75 / 100, base}})
	}
	in := buildInput(domain.ExactInput, 1000, 5, curves...)
	opt := NewOptimizer(DefaultConfig())

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = opt.Optimize(in)
	}
}
