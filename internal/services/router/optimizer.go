package router

import (
	"errors"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/swap-router/internal/domain"
	"github.com/hxuan190/swap-router/internal/metrics"
	"github.com/hxuan190/swap-router/internal/services/gas"
)

const (
	// DefaultTopK is the number of complete plans retained per split count.
	DefaultTopK = 3
	// DefaultMaxQueueWidth bounds the partial plans carried into the next
	// split layer.
	DefaultMaxQueueWidth = 1000
	// fastPathCandidates is how many 100% routes seed the single-route layer.
	fastPathCandidates = 5
)

var ErrInvalidSplitBounds = errors.New("invalid split bounds")

// Config bounds the optimizer search.
type Config struct {
	MinSplits          int
	MaxSplits          int
	ForceCrossProtocol bool
	TopK               int
	MaxQueueWidth      int
}

func DefaultConfig() Config {
	return Config{
		MinSplits:     1,
		MaxSplits:     3,
		TopK:          DefaultTopK,
		MaxQueueWidth: DefaultMaxQueueWidth,
	}
}

func (c Config) Validate() error {
	if c.MaxSplits < 1 {
		return ErrInvalidSplitBounds
	}
	if c.MinSplits > c.MaxSplits {
		return ErrInvalidSplitBounds
	}
	return nil
}

// Input is everything the optimizer needs for one request. Quotes maps a
// percent to the gas-annotated quotes available at that percent.
type Input struct {
	Amount      *big.Int
	TradeType   domain.TradeType
	Percents    []int
	Quotes      map[int][]*domain.RouteWithValidQuote
	L1          gas.L1FeeCalculator
	BlockNumber uint64
}

// Plan is a complete candidate combination with its ranking value.
type Plan struct {
	Routes []*domain.RouteWithValidQuote
	// Value is the gas adjusted quote including the L1 settlement fee.
	Value *big.Int
	L1Fee gas.Cost
}

type partialPlan struct {
	routes       []*domain.RouteWithValidQuote
	percentIndex int
	remaining    int
	sum          *big.Int
}

// normalized scales the partial sum to a full trade so partial plans with
// different coverage compare fairly.
func (p *partialPlan) normalized() *big.Int {
	covered := 100 - p.remaining
	if covered <= 0 {
		return new(big.Int)
	}
	v := new(big.Int).Mul(p.sum, big.NewInt(100))
	return v.Quo(v, big.NewInt(int64(covered)))
}

// Optimizer searches combinations of percent-bucketed quotes for the best
// gas adjusted plan. It never reuses a pool within a plan.
type Optimizer struct {
	config Config
	logger zerolog.Logger
}

func NewOptimizer(config Config) *Optimizer {
	if config.TopK <= 0 {
		config.TopK = DefaultTopK
	}
	if config.MaxQueueWidth <= 0 {
		config.MaxQueueWidth = DefaultMaxQueueWidth
	}
	return &Optimizer{
		config: config,
		logger: log.With().Str("component", "route-optimizer").Logger(),
	}
}

func (o *Optimizer) WithLogger(logger zerolog.Logger) *Optimizer {
	o.logger = logger
	return o
}

// Config returns the bounds the optimizer runs with.
func (o *Optimizer) Config() Config {
	return o.config
}

// WithBounds returns a copy of the optimizer using per-request split bounds.
func (o *Optimizer) WithBounds(minSplits, maxSplits int, forceCrossProtocol bool) *Optimizer {
	cp := *o
	cp.config.MinSplits = minSplits
	cp.config.MaxSplits = maxSplits
	cp.config.ForceCrossProtocol = forceCrossProtocol
	return &cp
}

// sortedBuckets orders each bucket best first. The sort is stable, so on a
// tie the path discovered earlier by candidate selection stays ahead.
func sortedBuckets(in Input) map[int][]*domain.RouteWithValidQuote {
	out := make(map[int][]*domain.RouteWithValidQuote, len(in.Quotes))
	for percent, quotes := range in.Quotes {
		if len(quotes) == 0 {
			continue
		}
		cp := make([]*domain.RouteWithValidQuote, len(quotes))
		copy(cp, quotes)
		sort.SliceStable(cp, func(i, j int) bool {
			return in.TradeType.Better(cp[i].QuoteAdjustedForGas, cp[j].QuoteAdjustedForGas)
		})
		out[percent] = cp
	}
	return out
}

// firstUnusedRoute returns the best candidate sharing no pool with routes.
// When completing marks the route that closes a single-protocol plan, the
// candidate must bring a second protocol or the plan could not be kept.
func firstUnusedRoute(routes []*domain.RouteWithValidQuote, candidates []*domain.RouteWithValidQuote, completing bool) *domain.RouteWithValidQuote {
	used := make(map[common.Address]struct{}, 4*len(routes))
	for _, r := range routes {
		for _, pool := range r.Path.Pools {
			used[pool.Address] = struct{}{}
		}
	}

	for _, c := range candidates {
		if c.Path.SharesPool(used) {
			continue
		}
		if completing && c.Path.Protocol == routes[0].Path.Protocol {
			continue
		}
		return c
	}
	return nil
}

func crossesProtocols(routes []*domain.RouteWithValidQuote) bool {
	for _, r := range routes[1:] {
		if r.Path.Protocol != routes[0].Path.Protocol {
			return true
		}
	}
	return false
}

func (o *Optimizer) better(tradeType domain.TradeType) func(a, b *Plan) bool {
	return func(a, b *Plan) bool { return tradeType.Better(a.Value, b.Value) }
}

// complete values a finished combination, charging the L1 fee once.
func (o *Optimizer) complete(in Input, routes []*domain.RouteWithValidQuote) *Plan {
	value := new(big.Int)
	for _, r := range routes {
		value.Add(value, r.QuoteAdjustedForGas)
	}
	l1 := gas.Cost{Gas: new(big.Int), InQuoteToken: new(big.Int), InUSD: new(big.Int)}
	if in.L1 != nil {
		l1 = in.L1.PlanFee(routes)
	}
	if in.TradeType == domain.ExactOutput {
		value.Add(value, l1.InQuoteToken)
	} else {
		value.Sub(value, l1.InQuoteToken)
	}
	return &Plan{Routes: routes, Value: value, L1Fee: l1}
}

// Optimize returns the best plan, or false when no combination satisfies
// the bounds.
func (o *Optimizer) Optimize(in Input) (*domain.SwapPlan, bool) {
	start := time.Now()
	defer func() { metrics.OptimizerDuration.Observe(time.Since(start).Seconds()) }()

	if o.config.Validate() != nil || len(in.Percents) == 0 {
		return nil, false
	}

	cfg := o.config
	buckets := sortedBuckets(in)
	better := o.better(in.TradeType)

	var best *Plan
	consider := func(p *Plan, top *BoundedHeap[*Plan]) {
		top.Push(p)
		if best == nil || better(p, best) {
			best = p
		}
	}

	if full := buckets[100]; len(full) > 0 && cfg.MinSplits <= 1 && !cfg.ForceCrossProtocol {
		top := NewBoundedHeap(cfg.TopK, better)
		for i := 0; i < len(full) && i < fastPathCandidates; i++ {
			consider(o.complete(in, []*domain.RouteWithValidQuote{full[i]}), top)
		}
		o.logTop(1, top)
	}

	// Seed with the best and second best route of each bucket.
	var queue []*partialPlan
	for i := len(in.Percents) - 1; i >= 0; i-- {
		percent := in.Percents[i]
		candidates := buckets[percent]
		for j := 0; j < len(candidates) && j < 2; j++ {
			queue = append(queue, &partialPlan{
				routes:       []*domain.RouteWithValidQuote{candidates[j]},
				percentIndex: i,
				remaining:    100 - percent,
				sum:          new(big.Int).Set(candidates[j].QuoteAdjustedForGas),
			})
		}
	}

	splits := 1
	for len(queue) > 0 {
		splits++
		if splits >= 3 && best != nil && len(best.Routes) < splits-1 {
			break
		}
		if splits > cfg.MaxSplits {
			break
		}

		top := NewBoundedHeap(cfg.TopK, better)
		next := NewBoundedHeap(cfg.MaxQueueWidth, func(a, b *partialPlan) bool {
			return in.TradeType.Better(a.normalized(), b.normalized())
		})

		for _, node := range queue {
			if node.remaining <= 0 {
				continue
			}
			for i := node.percentIndex; i >= 0; i-- {
				percent := in.Percents[i]
				if percent > node.remaining {
					continue
				}
				candidates := buckets[percent]
				if len(candidates) == 0 {
					continue
				}
				remaining := node.remaining - percent
				completing := remaining == 0 && cfg.ForceCrossProtocol && !crossesProtocols(node.routes)
				route := firstUnusedRoute(node.routes, candidates, completing)
				if route == nil {
					continue
				}

				routes := make([]*domain.RouteWithValidQuote, len(node.routes)+1)
				copy(routes, node.routes)
				routes[len(node.routes)] = route

				if remaining == 0 {
					if splits < cfg.MinSplits {
						continue
					}
					if cfg.ForceCrossProtocol && !crossesProtocols(routes) {
						continue
					}
					consider(o.complete(in, routes), top)
					continue
				}
				next.Push(&partialPlan{
					routes:       routes,
					percentIndex: i,
					remaining:    remaining,
					sum:          new(big.Int).Add(node.sum, route.QuoteAdjustedForGas),
				})
			}
		}

		o.logTop(splits, top)
		queue = next.Sorted()
	}

	if best == nil {
		return nil, false
	}

	plan := o.assemble(in, best)
	metrics.PlanSplits.Observe(float64(len(plan.Routes)))
	return plan, true
}

// assemble reconciles rounding and fills plan totals. The shortfall from
// floored bucket amounts is added to the last route.
func (o *Optimizer) assemble(in Input, best *Plan) *domain.SwapPlan {
	routes := make([]*domain.RouteWithValidQuote, len(best.Routes))
	copy(routes, best.Routes)

	total := new(big.Int)
	for _, r := range routes {
		total.Add(total, r.Amount)
	}
	if in.Amount != nil {
		if missing := new(big.Int).Sub(in.Amount, total); missing.Sign() > 0 {
			last := len(routes) - 1
			routes[last] = routes[last].WithAmount(new(big.Int).Add(routes[last].Amount, missing))
		}
	}

	sort.SliceStable(routes, func(i, j int) bool {
		return routes[i].Amount.Cmp(routes[j].Amount) > 0
	})

	plan := &domain.SwapPlan{
		TradeType:           in.TradeType,
		Amount:              new(big.Int),
		Routes:              routes,
		Quote:               new(big.Int),
		QuoteGasAdjusted:    new(big.Int).Set(best.Value),
		EstimatedGasUsed:    new(big.Int),
		GasCostInQuoteToken: new(big.Int).Set(best.L1Fee.InQuoteToken),
		GasCostInUSD:        new(big.Int).Set(best.L1Fee.InUSD),
		L1SettlementFee:     new(big.Int).Set(best.L1Fee.InQuoteToken),
		BlockNumber:         in.BlockNumber,
	}
	for _, r := range routes {
		plan.Amount.Add(plan.Amount, r.Amount)
		plan.Quote.Add(plan.Quote, r.Quote)
		if r.GasEstimate != nil {
			plan.EstimatedGasUsed.Add(plan.EstimatedGasUsed, r.GasEstimate)
		}
		plan.GasCostInQuoteToken.Add(plan.GasCostInQuoteToken, r.GasCostInQuoteToken)
		plan.GasCostInUSD.Add(plan.GasCostInUSD, r.GasCostInUSD)
	}
	return plan
}

func (o *Optimizer) logTop(splits int, top *BoundedHeap[*Plan]) {
	if top.Len() == 0 || o.logger.GetLevel() > zerolog.DebugLevel {
		return
	}
	for rank, p := range top.Sorted() {
		ids := make([]string, len(p.Routes))
		percents := make([]int, len(p.Routes))
		for i, r := range p.Routes {
			ids[i] = r.Path.ID()
			percents[i] = r.Percent
		}
		o.logger.Debug().
			Int("splits", splits).
			Int("rank", rank).
			Str("value", p.Value.String()).
			Strs("paths", ids).
			Ints("percents", percents).
			Msg("top plan")
	}
}
