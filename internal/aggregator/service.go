package aggregator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/swap-router/internal/adapters/persistence"
	"github.com/hxuan190/swap-router/internal/aggregator/adapters/blockchain"
	"github.com/hxuan190/swap-router/internal/config"
	"github.com/hxuan190/swap-router/internal/domain"
	"github.com/hxuan190/swap-router/internal/metrics"
	"github.com/hxuan190/swap-router/internal/services"
	"github.com/hxuan190/swap-router/internal/services/candidates"
	"github.com/hxuan190/swap-router/internal/services/gas"
	"github.com/hxuan190/swap-router/internal/services/quoter"
	"github.com/hxuan190/swap-router/internal/services/router"
)

const AGGREGATOR_SERVICE = "aggregator-service"

// QuoteSource quotes (path, fraction) pairs on chain.
type QuoteSource interface {
	Supports(path *domain.Path, tradeType domain.TradeType) bool
	GetQuotes(ctx context.Context, paths []*domain.Path, fractions []domain.TradeFraction, tradeType domain.TradeType, params quoter.BatchParams) (*quoter.QuoteBatch, error)
	GetQuotesFor(ctx context.Context, requests []quoter.QuoteRequest, tradeType domain.TradeType, params quoter.BatchParams) (*quoter.QuoteBatch, error)
}

// RouteStore persists winning plan shapes across restarts.
type RouteStore interface {
	SaveRoute(route *persistence.StoredRoute) error
	LoadAllRoutes() ([]*persistence.StoredRoute, error)
}

// Options wires a Service outside the container.
type Options struct {
	Registry *candidates.Registry
	Quotes   QuoteSource
	Gas      *gas.Factory
	Blocks   quoter.BlockNumberSource
	Routes   RouteStore
	Router   config.RouterConfig
	Batch    quoter.BatchParams
}

type Service struct {
	container.BaseDIInstance
	logger *services.ServiceLogger

	headCache *blockchain.HeadCacheService
	storage   *persistence.Storage

	registry  *candidates.Registry
	paths     *candidates.Provider
	quotes    QuoteSource
	gasModels *gas.Factory
	blocks    quoter.BlockNumberSource
	routes    RouteStore
	optimizer *router.Optimizer
	cache     *RouteCache

	config config.RouterConfig
	batch  quoter.BatchParams
}

func New(opts Options) *Service {
	svc := &Service{}
	svc.logger = services.NewServiceLogger(svc)
	svc.init(opts)
	return svc
}

func (svc *Service) init(opts Options) {
	svc.registry = opts.Registry
	svc.paths = candidates.NewProvider(opts.Registry)
	svc.quotes = opts.Quotes
	svc.gasModels = opts.Gas
	svc.blocks = opts.Blocks
	svc.routes = opts.Routes
	svc.config = opts.Router
	svc.batch = opts.Batch

	cfg := router.DefaultConfig()
	cfg.MinSplits = opts.Router.MinSplits
	cfg.MaxSplits = opts.Router.MaxSplits
	cfg.ForceCrossProtocol = opts.Router.ForceCrossProtocol
	svc.optimizer = router.NewOptimizer(cfg)

	if opts.Router.CacheEnabled {
		svc.cache = NewRouteCache(opts.Router.CacheTTLBlocks)
	}
}

func (svc *Service) ID() string {
	return AGGREGATOR_SERVICE
}

func (svc *Service) Configure(c container.IContainer) error {
	svc.logger = services.NewServiceLogger(svc)
	rpcConfig := c.GetConfig(config.RPC_CONFIG_KEY).(*config.RPCConfig)
	routerConfig := c.GetConfig(config.ROUTER_CONFIG_KEY).(*config.RouterConfig)
	svc.headCache = c.Instance(blockchain.HEAD_CACHE_SERVICE).(*blockchain.HeadCacheService)

	chain := config.ChainParams(rpcConfig.ChainID)

	var routes RouteStore
	if routerConfig.PersistenceEnabled {
		storage, err := persistence.NewStorage(routerConfig.DBPath)
		if err != nil {
			return err
		}
		svc.storage = storage
		routes = storage
	}

	codec, err := quoter.NewQuoteCodec(rpcConfig.QuoterV2Address, rpcConfig.MixedQuoterAddress)
	if err != nil {
		return err
	}
	channel := blockchain.NewMulticallChannel(svc.headCache, rpcConfig.MulticallAddress, rpcConfig.RateLimitPerSecond, rpcConfig.MaxConcurrentBatches)
	executor := quoter.NewExecutor(channel, svc.headCache)
	provider := quoter.NewOnChainQuoteProvider(codec, executor)

	registry := candidates.NewRegistry()
	converter := gas.NewConverter(registry, routerConfig.NativeUSDPrice)
	fallback := new(uint256.Int).Mul(uint256.NewInt(uint64(routerConfig.FallbackGasPriceGwei)), uint256.NewInt(1_000_000_000))

	var l1 *gas.L1Params
	if chain.HasL1SettlementFee {
		l1 = &gas.L1Params{Scalar: chain.L1Scalar, FixedOverhead: chain.L1FixedOverhead}
	}
	factory := gas.NewFactory(chain.Gas, svc.headCache, converter, fallback, l1).WithL1BaseFeeSource(svc.headCache)

	svc.init(Options{
		Registry: registry,
		Quotes:   provider,
		Gas:      factory,
		Blocks:   svc.headCache,
		Routes:   routes,
		Router:   *routerConfig,
		Batch:    routerConfig.BatchParams(chain, rpcConfig),
	})

	svc.logger.Info().
		Str("chain", chain.Name).
		Uint64("chainId", chain.ID).
		Str("multicall", rpcConfig.MulticallAddress.Hex()).
		Bool("l1Fee", chain.HasL1SettlementFee).
		Msg("router configured")
	return nil
}

func (svc *Service) Start() error {
	if svc.storage != nil {
		if err := svc.restorePools(); err != nil {
			return err
		}
	}
	if svc.config.PoolSeedFile != "" {
		if err := svc.LoadSeed(svc.config.PoolSeedFile); err != nil {
			return err
		}
	}
	if err := svc.restoreRoutes(); err != nil {
		svc.logger.Warn().Err(err).Msg("failed to restore cached routes")
	}

	metrics.PoolCount.Set(float64(svc.registry.Len()))
	svc.logger.Info().Int("pools", svc.registry.Len()).Msg("router ready")
	return nil
}

func (svc *Service) Stop() error {
	if svc.storage != nil {
		return svc.storage.Close()
	}
	return nil
}

func (svc *Service) restorePools() error {
	tokens, err := svc.storage.LoadAllTokens()
	if err != nil {
		return err
	}
	for _, st := range tokens {
		token, price, err := persistence.StoredToToken(st)
		if err != nil {
			log.Warn().Err(err).Str("address", st.Address).Msg("[aggregatorService] skipping stored token")
			continue
		}
		svc.registry.AddToken(token, price)
	}

	pools, err := svc.storage.LoadAllPools()
	if err != nil {
		return err
	}
	svc.registry.Upsert(pools...)
	return nil
}

// LoadSeed registers the pools and tokens of a seed file and persists them
// when storage is enabled.
func (svc *Service) LoadSeed(path string) error {
	seed, err := candidates.LoadSeedFile(path)
	if err != nil {
		return err
	}
	pools, err := svc.registry.LoadSeed(seed)
	if err != nil {
		return fmt.Errorf("invalid seed file %s: %w", path, err)
	}
	if svc.storage != nil {
		if err := svc.storage.SaveTokens(seed.Tokens); err != nil {
			return err
		}
		if err := svc.storage.SavePoolBatch(pools); err != nil {
			return err
		}
	}
	svc.logger.Info().Int("pools", len(pools)).Int("tokens", len(seed.Tokens)).Str("file", path).Msg("seed loaded")
	return nil
}

func (svc *Service) restoreRoutes() error {
	if svc.cache == nil || svc.routes == nil {
		return nil
	}
	stored, err := svc.routes.LoadAllRoutes()
	if err != nil {
		return err
	}
	restored := 0
	for _, s := range stored {
		route, err := RouteFromStored(s)
		if err != nil {
			svc.logger.Debug().Err(err).Str("key", s.Key).Msg("skipping stored route")
			continue
		}
		svc.cache.Set(route)
		restored++
	}
	svc.logger.Info().Int("routes", restored).Msg("route cache restored")
	return nil
}

// Registry exposes the pool registry for read-only endpoints.
func (svc *Service) Registry() *candidates.Registry {
	return svc.registry
}

// CacheSize reports the number of cached plan shapes.
func (svc *Service) CacheSize() int {
	if svc.cache == nil {
		return 0
	}
	return svc.cache.Size()
}

type requestIDKey struct{}

// WithRequestID tags ctx so FindBestSwap logs under the caller's id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// FindBestSwap routes req. It returns a *NoRouteFoundError when routing
// completed without a valid plan, a *quoter.ExhaustedError when quoting
// could not finish, and ErrInvalidRequest for malformed input.
func (svc *Service) FindBestSwap(ctx context.Context, req *domain.SwapRequest) (plan *domain.SwapPlan, err error) {
	start := time.Now()
	logger, _ := svc.logger.Request(requestIDFrom(ctx))

	r, err := svc.normalize(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		status := "ok"
		var noRoute *NoRouteFoundError
		switch {
		case errors.As(err, &noRoute):
			status = "no_route"
		case err != nil:
			status = "error"
		}
		metrics.QuoteRequests.WithLabelValues(r.TradeType.String(), status).Inc()
		metrics.QuoteDuration.WithLabelValues(r.TradeType.String()).Observe(time.Since(start).Seconds())
	}()

	if svc.registry.Len() == 0 {
		return nil, ErrNotReady
	}

	optimizer := svc.optimizer.WithBounds(r.MinSplits, r.MaxSplits, r.ForceCrossProtocol).WithLogger(logger)

	if plan, ok := svc.fromCache(ctx, r, optimizer, logger); ok {
		logger.Info().
			Int("routes", len(plan.Routes)).
			Uint64("block", plan.BlockNumber).
			Dur("took", time.Since(start)).
			Msg("served cached route")
		return plan, nil
	}

	paths, err := svc.candidatePaths(r)
	if err != nil {
		return nil, err
	}
	fractions, err := router.Fractions(r.Amount, svc.config.DistributionPercent)
	if err != nil {
		return nil, invalidRequest("%v", err)
	}

	batch, err := svc.quotes.GetQuotes(ctx, paths, fractions, r.TradeType, svc.batch)
	if err != nil {
		logger.Warn().Err(err).Int("paths", len(paths)).Msg("quote acquisition failed")
		return nil, err
	}

	plan, ok := svc.optimize(ctx, r, optimizer, batch, router.Percents(fractions))
	if !ok {
		return nil, &NoRouteFoundError{
			TokenIn:   r.TokenIn,
			TokenOut:  r.TokenOut,
			TradeType: r.TradeType,
			Reason:    fmt.Sprintf("%d of %d quotes valid, no combination satisfies the split bounds", len(batch.Valid()), len(batch.Quotes)),
		}
	}
	svc.remember(r, plan, logger)

	logger.Info().
		Int("paths", len(paths)).
		Int("routes", len(plan.Routes)).
		Ints("percents", plan.Percents()).
		Int("attempts", batch.Attempts).
		Uint64("block", plan.BlockNumber).
		Str("quote", plan.Quote.String()).
		Dur("took", time.Since(start)).
		Msg("route found")
	return plan, nil
}

// normalize validates req and fills split bounds from config.
func (svc *Service) normalize(req *domain.SwapRequest) (*domain.SwapRequest, error) {
	if req == nil {
		return nil, invalidRequest("empty request")
	}
	r := *req
	switch {
	case r.TokenIn == r.TokenOut:
		return nil, invalidRequest("tokenIn and tokenOut must differ")
	case r.Amount == nil || r.Amount.Sign() <= 0:
		return nil, invalidRequest("amount must be positive")
	case r.TradeType != domain.ExactInput && r.TradeType != domain.ExactOutput:
		return nil, invalidRequest("unknown trade type %d", r.TradeType)
	}
	if r.MinSplits <= 0 {
		r.MinSplits = svc.config.MinSplits
	}
	if r.MaxSplits <= 0 {
		r.MaxSplits = svc.config.MaxSplits
	}
	if r.MinSplits <= 0 {
		r.MinSplits = 1
	}
	r.ForceCrossProtocol = r.ForceCrossProtocol || svc.config.ForceCrossProtocol
	if err := (router.Config{MinSplits: r.MinSplits, MaxSplits: r.MaxSplits}).Validate(); err != nil {
		return nil, invalidRequest("minSplits %d maxSplits %d: %v", r.MinSplits, r.MaxSplits, err)
	}
	return &r, nil
}

// candidatePaths drops paths the quoter contracts cannot price in the
// requested direction.
func (svc *Service) candidatePaths(r *domain.SwapRequest) ([]*domain.Path, error) {
	all, err := svc.paths.CandidatePaths(r.TokenIn, r.TokenOut, svc.config.MaxHops, svc.config.MaxCandidatePaths)
	if err != nil && !errors.Is(err, candidates.ErrNoCandidatePaths) {
		return nil, invalidRequest("%v", err)
	}
	paths := make([]*domain.Path, 0, len(all))
	for _, p := range all {
		if svc.quotes.Supports(p, r.TradeType) {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return nil, &NoRouteFoundError{
			TokenIn:   r.TokenIn,
			TokenOut:  r.TokenOut,
			TradeType: r.TradeType,
			Reason:    "no quotable candidate paths",
		}
	}
	return paths, nil
}

func (svc *Service) optimize(ctx context.Context, r *domain.SwapRequest, optimizer *router.Optimizer, batch *quoter.QuoteBatch, percents []int) (*domain.SwapPlan, bool) {
	model, l1 := svc.gasModels.Build(ctx, r.QuoteToken(), batch.ApproxGasUsedPerSuccessCall)

	byPercent := make(map[int][]*domain.PathQuote)
	for _, q := range batch.Valid() {
		byPercent[q.Percent] = append(byPercent[q.Percent], q)
	}
	quotes := make(map[int][]*domain.RouteWithValidQuote, len(byPercent))
	for percent, qs := range byPercent {
		quotes[percent] = gas.Annotate(model, qs, r.TradeType)
	}

	return optimizer.Optimize(router.Input{
		Amount:      r.Amount,
		TradeType:   r.TradeType,
		Percents:    percents,
		Quotes:      quotes,
		L1:          l1,
		BlockNumber: batch.BlockNumber,
	})
}

// fromCache re-quotes the cached plan shape only. Any miss along the way
// falls back to full routing.
func (svc *Service) fromCache(ctx context.Context, r *domain.SwapRequest, optimizer *router.Optimizer, logger zerolog.Logger) (*domain.SwapPlan, bool) {
	if svc.cache == nil || svc.blocks == nil {
		return nil, false
	}
	head, err := svc.blocks.BlockNumber(ctx)
	if err != nil {
		return nil, false
	}
	key := NewRouteKey(r)
	cached, ok := svc.cache.Get(key, head)
	if !ok {
		return nil, false
	}

	requests := make([]quoter.QuoteRequest, 0, len(cached.Legs))
	seen := make(map[int]struct{}, len(cached.Legs))
	percents := make([]int, 0, len(cached.Legs))
	for _, leg := range cached.Legs {
		path, err := svc.registry.ResolvePath(r.TokenIn, leg.Pools)
		if err != nil || path.Output() != r.TokenOut || !svc.quotes.Supports(path, r.TradeType) {
			svc.cache.Invalidate(key)
			return nil, false
		}
		amount := new(big.Int).Mul(r.Amount, big.NewInt(int64(leg.Percent)))
		amount.Quo(amount, big.NewInt(100))
		requests = append(requests, quoter.QuoteRequest{
			Path:     path,
			Fraction: domain.TradeFraction{Percent: leg.Percent, Amount: amount},
		})
		if _, dup := seen[leg.Percent]; !dup {
			seen[leg.Percent] = struct{}{}
			percents = append(percents, leg.Percent)
		}
	}
	sort.Ints(percents)

	batch, err := svc.quotes.GetQuotesFor(ctx, requests, r.TradeType, svc.batch)
	if err != nil {
		logger.Debug().Err(err).Msg("cached route quote failed, routing from scratch")
		return nil, false
	}
	for _, q := range batch.Quotes {
		if q == nil {
			svc.cache.Invalidate(key)
			return nil, false
		}
	}

	plan, ok := svc.optimize(ctx, r, optimizer, batch, percents)
	if !ok || len(plan.Routes) != len(cached.Legs) {
		return nil, false
	}
	plan.FromCache = true
	return plan, true
}

func (svc *Service) remember(r *domain.SwapRequest, plan *domain.SwapPlan, logger zerolog.Logger) {
	if svc.cache == nil {
		return
	}
	route := RouteFromPlan(NewRouteKey(r), plan)
	svc.cache.Set(route)
	if svc.routes == nil {
		return
	}
	if err := svc.routes.SaveRoute(route.ToStored()); err != nil {
		logger.Warn().Err(err).Msg("failed to persist cached route")
	}
}
