package http

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/hxuan190/swap-router/internal/aggregator"
	"github.com/hxuan190/swap-router/internal/domain"
	"github.com/hxuan190/swap-router/internal/http/httputil"
)

const (
	defaultSlippageBps = 50
	maxSlippageBps     = 5000
	maxSplitsParam     = 7
)

// SwapRouter is the slice of the aggregator the quote endpoint needs.
type SwapRouter interface {
	FindBestSwap(ctx context.Context, req *domain.SwapRequest) (*domain.SwapPlan, error)
}

type QuoteHandler struct {
	router  SwapRouter
	timeout time.Duration
}

func NewQuoteHandler(router SwapRouter, timeout time.Duration) *QuoteHandler {
	return &QuoteHandler{router: router, timeout: timeout}
}

func (h *QuoteHandler) SetRoutes(pub *gin.RouterGroup) {
	pub.GET("", h.getQuote)
}

func (h *QuoteHandler) Root() string {
	return "/quote"
}

// QuoteRequest represents the parameters for requesting a swap quote
type QuoteRequest struct {
	// Input token address (0x-prefixed hex)
	TokenIn string `form:"tokenIn" binding:"required" example:"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"`

	// Output token address (0x-prefixed hex)
	TokenOut string `form:"tokenOut" binding:"required" example:"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"`

	// Amount in the token's smallest unit. It is the input amount for
	// ExactIn and the desired output for ExactOut.
	Amount string `form:"amount" binding:"required" example:"1000000000000000000"`

	// How the amount is interpreted
	TradeType string `form:"tradeType" enums:"ExactIn,ExactOut" example:"ExactIn"`

	// Split bounds; zero uses the server defaults
	MinSplits int `form:"minSplits" example:"1"`
	MaxSplits int `form:"maxSplits" example:"3"`

	// Require at least one V2 and one V3 route in the plan
	ForceCrossProtocol bool `form:"forceCrossProtocol" example:"false"`

	// Slippage tolerance in basis points (1 bps = 0.01%). Default: 50
	SlippageBps uint16 `form:"slippageBps" example:"50"`
}

// PoolInfo is one hop of a route.
type PoolInfo struct {
	Address  string `json:"address" example:"0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640"`
	Protocol string `json:"protocol" example:"V3"`
	// Fee in hundredths of a bip (500 = 0.05%)
	Fee uint32 `json:"fee" example:"500"`
}

// RouteInfo is one route of the plan and the share of the amount it carries.
type RouteInfo struct {
	Percent  int    `json:"percent" example:"60"`
	Protocol string `json:"protocol" example:"V3"`
	// Portion of the requested amount sent through this route
	Amount string `json:"amount" example:"600000000000000000"`
	// Quoted output (ExactIn) or required input (ExactOut) of this route
	Quote       string     `json:"quote" example:"1520330000"`
	GasEstimate string     `json:"gasEstimate" example:"135000"`
	TokenPath   []string   `json:"tokenPath"`
	Pools       []PoolInfo `json:"pools"`
}

// QuoteResponse is the selected plan.
type QuoteResponse struct {
	TokenIn   string `json:"tokenIn"`
	TokenOut  string `json:"tokenOut"`
	TradeType string `json:"tradeType" example:"ExactIn"`
	Amount    string `json:"amount" example:"1000000000000000000"`

	// Total quoted output (ExactIn) or required input (ExactOut)
	Quote string `json:"quote" example:"2533880000"`
	// Quote net of gas, in the quote token
	QuoteGasAdjusted    string `json:"quoteGasAdjusted" example:"2531200000"`
	EstimatedGasUsed    string `json:"estimatedGasUsed" example:"270000"`
	GasCostInQuoteToken string `json:"gasCostInQuoteToken" example:"2680000"`
	GasCostInUSD        string `json:"gasCostInUSD" example:"2680000"`
	// Data posting fee on rollups, already included in the gas cost
	L1SettlementFee string `json:"l1SettlementFee" example:"0"`

	// Minimum output (ExactIn) or maximum input (ExactOut) after slippage
	OtherAmountThreshold string `json:"otherAmountThreshold" example:"2521210600"`
	SlippageBps          uint16 `json:"slippageBps" example:"50"`

	Routes      []RouteInfo `json:"routes"`
	BlockNumber uint64      `json:"blockNumber" example:"21000000"`
	// True when the plan reused a recently winning route shape
	FromCache bool `json:"fromCache"`
}

func (h *QuoteHandler) parseQuoteRequest(c *gin.Context) (*domain.SwapRequest, uint16, bool) {
	var req QuoteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httputil.BadRequest(c, "invalid query parameters: "+err.Error())
		return nil, 0, false
	}

	if !common.IsHexAddress(req.TokenIn) {
		httputil.BadRequest(c, "invalid tokenIn address")
		return nil, 0, false
	}
	if !common.IsHexAddress(req.TokenOut) {
		httputil.BadRequest(c, "invalid tokenOut address")
		return nil, 0, false
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		httputil.BadRequest(c, "invalid amount: must be a positive integer")
		return nil, 0, false
	}

	var tradeType domain.TradeType
	switch req.TradeType {
	case "", "ExactIn":
		tradeType = domain.ExactInput
	case "ExactOut":
		tradeType = domain.ExactOutput
	default:
		httputil.BadRequest(c, "invalid tradeType: must be ExactIn or ExactOut")
		return nil, 0, false
	}

	if req.MinSplits < 0 || req.MaxSplits < 0 || req.MaxSplits > maxSplitsParam {
		httputil.BadRequest(c, "invalid split bounds")
		return nil, 0, false
	}

	slippageBps := req.SlippageBps
	if slippageBps == 0 {
		slippageBps = defaultSlippageBps
	}
	if slippageBps > maxSlippageBps {
		httputil.BadRequest(c, "invalid slippageBps: must be at most 5000")
		return nil, 0, false
	}

	return &domain.SwapRequest{
		TokenIn:            common.HexToAddress(req.TokenIn),
		TokenOut:           common.HexToAddress(req.TokenOut),
		Amount:             amount,
		TradeType:          tradeType,
		MinSplits:          req.MinSplits,
		MaxSplits:          req.MaxSplits,
		ForceCrossProtocol: req.ForceCrossProtocol,
	}, slippageBps, true
}

// otherAmountThreshold bounds what the caller accepts at execution time.
// Exact input: quote * (10000 - bps) / 10000. Exact output: quote * 10000 /
// (10000 - bps), dividing by (1 - slippage) rather than multiplying by
// (1 + slippage) which would understate the maximum input.
func otherAmountThreshold(quote *big.Int, tradeType domain.TradeType, slippageBps uint16) *big.Int {
	out := new(big.Int)
	if tradeType == domain.ExactInput {
		out.Mul(quote, big.NewInt(int64(10000-int(slippageBps))))
		return out.Div(out, big.NewInt(10000))
	}
	out.Mul(quote, big.NewInt(10000))
	// round up so the bound is never below the exact requirement
	divisor := big.NewInt(int64(10000 - int(slippageBps)))
	out.Add(out, new(big.Int).Sub(divisor, big.NewInt(1)))
	return out.Div(out, divisor)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func buildQuoteResponse(req *domain.SwapRequest, plan *domain.SwapPlan, slippageBps uint16) QuoteResponse {
	routes := make([]RouteInfo, 0, len(plan.Routes))
	for _, r := range plan.Routes {
		pools := make([]PoolInfo, len(r.Path.Pools))
		for i, p := range r.Path.Pools {
			pools[i] = PoolInfo{Address: p.Address.Hex(), Protocol: p.Protocol.String(), Fee: p.Fee}
		}
		tokens := make([]string, len(r.Path.Tokens))
		for i, t := range r.Path.Tokens {
			tokens[i] = t.Hex()
		}
		routes = append(routes, RouteInfo{
			Percent:     r.Percent,
			Protocol:    r.Path.Protocol.String(),
			Amount:      bigString(r.Amount),
			Quote:       bigString(r.Quote),
			GasEstimate: bigString(r.GasEstimate),
			TokenPath:   tokens,
			Pools:       pools,
		})
	}

	return QuoteResponse{
		TokenIn:              req.TokenIn.Hex(),
		TokenOut:             req.TokenOut.Hex(),
		TradeType:            plan.TradeType.String(),
		Amount:               bigString(plan.Amount),
		Quote:                bigString(plan.Quote),
		QuoteGasAdjusted:     bigString(plan.QuoteGasAdjusted),
		EstimatedGasUsed:     bigString(plan.EstimatedGasUsed),
		GasCostInQuoteToken:  bigString(plan.GasCostInQuoteToken),
		GasCostInUSD:         bigString(plan.GasCostInUSD),
		L1SettlementFee:      bigString(plan.L1SettlementFee),
		OtherAmountThreshold: otherAmountThreshold(plan.Quote, plan.TradeType, slippageBps).String(),
		SlippageBps:          slippageBps,
		Routes:               routes,
		BlockNumber:          plan.BlockNumber,
		FromCache:            plan.FromCache,
	}
}

// @Summary Get swap quote
// @Description Find the best way to trade amount of tokenIn for tokenOut across V2, V3 and mixed routes.
// @Description The amount may be split over several routes that share no pool; every quote comes from one block.
// @Description
// @Description **Amount Format:** smallest token units (wei for ETH, 1 USDC = 1000000)
// @Description
// @Description **Trade Types:**
// @Description - ExactIn: amount is the exact input, quote is the output
// @Description - ExactOut: amount is the exact output, quote is the required input (V3 routes only)
// @Tags quote
// @Produce json
// @Param tokenIn query string true "Input token address" example("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
// @Param tokenOut query string true "Output token address" example("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
// @Param amount query string true "Amount in smallest token units" example("1000000000000000000")
// @Param tradeType query string false "ExactIn or ExactOut" Enums(ExactIn, ExactOut) default(ExactIn)
// @Param minSplits query int false "Minimum routes in the plan"
// @Param maxSplits query int false "Maximum routes in the plan"
// @Param forceCrossProtocol query bool false "Require both V2 and V3 liquidity"
// @Param slippageBps query int false "Slippage tolerance in basis points. Default: 50" default(50)
// @Success 200 {object} QuoteResponse "Selected swap plan"
// @Failure 400 {object} httputil.Response "Invalid request parameters"
// @Failure 404 {object} httputil.Response "No route found between the token pair"
// @Failure 502 {object} httputil.Response "Quote acquisition failed against the node"
// @Failure 503 {object} httputil.Response "No pools loaded yet"
// @Router /api/v1/quote [get]
func (h *QuoteHandler) getQuote(c *gin.Context) {
	req, slippageBps, ok := h.parseQuoteRequest(c)
	if !ok {
		return
	}

	ctx := aggregator.WithRequestID(c.Request.Context(), c.GetString(httputil.RequestIDKey))
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	plan, err := h.router.FindBestSwap(ctx, req)
	if err != nil {
		httputil.HandleError(c, err)
		return
	}

	httputil.Success(c, buildQuoteResponse(req, plan, slippageBps))
}
