package http

import (
	"context"
	"encoding/json"
	"math/big"
	gohttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/swap-router/internal/aggregator"
	"github.com/hxuan190/swap-router/internal/common"
	"github.com/hxuan190/swap-router/internal/domain"
	"github.com/hxuan190/swap-router/internal/http/httputil"
	"github.com/hxuan190/swap-router/internal/services/quoter"
)

var (
	weth = gethcommon.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc = gethcommon.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

type stubRouter struct {
	plan     *domain.SwapPlan
	err      error
	got      *domain.SwapRequest
	deadline bool
}

func (s *stubRouter) FindBestSwap(ctx context.Context, req *domain.SwapRequest) (*domain.SwapPlan, error) {
	s.got = req
	_, s.deadline = ctx.Deadline()
	return s.plan, s.err
}

type stubPools struct{ pools []*domain.Pool }

func (s stubPools) All() []*domain.Pool { return s.pools }
func (s stubPools) Len() int            { return len(s.pools) }
func (s stubPools) Pool(addr gethcommon.Address) (*domain.Pool, bool) {
	for _, p := range s.pools {
		if p.Address == addr {
			return p, true
		}
	}
	return nil, false
}

func testPool(addr string, protocol domain.Protocol) *domain.Pool {
	return &domain.Pool{Address: gethcommon.HexToAddress(addr), Protocol: protocol, Token0: usdc, Token1: weth, Fee: 500}
}

func testPlan(t *testing.T) *domain.SwapPlan {
	pool := testPool("0x01", domain.ProtocolV3)
	path, err := domain.NewPath(weth, []*domain.Pool{pool})
	require.NoError(t, err)
	q := &domain.PathQuote{Path: path, Percent: 100, Amount: big.NewInt(1000), Quote: big.NewInt(2000), GasEstimate: big.NewInt(100_000)}
	route := domain.NewRouteWithValidQuote(q, domain.ExactInput, big.NewInt(100_000), big.NewInt(10), big.NewInt(0))
	return &domain.SwapPlan{
		TradeType:           domain.ExactInput,
		Amount:              big.NewInt(1000),
		Routes:              []*domain.RouteWithValidQuote{route},
		Quote:               big.NewInt(2000),
		QuoteGasAdjusted:    big.NewInt(1990),
		EstimatedGasUsed:    big.NewInt(100_000),
		GasCostInQuoteToken: big.NewInt(10),
		GasCostInUSD:        big.NewInt(0),
		BlockNumber:         42,
	}
}

func newTestEngine(router SwapRouter, pools PoolSource) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewEngine(nil, func() bool { return pools.Len() > 0 },
		NewPoolHandler(pools, func() int { return 3 }),
		NewQuoteHandler(router, 0),
	)
}

func get(t *testing.T, engine *gin.Engine, url string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(gohttp.MethodGet, url, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func quoteURL(extra string) string {
	return "/api/v1/quote?tokenIn=" + weth.Hex() + "&tokenOut=" + usdc.Hex() + "&amount=1000" + extra
}

func TestGetQuote(t *testing.T) {
	router := &stubRouter{plan: testPlan(t)}
	engine := newTestEngine(router, stubPools{})

	w, body := get(t, engine, quoteURL("&maxSplits=2&forceCrossProtocol=true&slippageBps=100"))
	require.Equal(t, gohttp.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["requestId"])

	data := body["data"].(map[string]any)
	assert.Equal(t, "2000", data["quote"])
	assert.Equal(t, "1990", data["quoteGasAdjusted"])
	assert.Equal(t, "1980", data["otherAmountThreshold"])
	assert.Equal(t, float64(42), data["blockNumber"])
	routes := data["routes"].([]any)
	require.Len(t, routes, 1)
	route := routes[0].(map[string]any)
	assert.Equal(t, float64(100), route["percent"])
	assert.Equal(t, "V3", route["protocol"])

	require.NotNil(t, router.got)
	assert.Equal(t, weth, router.got.TokenIn)
	assert.Equal(t, domain.ExactInput, router.got.TradeType)
	assert.Equal(t, 2, router.got.MaxSplits)
	assert.True(t, router.got.ForceCrossProtocol)
	assert.False(t, router.deadline)
}

func TestGetQuoteExactOutput(t *testing.T) {
	plan := testPlan(t)
	plan.TradeType = domain.ExactOutput
	router := &stubRouter{plan: plan}
	engine := newTestEngine(router, stubPools{})

	w, body := get(t, engine, quoteURL("&tradeType=ExactOut"))
	require.Equal(t, gohttp.StatusOK, w.Code)
	assert.Equal(t, domain.ExactOutput, router.got.TradeType)
	// 2000 * 10000 / 9950, rounded up
	assert.Equal(t, "2011", body["data"].(map[string]any)["otherAmountThreshold"])
}

func TestGetQuoteRejectsBadParams(t *testing.T) {
	engine := newTestEngine(&stubRouter{}, stubPools{})
	cases := map[string]string{
		"missing":    "/api/v1/quote?tokenIn=" + weth.Hex(),
		"token":      "/api/v1/quote?tokenIn=xyz&tokenOut=" + usdc.Hex() + "&amount=1",
		"amount":     quoteURL("0x"),
		"trade type": quoteURL("&tradeType=Both"),
		"splits":     quoteURL("&maxSplits=99"),
		"slippage":   quoteURL("&slippageBps=9000"),
	}
	for name, url := range cases {
		t.Run(name, func(t *testing.T) {
			w, body := get(t, engine, url)
			assert.Equal(t, gohttp.StatusBadRequest, w.Code)
			assert.Equal(t, "BAD_REQUEST", body["code"])
		})
	}
}

func TestGetQuoteMapsRouterErrors(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
	}{
		"no route":  {&aggregator.NoRouteFoundError{TokenIn: weth, TokenOut: usdc, Reason: "no candidate paths"}, gohttp.StatusNotFound},
		"exhausted": {&quoter.ExhaustedError{Attempts: 3}, gohttp.StatusBadGateway},
		"not ready": {aggregator.ErrNotReady, gohttp.StatusServiceUnavailable},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			engine := newTestEngine(&stubRouter{err: tc.err}, stubPools{})
			w, body := get(t, engine, quoteURL(""))
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, false, body["success"])
		})
	}
}

func TestQuoteHandlerAppliesTimeout(t *testing.T) {
	router := &stubRouter{plan: testPlan(t)}
	gin.SetMode(gin.TestMode)
	engine := NewEngine(nil, nil, NewQuoteHandler(router, time.Second))
	w, _ := get(t, engine, quoteURL(""))
	require.Equal(t, gohttp.StatusOK, w.Code)
	assert.True(t, router.deadline)
}

func TestPoolEndpoints(t *testing.T) {
	pools := stubPools{pools: []*domain.Pool{
		testPool("0x01", domain.ProtocolV3),
		testPool("0x02", domain.ProtocolV2),
		testPool("0x03", domain.ProtocolV3),
	}}
	engine := newTestEngine(&stubRouter{}, pools)

	w, body := get(t, engine, "/api/v1/pools/stats")
	require.Equal(t, gohttp.StatusOK, w.Code)
	stats := body["data"].(map[string]any)
	assert.Equal(t, float64(3), stats["pool_count"])
	assert.Equal(t, float64(3), stats["cached_routes"])

	w, body = get(t, engine, "/api/v1/pools/list?page=2&limit=2")
	require.Equal(t, gohttp.StatusOK, w.Code)
	list := body["data"].(map[string]any)
	assert.Equal(t, float64(2), list["pages"])
	assert.Len(t, list["pools"], 1)

	w, body = get(t, engine, "/api/v1/pools/"+gethcommon.HexToAddress("0x02").Hex())
	require.Equal(t, gohttp.StatusOK, w.Code)
	detail := body["data"].(map[string]any)
	assert.Equal(t, "V2", detail["protocol"])
	assert.Equal(t, float64(domain.V2PoolFee), detail["fee"])

	w, _ = get(t, engine, "/api/v1/pools/"+gethcommon.HexToAddress("0x09").Hex())
	assert.Equal(t, gohttp.StatusNotFound, w.Code)
	w, _ = get(t, engine, "/api/v1/pools/nothex")
	assert.Equal(t, gohttp.StatusBadRequest, w.Code)
}

func TestHealthReflectsReadiness(t *testing.T) {
	w, body := get(t, newTestEngine(&stubRouter{}, stubPools{}), "/health")
	assert.Equal(t, gohttp.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "loading", body["status"])

	w, _ = get(t, newTestEngine(&stubRouter{}, stubPools{pools: []*domain.Pool{testPool("0x01", domain.ProtocolV3)}}), "/health")
	assert.Equal(t, gohttp.StatusOK, w.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	engine := newTestEngine(&stubRouter{plan: testPlan(t)}, stubPools{})
	req := httptest.NewRequest(gohttp.MethodGet, quoteURL(""), nil)
	req.Header.Set(common.RequestIDHeader, "req-7")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var resp httputil.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "req-7", resp.RequestID)
	assert.Equal(t, "req-7", w.Header().Get(common.RequestIDHeader))
}
