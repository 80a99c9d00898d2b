package http

import (
	"strconv"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/hxuan190/swap-router/internal/common"
	"github.com/hxuan190/swap-router/internal/domain"
	"github.com/hxuan190/swap-router/internal/http/httputil"
)

// PoolSource is the read side of the pool registry.
type PoolSource interface {
	All() []*domain.Pool
	Pool(addr gethcommon.Address) (*domain.Pool, bool)
	Len() int
}

type PoolHandler struct {
	pools     PoolSource
	cacheSize func() int
}

func NewPoolHandler(pools PoolSource, cacheSize func() int) *PoolHandler {
	return &PoolHandler{pools: pools, cacheSize: cacheSize}
}

func (h *PoolHandler) SetRoutes(pub *gin.RouterGroup) {
	pub.GET("/stats", h.getStats)
	pub.GET("/list", h.listPools)
	pub.GET("/:address", h.getPool)
}

func (h *PoolHandler) Root() string {
	return "/pools"
}

// PoolStatsResponse summarises the routing state
type PoolStatsResponse struct {
	// Pools available for candidate selection
	PoolCount int `json:"pool_count" example:"1247"`

	// Route shapes currently cached
	CachedRoutes int `json:"cached_routes" example:"38"`
}

// @Summary Pool statistics
// @Tags pools
// @Produce json
// @Success 200 {object} PoolStatsResponse
// @Router /api/v1/pools/stats [get]
func (h *PoolHandler) getStats(c *gin.Context) {
	cached := 0
	if h.cacheSize != nil {
		cached = h.cacheSize()
	}
	httputil.Success(c, PoolStatsResponse{
		PoolCount:    h.pools.Len(),
		CachedRoutes: cached,
	})
}

// PoolDetail is the registry view of a pool
type PoolDetail struct {
	Address  string `json:"address" example:"0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640"`
	Protocol string `json:"protocol" example:"V3"`
	Token0   string `json:"token0" example:"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"`
	Token1   string `json:"token1" example:"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"`
	// Fee in hundredths of a bip; V2 pools report 3000
	Fee uint32 `json:"fee" example:"500"`
	// Ranking hint used by candidate selection, empty when unknown
	Liquidity string `json:"liquidity,omitempty" example:"3312512394203490"`
}

// PoolListResponse contains paginated list of liquidity pools
type PoolListResponse struct {
	Pools []PoolDetail `json:"pools"`

	// Total number of pools across all pages
	Total int `json:"total" example:"1247"`

	// Current page number (1-indexed)
	Page int `json:"page" example:"1"`

	// Number of pools per page (max 500)
	Limit int `json:"limit" example:"100"`

	Pages int `json:"pages" example:"13"`
}

func toPoolDetail(p *domain.Pool) PoolDetail {
	d := PoolDetail{
		Address:  p.Address.Hex(),
		Protocol: p.Protocol.String(),
		Token0:   p.Token0.Hex(),
		Token1:   p.Token1.Hex(),
		Fee:      p.Fee,
	}
	if p.Protocol == domain.ProtocolV2 {
		d.Fee = domain.V2PoolFee
	}
	if p.Liquidity != nil {
		d.Liquidity = p.Liquidity.String()
	}
	return d
}

// @Summary List pools
// @Tags pools
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size, max 500" default(100)
// @Success 200 {object} PoolListResponse
// @Router /api/v1/pools/list [get]
func (h *PoolHandler) listPools(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(common.DefaultPageLimit)))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = common.DefaultPageLimit
	}
	if limit > common.MaxPageLimit {
		limit = common.MaxPageLimit
	}

	all := h.pools.All()
	total := len(all)

	pages := (total + limit - 1) / limit
	offset := (page - 1) * limit
	end := offset + limit
	if offset > total {
		offset = total
	}
	if end > total {
		end = total
	}

	pools := make([]PoolDetail, 0, end-offset)
	for _, p := range all[offset:end] {
		pools = append(pools, toPoolDetail(p))
	}

	httputil.Success(c, PoolListResponse{
		Pools: pools,
		Total: total,
		Page:  page,
		Limit: limit,
		Pages: pages,
	})
}

// @Summary Get pool
// @Tags pools
// @Produce json
// @Param address path string true "Pool address"
// @Success 200 {object} PoolDetail
// @Failure 400 {object} httputil.Response
// @Failure 404 {object} httputil.Response
// @Router /api/v1/pools/{address} [get]
func (h *PoolHandler) getPool(c *gin.Context) {
	address := c.Param("address")
	if !gethcommon.IsHexAddress(address) {
		httputil.BadRequest(c, "invalid pool address")
		return
	}

	pool, ok := h.pools.Pool(gethcommon.HexToAddress(address))
	if !ok {
		httputil.NotFound(c, "pool not found")
		return
	}
	httputil.Success(c, toPoolDetail(pool))
}
