package aggregator

import (
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hxuan190/swap-router/internal/adapters/persistence"
	"github.com/hxuan190/swap-router/internal/domain"
	"github.com/hxuan190/swap-router/internal/metrics"
)

const (
	routeCacheMaxSize = 1024 // power of 2
	routeCacheShards  = 16
)

// FNV-1a constants for zero-allocation hashing
const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

// RouteKey groups requests that are likely to share a winning plan shape.
// Amounts are bucketed by decimal order of magnitude.
type RouteKey struct {
	TokenIn   common.Address
	TokenOut  common.Address
	TradeType domain.TradeType
	Magnitude int
}

func NewRouteKey(req *domain.SwapRequest) RouteKey {
	return RouteKey{
		TokenIn:   req.TokenIn,
		TokenOut:  req.TokenOut,
		TradeType: req.TradeType,
		Magnitude: magnitude(req.Amount),
	}
}

func magnitude(amount *big.Int) int {
	if amount == nil || amount.Sign() <= 0 {
		return 0
	}
	return len(amount.String()) - 1
}

func (k RouteKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%d", k.TokenIn.Hex(), k.TokenOut.Hex(), k.TradeType, k.Magnitude)
}

func (k RouteKey) hash() uint64 {
	h := uint64(fnvOffset64)
	for _, b := range k.TokenIn {
		h ^= uint64(b)
		h *= fnvPrime64
	}
	for _, b := range k.TokenOut {
		h ^= uint64(b)
		h *= fnvPrime64
	}
	h ^= uint64(k.TradeType)
	h *= fnvPrime64
	h ^= uint64(k.Magnitude)
	h *= fnvPrime64
	return h
}

// CachedLeg is one route of a cached plan.
type CachedLeg struct {
	Pools   []common.Address
	Percent int
}

// CachedRoute is the shape of a previously winning plan, without amounts.
type CachedRoute struct {
	Key         RouteKey
	Legs        []CachedLeg
	BlockNumber uint64
}

// RouteFromPlan captures the shape of plan.
func RouteFromPlan(key RouteKey, plan *domain.SwapPlan) *CachedRoute {
	legs := make([]CachedLeg, len(plan.Routes))
	for i, r := range plan.Routes {
		legs[i] = CachedLeg{Pools: r.Path.PoolAddresses(), Percent: r.Percent}
	}
	return &CachedRoute{Key: key, Legs: legs, BlockNumber: plan.BlockNumber}
}

func (r *CachedRoute) ToStored() *persistence.StoredRoute {
	legs := make([]persistence.StoredRouteLeg, len(r.Legs))
	for i, l := range r.Legs {
		pools := make([]string, len(l.Pools))
		for j, p := range l.Pools {
			pools[j] = p.Hex()
		}
		legs[i] = persistence.StoredRouteLeg{Pools: pools, Percent: l.Percent}
	}
	return &persistence.StoredRoute{
		Key:         r.Key.String(),
		TokenIn:     r.Key.TokenIn.Hex(),
		TokenOut:    r.Key.TokenOut.Hex(),
		TradeType:   uint8(r.Key.TradeType),
		Magnitude:   r.Key.Magnitude,
		Legs:        legs,
		BlockNumber: r.BlockNumber,
	}
}

// RouteFromStored rebuilds a cached route.
func RouteFromStored(s *persistence.StoredRoute) (*CachedRoute, error) {
	if !common.IsHexAddress(s.TokenIn) || !common.IsHexAddress(s.TokenOut) || len(s.Legs) == 0 {
		return nil, persistence.ErrInvalidRecord
	}
	key := RouteKey{
		TokenIn:   common.HexToAddress(s.TokenIn),
		TokenOut:  common.HexToAddress(s.TokenOut),
		TradeType: domain.TradeType(s.TradeType),
		Magnitude: s.Magnitude,
	}

	legs := make([]CachedLeg, len(s.Legs))
	for i, l := range s.Legs {
		if len(l.Pools) == 0 || l.Percent <= 0 || l.Percent > 100 {
			return nil, persistence.ErrInvalidRecord
		}
		pools := make([]common.Address, len(l.Pools))
		for j, p := range l.Pools {
			if !common.IsHexAddress(p) {
				return nil, persistence.ErrInvalidRecord
			}
			pools[j] = common.HexToAddress(p)
		}
		legs[i] = CachedLeg{Pools: pools, Percent: l.Percent}
	}
	return &CachedRoute{Key: key, Legs: legs, BlockNumber: s.BlockNumber}, nil
}

type routeEntry struct {
	key   uint64
	route *CachedRoute
	used  uint32 // clock bit
}

type routeShard struct {
	mu      sync.RWMutex
	entries []routeEntry
	size    int
	hand    int
}

// RouteCache is a sharded clock cache of winning plan shapes. Entries
// expire after ttlBlocks blocks.
type RouteCache struct {
	shards    [routeCacheShards]routeShard
	ttlBlocks uint64
}

func NewRouteCache(ttlBlocks uint64) *RouteCache {
	rc := &RouteCache{ttlBlocks: ttlBlocks}
	perShard := routeCacheMaxSize / routeCacheShards
	for i := 0; i < routeCacheShards; i++ {
		rc.shards[i].entries = make([]routeEntry, perShard)
	}
	return rc
}

func (rc *RouteCache) shard(key uint64) *routeShard {
	return &rc.shards[key%routeCacheShards]
}

func (rc *RouteCache) expired(r *CachedRoute, head uint64) bool {
	return head > r.BlockNumber+rc.ttlBlocks
}

// Get returns the route cached for key if it is still within its TTL at
// block head.
func (rc *RouteCache) Get(key RouteKey, head uint64) (*CachedRoute, bool) {
	h := key.hash()
	shard := rc.shard(h)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	for i := 0; i < shard.size; i++ {
		entry := &shard.entries[i]
		if entry.key == h && entry.route.Key == key {
			if rc.expired(entry.route, head) {
				metrics.RouteCacheMisses.Inc()
				return nil, false
			}
			atomic.StoreUint32(&entry.used, 1)
			metrics.RouteCacheHits.Inc()
			return entry.route, true
		}
	}
	metrics.RouteCacheMisses.Inc()
	return nil, false
}

func (rc *RouteCache) Set(route *CachedRoute) {
	rc.set(route)
	metrics.RouteCacheSize.Set(float64(rc.Size()))
}

func (rc *RouteCache) set(route *CachedRoute) {
	h := route.Key.hash()
	shard := rc.shard(h)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	for i := 0; i < shard.size; i++ {
		entry := &shard.entries[i]
		if entry.key == h && entry.route.Key == route.Key {
			entry.route = route
			atomic.StoreUint32(&entry.used, 1)
			return
		}
	}

	perShard := len(shard.entries)
	if shard.size < perShard {
		shard.entries[shard.size] = routeEntry{key: h, route: route, used: 1}
		shard.size++
		return
	}

	// clock eviction; unused or expired entries are replaced first
	for attempts := 0; attempts < perShard*2; attempts++ {
		entry := &shard.entries[shard.hand]
		shard.hand = (shard.hand + 1) % perShard
		if atomic.LoadUint32(&entry.used) == 0 || rc.expired(entry.route, route.BlockNumber) {
			*entry = routeEntry{key: h, route: route, used: 1}
			return
		}
		atomic.StoreUint32(&entry.used, 0)
	}

	shard.entries[shard.hand] = routeEntry{key: h, route: route, used: 1}
	shard.hand = (shard.hand + 1) % perShard
}

// Invalidate drops the entry for key, if any.
func (rc *RouteCache) Invalidate(key RouteKey) {
	h := key.hash()
	shard := rc.shard(h)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	for i := 0; i < shard.size; i++ {
		if shard.entries[i].key == h && shard.entries[i].route.Key == key {
			last := shard.size - 1
			shard.entries[i] = shard.entries[last]
			shard.entries[last] = routeEntry{}
			shard.size--
			if shard.hand >= shard.size {
				shard.hand = 0
			}
			return
		}
	}
}

func (rc *RouteCache) Size() int {
	total := 0
	for i := range rc.shards {
		s := &rc.shards[i]
		s.mu.RLock()
		total += s.size
		s.mu.RUnlock()
	}
	return total
}

// Routes snapshots every cached route.
func (rc *RouteCache) Routes() []*CachedRoute {
	var out []*CachedRoute
	for i := range rc.shards {
		s := &rc.shards[i]
		s.mu.RLock()
		for j := 0; j < s.size; j++ {
			out = append(out, s.entries[j].route)
		}
		s.mu.RUnlock()
	}
	return out
}
