package aggregator

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/swap-router/internal/adapters/persistence"
	"github.com/hxuan190/swap-router/internal/domain"
)

func cachedRoute(key RouteKey, block uint64) *CachedRoute {
	return &CachedRoute{
		Key:         key,
		Legs:        []CachedLeg{{Pools: []common.Address{common.HexToAddress("0x01")}, Percent: 100}},
		BlockNumber: block,
	}
}

func TestRouteKeyBucketsByMagnitude(t *testing.T) {
	a := NewRouteKey(exactIn(1_000))
	b := NewRouteKey(exactIn(9_999))
	c := NewRouteKey(exactIn(10_000))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, 3, a.Magnitude)
	assert.Equal(t, a.hash(), b.hash())

	out := exactIn(1_000)
	out.TradeType = domain.ExactOutput
	assert.NotEqual(t, a, NewRouteKey(out))
}

func TestRouteCacheExpiresByBlocks(t *testing.T) {
	rc := NewRouteCache(10)
	key := NewRouteKey(exactIn(1_000))
	rc.Set(cachedRoute(key, 100))

	got, ok := rc.Get(key, 110)
	require.True(t, ok)
	assert.Equal(t, uint64(100), got.BlockNumber)

	_, ok = rc.Get(key, 111)
	assert.False(t, ok)

	// a head behind the cached block is not a reason to drop it
	_, ok = rc.Get(key, 90)
	assert.True(t, ok)
}

func TestRouteCacheReplaceAndInvalidate(t *testing.T) {
	rc := NewRouteCache(10)
	key := NewRouteKey(exactIn(1_000))
	rc.Set(cachedRoute(key, 100))
	rc.Set(cachedRoute(key, 105))
	assert.Equal(t, 1, rc.Size())

	got, ok := rc.Get(key, 105)
	require.True(t, ok)
	assert.Equal(t, uint64(105), got.BlockNumber)

	rc.Invalidate(key)
	assert.Equal(t, 0, rc.Size())
	_, ok = rc.Get(key, 105)
	assert.False(t, ok)
}

func TestRouteCacheEvictsWhenFull(t *testing.T) {
	rc := NewRouteCache(10)
	total := routeCacheMaxSize * 2
	for i := 0; i < total; i++ {
		key := RouteKey{TokenIn: common.BigToAddress(big.NewInt(int64(i + 1))), TokenOut: usdc, Magnitude: i % 30}
		rc.Set(cachedRoute(key, uint64(i)))
	}
	assert.LessOrEqual(t, rc.Size(), routeCacheMaxSize)
	assert.Len(t, rc.Routes(), rc.Size())
}

func TestCachedRouteStoredRoundTrip(t *testing.T) {
	key := NewRouteKey(exactIn(123_456))
	route := &CachedRoute{
		Key: key,
		Legs: []CachedLeg{
			{Pools: []common.Address{common.HexToAddress("0x01"), common.HexToAddress("0x02")}, Percent: 60},
			{Pools: []common.Address{common.HexToAddress("0x03")}, Percent: 40},
		},
		BlockNumber: 77,
	}

	stored := route.ToStored()
	assert.Equal(t, key.String(), stored.Key)

	back, err := RouteFromStored(stored)
	require.NoError(t, err)
	assert.Equal(t, route, back)
}

func TestRouteFromStoredRejectsBadRecords(t *testing.T) {
	good := cachedRoute(NewRouteKey(exactIn(10)), 1).ToStored()

	cases := map[string]func(s *persistence.StoredRoute){
		"token":   func(s *persistence.StoredRoute) { s.TokenIn = "nope" },
		"no legs": func(s *persistence.StoredRoute) { s.Legs = nil },
		"percent": func(s *persistence.StoredRoute) { s.Legs[0].Percent = 0 },
		"pool":    func(s *persistence.StoredRoute) { s.Legs[0].Pools = []string{"0xzz"} },
	}
	for name, mutate := range cases {
		s := *good
		s.Legs = append([]persistence.StoredRouteLeg(nil), good.Legs...)
		mutate(&s)
		_, err := RouteFromStored(&s)
		assert.ErrorIs(t, err, persistence.ErrInvalidRecord, name)
	}
}
