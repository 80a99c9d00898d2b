package candidates

import (
	"errors"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hxuan190/swap-router/internal/domain"
	"github.com/hxuan190/swap-router/internal/metrics"
)

var (
	ErrNoCandidatePaths = errors.New("no candidate paths between tokens")
	ErrSameToken        = errors.New("token in and token out are identical")
)

// Provider enumerates candidate paths over the registry graph.
type Provider struct {
	registry *Registry
}

func NewProvider(registry *Registry) *Provider {
	return &Provider{registry: registry}
}

type candidate struct {
	path       *domain.Path
	bottleneck *big.Int
}

// CandidatePaths returns simple paths from tokenIn to tokenOut with at most
// maxHops pools, no token or pool repeated. Paths are ordered by hop count,
// then by their least liquid pool, then by id, and truncated to maxPaths.
func (p *Provider) CandidatePaths(tokenIn, tokenOut common.Address, maxHops, maxPaths int) ([]*domain.Path, error) {
	if tokenIn == tokenOut {
		return nil, ErrSameToken
	}
	if maxHops < 1 {
		maxHops = 1
	}

	var found []candidate
	visitedTokens := map[common.Address]bool{tokenIn: true}
	usedPools := make(map[common.Address]bool)
	stack := make([]*domain.Pool, 0, maxHops)

	var walk func(current common.Address)
	walk = func(current common.Address) {
		for _, pool := range p.registry.PoolsFor(current) {
			if usedPools[pool.Address] {
				continue
			}
			next := pool.Other(current)
			if visitedTokens[next] {
				continue
			}

			stack = append(stack, pool)
			if next == tokenOut {
				pools := make([]*domain.Pool, len(stack))
				copy(pools, stack)
				if path, err := domain.NewPath(tokenIn, pools); err == nil {
					found = append(found, candidate{path: path, bottleneck: bottleneck(pools)})
				}
			} else if len(stack) < maxHops {
				usedPools[pool.Address] = true
				visitedTokens[next] = true
				walk(next)
				delete(visitedTokens, next)
				delete(usedPools, pool.Address)
			}
			stack = stack[:len(stack)-1]
		}
	}
	walk(tokenIn)

	if len(found) == 0 {
		return nil, ErrNoCandidatePaths
	}

	sort.SliceStable(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.path.HopCount() != b.path.HopCount() {
			return a.path.HopCount() < b.path.HopCount()
		}
		if c := a.bottleneck.Cmp(b.bottleneck); c != 0 {
			return c > 0
		}
		return a.path.ID() < b.path.ID()
	})

	if maxPaths > 0 && len(found) > maxPaths {
		found = found[:maxPaths]
	}
	paths := make([]*domain.Path, len(found))
	for i, c := range found {
		paths[i] = c.path
	}
	metrics.CandidatePaths.Observe(float64(len(paths)))
	return paths, nil
}

// bottleneck is the smallest liquidity hint along the path; unknown hints
// count as zero.
func bottleneck(pools []*domain.Pool) *big.Int {
	var least *big.Int
	for _, pool := range pools {
		liq := pool.Liquidity
		if liq == nil {
			return new(big.Int)
		}
		if least == nil || liq.Cmp(least) < 0 {
			least = liq
		}
	}
	if least == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(least)
}
