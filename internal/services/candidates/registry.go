package candidates

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/hxuan190/swap-router/internal/adapters/persistence"
	"github.com/hxuan190/swap-router/internal/domain"
	"github.com/hxuan190/swap-router/internal/services/gas"
)

var ErrUnknownPool = errors.New("pool not in registry")

// SeedFile is the on-disk bootstrap format for pools and token metadata.
type SeedFile struct {
	Tokens []persistence.StoredToken `json:"tokens"`
	Pools  []persistence.StoredPool  `json:"pools"`
}

func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed SeedFile
	if err := sonic.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return &seed, nil
}

// Registry holds the pool graph used for path discovery. Pools are keyed by
// address and indexed by token; adjacency lists stay ordered by liquidity.
type Registry struct {
	mu      sync.RWMutex
	pools   map[common.Address]*domain.Pool
	byToken map[common.Address][]*domain.Pool
	tokens  map[common.Address]domain.Token
	prices  map[common.Address]decimal.Decimal
}

func NewRegistry() *Registry {
	return &Registry{
		pools:   make(map[common.Address]*domain.Pool),
		byToken: make(map[common.Address][]*domain.Pool),
		tokens:  make(map[common.Address]domain.Token),
		prices:  make(map[common.Address]decimal.Decimal),
	}
}

// Upsert adds or replaces pools.
func (r *Registry) Upsert(pools ...*domain.Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	touched := make(map[common.Address]struct{})
	for _, p := range pools {
		if old, ok := r.pools[p.Address]; ok {
			r.unindex(old)
		}
		r.pools[p.Address] = p
		r.byToken[p.Token0] = append(r.byToken[p.Token0], p)
		r.byToken[p.Token1] = append(r.byToken[p.Token1], p)
		touched[p.Token0] = struct{}{}
		touched[p.Token1] = struct{}{}
	}
	for token := range touched {
		sortByLiquidity(r.byToken[token])
	}
}

func (r *Registry) unindex(p *domain.Pool) {
	for _, token := range []common.Address{p.Token0, p.Token1} {
		list := r.byToken[token]
		for i, q := range list {
			if q.Address == p.Address {
				r.byToken[token] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
	}
}

// liquidityOf ranks a missing hint below any known one.
func liquidityOf(p *domain.Pool) int {
	if p.Liquidity == nil {
		return -1
	}
	return p.Liquidity.Sign()
}

func sortByLiquidity(pools []*domain.Pool) {
	sort.SliceStable(pools, func(i, j int) bool {
		a, b := pools[i], pools[j]
		switch {
		case a.Liquidity != nil && b.Liquidity != nil:
			if c := a.Liquidity.Cmp(b.Liquidity); c != 0 {
				return c > 0
			}
		case liquidityOf(a) != liquidityOf(b):
			return liquidityOf(a) > liquidityOf(b)
		}
		return a.Address.Hex() < b.Address.Hex()
	})
}

func (r *Registry) Pool(addr common.Address) (*domain.Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[addr]
	return p, ok
}

// PoolsFor returns the pools touching token, most liquid first.
func (r *Registry) PoolsFor(token common.Address) []*domain.Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.byToken[token]
	out := make([]*domain.Pool, len(list))
	copy(out, list)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}

// All returns every pool ordered by address.
func (r *Registry) All() []*domain.Pool {
	r.mu.RLock()
	out := make([]*domain.Pool, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Hex() < out[j].Address.Hex() })
	return out
}

func (r *Registry) AddToken(token domain.Token, priceUSD decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.Address] = token
	if priceUSD.Sign() > 0 {
		r.prices[token.Address] = priceUSD
	}
}

func (r *Registry) Token(addr common.Address) (domain.Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[addr]
	return t, ok
}

// TokenPrice values a known, priced token. Registry satisfies
// gas.PriceOracle.
func (r *Registry) TokenPrice(addr common.Address) (gas.TokenPrice, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[addr]
	if !ok {
		return gas.TokenPrice{}, false
	}
	p, ok := r.prices[addr]
	return gas.TokenPrice{Decimals: t.Decimals, USD: p}, ok
}

// LoadSeed converts and registers every valid record of a seed file. It
// returns the pools that were accepted.
func (r *Registry) LoadSeed(seed *SeedFile) ([]*domain.Pool, error) {
	for _, st := range seed.Tokens {
		token, price, err := persistence.StoredToToken(st)
		if err != nil {
			return nil, err
		}
		r.AddToken(token, price)
	}
	pools := make([]*domain.Pool, 0, len(seed.Pools))
	for i := range seed.Pools {
		p, err := persistence.StoredToPool(&seed.Pools[i])
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	r.Upsert(pools...)
	return pools, nil
}

// ResolvePath rebuilds a path from pool addresses in hop order.
func (r *Registry) ResolvePath(input common.Address, poolAddrs []common.Address) (*domain.Path, error) {
	pools := make([]*domain.Pool, len(poolAddrs))
	for i, addr := range poolAddrs {
		p, ok := r.Pool(addr)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPool, addr.Hex())
		}
		pools[i] = p
	}
	return domain.NewPath(input, pools)
}
