package persistence

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	boltdb "github.com/andrew-solarstorm/bolt-db"
	"github.com/bytedance/sonic"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hxuan190/swap-router/internal/domain"
)

const (
	PoolsBucket  = "pools"
	TokensBucket = "tokens"
	RoutesBucket = "routes"

	DefaultDBPath = "./data/swap-router.db"
)

var ErrInvalidRecord = errors.New("invalid stored record")

type StoredPool struct {
	Address   string `json:"address"`
	Protocol  string `json:"protocol"`
	Token0    string `json:"token0"`
	Token1    string `json:"token1"`
	Fee       uint32 `json:"fee"`
	Liquidity string `json:"liquidity,omitempty"`
}

type StoredToken struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	PriceUSD string `json:"priceUsd,omitempty"`
}

// StoredRouteLeg is one route of a cached plan: the pools it crosses, in
// hop order, and its percent of the trade.
type StoredRouteLeg struct {
	Pools   []string `json:"pools"`
	Percent int      `json:"percent"`
}

// StoredRoute is the shape of a previously winning plan.
type StoredRoute struct {
	Key         string           `json:"key"`
	TokenIn     string           `json:"tokenIn"`
	TokenOut    string           `json:"tokenOut"`
	TradeType   uint8            `json:"tradeType"`
	Magnitude   int              `json:"magnitude"`
	Legs        []StoredRouteLeg `json:"legs"`
	BlockNumber uint64           `json:"blockNumber"`
}

type Storage struct {
	db     *boltdb.BoltDatabase
	dbPath string
}

func NewStorage(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database dir: %w", err)
	}

	db := boltdb.NewBoltDatabase(dbPath)
	if db == nil {
		return nil, fmt.Errorf("failed to open database at %s", dbPath)
	}

	log.Info().Str("path", dbPath).Msg("[storage] opened database")

	return &Storage{
		db:     db,
		dbPath: dbPath,
	}, nil
}

func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Storage) SavePoolBatch(pools []*domain.Pool) error {
	if len(pools) == 0 {
		return nil
	}

	batch := s.db.NewBatch()
	for _, pool := range pools {
		data, err := sonic.Marshal(PoolToStored(pool))
		if err != nil {
			return fmt.Errorf("failed to marshal pool %s: %w", pool.Address.Hex(), err)
		}

		value := data
		op := &boltdb.WriteOperation{
			Bucket: []byte(PoolsBucket),
			Key:    pool.Address.Bytes(),
			Value:  &value,
			Op:     boltdb.OpSet,
		}
		if err := batch.Add(op); err != nil {
			return fmt.Errorf("failed to add pool %s to batch: %w", pool.Address.Hex(), err)
		}
	}

	if err := batch.Execute(); err != nil {
		log.Error().Err(err).Int("count", len(pools)).Msg("[storage] failed to execute pool batch")
		return err
	}

	log.Info().Int("count", len(pools)).Msg("[storage] saved pool batch")
	return nil
}

func (s *Storage) LoadAllPools() ([]*domain.Pool, error) {
	data, err := s.db.List(PoolsBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}

	pools := make([]*domain.Pool, 0, len(data))
	failed := 0
	for key, value := range data {
		var stored StoredPool
		if err := sonic.Unmarshal(value, &stored); err != nil {
			log.Error().Str("key", common.BytesToAddress([]byte(key)).Hex()).Err(err).Msg("[storage] failed to unmarshal pool, skipping")
			failed++
			continue
		}
		pool, err := StoredToPool(&stored)
		if err != nil {
			log.Error().Str("address", stored.Address).Err(err).Msg("[storage] failed to convert stored pool, skipping")
			failed++
			continue
		}
		pools = append(pools, pool)
	}

	log.Info().
		Int("total_in_db", len(data)).
		Int("loaded", len(pools)).
		Int("failed", failed).
		Msg("[storage] pool loading completed")
	return pools, nil
}

func (s *Storage) SaveTokens(tokens []StoredToken) error {
	if len(tokens) == 0 {
		return nil
	}
	batch := s.db.NewBatch()
	for _, t := range tokens {
		data, err := sonic.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal token %s: %w", t.Address, err)
		}
		value := data
		if err := batch.Add(&boltdb.WriteOperation{
			Bucket: []byte(TokensBucket),
			Key:    common.HexToAddress(t.Address).Bytes(),
			Value:  &value,
			Op:     boltdb.OpSet,
		}); err != nil {
			return fmt.Errorf("failed to add token %s to batch: %w", t.Address, err)
		}
	}
	return batch.Execute()
}

func (s *Storage) LoadAllTokens() ([]StoredToken, error) {
	data, err := s.db.List(TokensBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	tokens := make([]StoredToken, 0, len(data))
	for _, value := range data {
		var t StoredToken
		if err := sonic.Unmarshal(value, &t); err != nil {
			log.Warn().Err(err).Msg("[storage] failed to unmarshal token, skipping")
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

func (s *Storage) SaveRoute(route *StoredRoute) error {
	data, err := sonic.Marshal(route)
	if err != nil {
		return fmt.Errorf("failed to marshal route: %w", err)
	}
	return s.db.Set(RoutesBucket, []byte(route.Key), data)
}

func (s *Storage) LoadAllRoutes() ([]*StoredRoute, error) {
	data, err := s.db.List(RoutesBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	routes := make([]*StoredRoute, 0, len(data))
	for key, value := range data {
		var r StoredRoute
		if err := sonic.Unmarshal(value, &r); err != nil {
			log.Warn().Str("key", key).Err(err).Msg("[storage] failed to unmarshal route, skipping")
			continue
		}
		routes = append(routes, &r)
	}
	return routes, nil
}

func PoolToStored(pool *domain.Pool) *StoredPool {
	stored := &StoredPool{
		Address:  pool.Address.Hex(),
		Protocol: pool.Protocol.String(),
		Token0:   pool.Token0.Hex(),
		Token1:   pool.Token1.Hex(),
		Fee:      pool.Fee,
	}
	if pool.Liquidity != nil {
		stored.Liquidity = pool.Liquidity.String()
	}
	return stored
}

func StoredToPool(stored *StoredPool) (*domain.Pool, error) {
	for _, addr := range []string{stored.Address, stored.Token0, stored.Token1} {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("%w: bad address %q", ErrInvalidRecord, addr)
		}
	}
	protocol, ok := domain.ParseProtocol(stored.Protocol)
	if !ok || protocol == domain.ProtocolMixed {
		return nil, fmt.Errorf("%w: bad pool protocol %q", ErrInvalidRecord, stored.Protocol)
	}

	pool := &domain.Pool{
		Address:  common.HexToAddress(stored.Address),
		Protocol: protocol,
		Token0:   common.HexToAddress(stored.Token0),
		Token1:   common.HexToAddress(stored.Token1),
		Fee:      stored.Fee,
	}
	if protocol == domain.ProtocolV2 {
		pool.Fee = domain.V2PoolFee
	}
	if stored.Liquidity != "" {
		liq, ok := new(big.Int).SetString(stored.Liquidity, 10)
		if !ok {
			return nil, fmt.Errorf("%w: bad liquidity %q", ErrInvalidRecord, stored.Liquidity)
		}
		pool.Liquidity = liq
	}
	return pool, nil
}

// StoredToToken converts a token record; the price is zero when absent.
func StoredToToken(stored StoredToken) (domain.Token, decimal.Decimal, error) {
	if !common.IsHexAddress(stored.Address) {
		return domain.Token{}, decimal.Zero, fmt.Errorf("%w: bad token address %q", ErrInvalidRecord, stored.Address)
	}
	price := decimal.Zero
	if stored.PriceUSD != "" {
		p, err := decimal.NewFromString(stored.PriceUSD)
		if err != nil {
			return domain.Token{}, decimal.Zero, fmt.Errorf("%w: bad price %q", ErrInvalidRecord, stored.PriceUSD)
		}
		price = p
	}
	return domain.Token{
		Address:  common.HexToAddress(stored.Address),
		Symbol:   stored.Symbol,
		Decimals: stored.Decimals,
	}, price, nil
}
