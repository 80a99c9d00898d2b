package blockchain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/swap-router/internal/config"
	"github.com/hxuan190/swap-router/internal/metrics"
)

const HEAD_CACHE_SERVICE = "cache-head-svc"

// OP-stack GasPriceOracle predeploy.
var gasPriceOracleAddress = common.HexToAddress("0x420000000000000000000000000000000000000F")

var gasPriceOracleABI = mustParseABI(`[
  {"type":"function","name":"l1BaseFee","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"uint256"}]}
]`)

// ChainReader is the slice of ethclient the cache needs.
type ChainReader interface {
	ethereum.ContractCaller
	BlockNumber(ctx context.Context) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

type CachedHead struct {
	BlockNumber uint64
	GasPriceWei *uint256.Int
	L1BaseFee   *uint256.Int
	UpdatedAt   time.Time
}

// HeadCacheService polls the chain head and gas price so routing requests
// do not pay an RPC round trip for them.
type HeadCacheService struct {
	container.BaseDIInstance

	mu      sync.RWMutex
	current *CachedHead
	client  ChainReader
	eth     *ethclient.Client
	ttl     time.Duration
	withL1  bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHeadCache builds a cache outside the container.
func NewHeadCache(client ChainReader, ttl time.Duration, withL1 bool) *HeadCacheService {
	return &HeadCacheService{client: client, ttl: ttl, withL1: withL1}
}

func (svc *HeadCacheService) ID() string {
	return HEAD_CACHE_SERVICE
}

func (svc *HeadCacheService) Configure(c container.IContainer) error {
	rpcConfig := c.GetConfig(config.RPC_CONFIG_KEY).(*config.RPCConfig)

	eth, err := ethclient.Dial(rpcConfig.RPCUrl)
	if err != nil {
		return err
	}
	svc.eth = eth
	svc.client = eth
	svc.ttl = rpcConfig.HeadRefreshInterval
	svc.withL1 = config.ChainParams(rpcConfig.ChainID).HasL1SettlementFee
	return nil
}

func (svc *HeadCacheService) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	svc.cancel = cancel
	svc.done = make(chan struct{})

	if _, err := svc.refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("[HeadCacheService] failed to fetch initial head, will retry on first request")
	}

	go svc.poll(ctx)
	log.Info().Dur("interval", svc.ttl).Bool("l1Fee", svc.withL1).Msg("[HeadCacheService] polling chain head")
	return nil
}

func (svc *HeadCacheService) Stop() error {
	if svc.cancel != nil {
		svc.cancel()
		<-svc.done
	}
	if svc.eth != nil {
		svc.eth.Close()
	}
	return nil
}

// CallContract forwards to the underlying client so batched calls share
// the same connection.
func (svc *HeadCacheService) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	return svc.client.CallContract(ctx, msg, block)
}

func (svc *HeadCacheService) poll(ctx context.Context) {
	defer close(svc.done)
	interval := svc.ttl
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.refresh(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("[HeadCacheService] head refresh failed")
			}
		}
	}
}

func (svc *HeadCacheService) refresh(ctx context.Context) (*CachedHead, error) {
	number, err := svc.client.BlockNumber(ctx)
	if err != nil {
		metrics.RPCCalls.WithLabelValues("eth_blockNumber", "error").Inc()
		return nil, err
	}
	metrics.RPCCalls.WithLabelValues("eth_blockNumber", "ok").Inc()

	head := &CachedHead{BlockNumber: number, UpdatedAt: time.Now()}

	price, err := svc.client.SuggestGasPrice(ctx)
	if err != nil {
		metrics.RPCCalls.WithLabelValues("eth_gasPrice", "error").Inc()
		return nil, err
	}
	metrics.RPCCalls.WithLabelValues("eth_gasPrice", "ok").Inc()
	wei, overflow := uint256.FromBig(price)
	if overflow {
		return nil, errors.New("gas price overflows uint256")
	}
	head.GasPriceWei = wei

	if svc.withL1 {
		fee, err := svc.fetchL1BaseFee(ctx)
		if err != nil {
			metrics.RPCCalls.WithLabelValues("l1BaseFee", "error").Inc()
			return nil, err
		}
		metrics.RPCCalls.WithLabelValues("l1BaseFee", "ok").Inc()
		head.L1BaseFee = fee
	}

	svc.mu.Lock()
	svc.current = head
	svc.mu.Unlock()

	metrics.BlockNumber.Set(float64(number))
	gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(price), big.NewFloat(1e9)).Float64()
	metrics.GasPriceGwei.Set(gwei)
	return head, nil
}

func (svc *HeadCacheService) fetchL1BaseFee(ctx context.Context) (*uint256.Int, error) {
	data, err := gasPriceOracleABI.Pack("l1BaseFee")
	if err != nil {
		return nil, err
	}
	to := gasPriceOracleAddress
	raw, err := svc.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	out, err := gasPriceOracleABI.Unpack("l1BaseFee", raw)
	if err != nil {
		return nil, err
	}
	fee, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.New("l1BaseFee: unexpected output")
	}
	v, overflow := uint256.FromBig(fee)
	if overflow {
		return nil, errors.New("l1BaseFee overflows uint256")
	}
	return v, nil
}

// Head returns the cached head when it is fresh, otherwise refetches. A
// failed refetch falls back to the stale value when there is one.
func (svc *HeadCacheService) Head(ctx context.Context) (*CachedHead, error) {
	svc.mu.RLock()
	cached := svc.current
	svc.mu.RUnlock()

	if cached != nil && time.Since(cached.UpdatedAt) < svc.ttl {
		return cached, nil
	}

	head, err := svc.refresh(ctx)
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		return nil, err
	}
	return head, nil
}

func (svc *HeadCacheService) BlockNumber(ctx context.Context) (uint64, error) {
	head, err := svc.Head(ctx)
	if err != nil {
		return 0, err
	}
	return head.BlockNumber, nil
}

func (svc *HeadCacheService) GasPrice(ctx context.Context) (*uint256.Int, error) {
	head, err := svc.Head(ctx)
	if err != nil {
		return nil, err
	}
	return head.GasPriceWei, nil
}

func (svc *HeadCacheService) L1BaseFee(ctx context.Context) (*uint256.Int, error) {
	head, err := svc.Head(ctx)
	if err != nil {
		return nil, err
	}
	if head.L1BaseFee == nil {
		return nil, errors.New("l1 base fee not tracked on this chain")
	}
	return head.L1BaseFee, nil
}
