package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/semaphore"

	"github.com/hxuan190/swap-router/internal/metrics"
	"github.com/hxuan190/swap-router/internal/services/quoter"
)

// UniswapInterfaceMulticall: every inner call gets its own gas limit and
// reports gas used, so out-of-gas elements stay element-local.
const multicallABIJSON = `[
  {"type":"function","name":"multicall","stateMutability":"nonpayable",
   "inputs":[{"name":"calls","type":"tuple[]","components":[
     {"name":"target","type":"address"},
     {"name":"gasLimit","type":"uint256"},
     {"name":"callData","type":"bytes"}]}],
   "outputs":[
     {"name":"blockNumber","type":"uint256"},
     {"name":"returnData","type":"tuple[]","components":[
       {"name":"success","type":"bool"},
       {"name":"gasUsed","type":"uint256"},
       {"name":"returnData","type":"bytes"}]}]}
]`

var multicallABI = mustParseABI(multicallABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded abi: %v", err))
	}
	return parsed
}

type multicallCall struct {
	Target   common.Address
	GasLimit *big.Int
	CallData []byte
}

type multicallResult struct {
	Success    bool
	GasUsed    *big.Int
	ReturnData []byte
}

// MulticallChannel batches quoter calls into one eth_call against the
// multicall contract.
type MulticallChannel struct {
	caller    ethereum.ContractCaller
	multicall common.Address
	limiter   ratelimit.Limiter
	inflight  *semaphore.Weighted
	logger    zerolog.Logger
}

// NewMulticallChannel builds a channel. ratePerSecond 0 disables rate
// limiting; maxInflight bounds concurrent batches.
func NewMulticallChannel(caller ethereum.ContractCaller, multicall common.Address, ratePerSecond, maxInflight int) *MulticallChannel {
	limiter := ratelimit.NewUnlimited()
	if ratePerSecond > 0 {
		limiter = ratelimit.New(ratePerSecond)
	}
	if maxInflight <= 0 {
		maxInflight = 1
	}
	return &MulticallChannel{
		caller:    caller,
		multicall: multicall,
		limiter:   limiter,
		inflight:  semaphore.NewWeighted(int64(maxInflight)),
		logger:    log.With().Str("component", "multicall").Logger(),
	}
}

func (m *MulticallChannel) CallBatch(ctx context.Context, calls []quoter.Call, gasLimitPerCall uint64, blockNumber uint64) (*quoter.BatchResponse, error) {
	gasLimit := new(big.Int).SetUint64(gasLimitPerCall)
	packed := make([]multicallCall, len(calls))
	for i, c := range calls {
		packed[i] = multicallCall{Target: c.Target, GasLimit: gasLimit, CallData: c.CallData}
	}
	data, err := multicallABI.Pack("multicall", packed)
	if err != nil {
		return nil, &quoter.TransportError{Kind: quoter.FailureUnknown, Err: err}
	}

	if err := m.inflight.Acquire(ctx, 1); err != nil {
		return nil, &quoter.TransportError{Kind: quoter.FailureTimeout, Err: err}
	}
	defer m.inflight.Release(1)
	m.limiter.Take()

	var block *big.Int
	if blockNumber > 0 {
		block = new(big.Int).SetUint64(blockNumber)
	}
	to := m.multicall
	raw, err := m.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, block)
	if err != nil {
		kind := classifyRPCError(err)
		metrics.RPCCalls.WithLabelValues("multicall", kind.String()).Inc()
		m.logger.Debug().Err(err).Str("kind", kind.String()).Int("calls", len(calls)).Msg("batch call failed")
		return nil, &quoter.TransportError{Kind: kind, Err: err}
	}

	resp, err := decodeMulticall(raw)
	if err != nil {
		metrics.RPCCalls.WithLabelValues("multicall", "malformed").Inc()
		return nil, &quoter.TransportError{Kind: quoter.FailureUnknown, Err: err}
	}
	metrics.RPCCalls.WithLabelValues("multicall", "ok").Inc()
	return resp, nil
}

func decodeMulticall(raw []byte) (*quoter.BatchResponse, error) {
	out, err := multicallABI.Unpack("multicall", raw)
	if err != nil {
		return nil, fmt.Errorf("unpack multicall: %w", err)
	}
	if len(out) != 2 {
		return nil, fmt.Errorf("unpack multicall: %d outputs", len(out))
	}
	blockNumber, ok := out[0].(*big.Int)
	if !ok || !blockNumber.IsUint64() {
		return nil, errors.New("unpack multicall: bad block number")
	}
	results := *abi.ConvertType(out[1], new([]multicallResult)).(*[]multicallResult)

	resp := &quoter.BatchResponse{
		BlockNumber: blockNumber.Uint64(),
		Results:     make([]quoter.CallResult, len(results)),
	}
	for i, r := range results {
		var used uint64
		if r.GasUsed != nil && r.GasUsed.IsUint64() {
			used = r.GasUsed.Uint64()
		}
		resp.Results[i] = quoter.CallResult{Success: r.Success, GasUsed: used, ReturnData: r.ReturnData}
	}
	return resp, nil
}

// classifyRPCError maps node error messages onto failure kinds. Providers
// word these differently, so matching is by substring.
func classifyRPCError(err error) quoter.FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return quoter.FailureTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "header not found"),
		strings.Contains(msg, "unknown block"),
		strings.Contains(msg, "block not found"):
		return quoter.FailureBlockHeaderUnavailable
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "deadline exceeded"):
		return quoter.FailureTimeout
	case strings.Contains(msg, "out of gas"),
		strings.Contains(msg, "gas required exceeds"),
		strings.Contains(msg, "exceeds block gas limit"):
		return quoter.FailureOutOfGas
	default:
		return quoter.FailureUnknown
	}
}
