package quoter

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/hxuan190/swap-router/internal/domain"
)

// Both quoters return the same tuple; only QuoterV2 knows exact output.
const quoterV2ABI = `[
	{
		"inputs": [
			{"internalType": "bytes", "name": "path", "type": "bytes"},
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"}
		],
		"name": "quoteExactInput",
		"outputs": [
			{"internalType": "uint256", "name": "amountOut", "type": "uint256"},
			{"internalType": "uint160[]", "name": "sqrtPriceX96AfterList", "type": "uint160[]"},
			{"internalType": "uint32[]", "name": "initializedTicksCrossedList", "type": "uint32[]"},
			{"internalType": "uint256", "name": "gasEstimate", "type": "uint256"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "bytes", "name": "path", "type": "bytes"},
			{"internalType": "uint256", "name": "amountOut", "type": "uint256"}
		],
		"name": "quoteExactOutput",
		"outputs": [
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
			{"internalType": "uint160[]", "name": "sqrtPriceX96AfterList", "type": "uint160[]"},
			{"internalType": "uint32[]", "name": "initializedTicksCrossedList", "type": "uint32[]"},
			{"internalType": "uint256", "name": "gasEstimate", "type": "uint256"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

const mixedRouteQuoterV1ABI = `[
	{
		"inputs": [
			{"internalType": "bytes", "name": "path", "type": "bytes"},
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"}
		],
		"name": "quoteExactInput",
		"outputs": [
			{"internalType": "uint256", "name": "amountOut", "type": "uint256"},
			{"internalType": "uint160[]", "name": "v3SqrtPriceX96AfterList", "type": "uint160[]"},
			{"internalType": "uint32[]", "name": "v3InitializedTicksCrossedList", "type": "uint32[]"},
			{"internalType": "uint256", "name": "v3SwapGasEstimate", "type": "uint256"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

const (
	methodQuoteExactInput  = "quoteExactInput"
	methodQuoteExactOutput = "quoteExactOutput"
)

var ErrUnexpectedQuoteOutput = errors.New("unexpected quoter output layout")

// QuoteResult is the decoded payload of one quoter call.
type QuoteResult struct {
	Amount                      *big.Int
	SqrtPriceX96AfterList       []*big.Int
	InitializedTicksCrossedList []uint32
	GasEstimate                 *big.Int
}

// QuoteCodec builds quoter calldata for a path and decodes the results.
type QuoteCodec struct {
	quoterV2    abi.ABI
	mixedQuoter abi.ABI

	quoterV2Address    common.Address
	mixedQuoterAddress common.Address
}

func NewQuoteCodec(quoterV2Address, mixedQuoterAddress common.Address) (*QuoteCodec, error) {
	v2, err := abi.JSON(strings.NewReader(quoterV2ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse QuoterV2 ABI: %w", err)
	}
	mixed, err := abi.JSON(strings.NewReader(mixedRouteQuoterV1ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse MixedRouteQuoterV1 ABI: %w", err)
	}
	return &QuoteCodec{
		quoterV2:           v2,
		mixedQuoter:        mixed,
		quoterV2Address:    quoterV2Address,
		mixedQuoterAddress: mixedQuoterAddress,
	}, nil
}

// EncodePath packs token(20) | fee(3) | token(20) ... in trade order. Exact
// output paths are packed from output back to input.
func EncodePath(path *domain.Path, tradeType domain.TradeType) []byte {
	hops := path.HopCount()
	out := make([]byte, 0, 20*(hops+1)+3*hops)

	if tradeType == domain.ExactOutput {
		for i := hops; i > 0; i-- {
			out = append(out, path.Tokens[i].Bytes()...)
			out = appendFee(out, path.Pools[i-1].EncodedFee())
		}
		return append(out, path.Tokens[0].Bytes()...)
	}

	for i := 0; i < hops; i++ {
		out = append(out, path.Tokens[i].Bytes()...)
		out = appendFee(out, path.Pools[i].EncodedFee())
	}
	return append(out, path.Tokens[hops].Bytes()...)
}

func appendFee(b []byte, fee uint32) []byte {
	return append(b, byte(fee>>16), byte(fee>>8), byte(fee))
}

func (c *QuoteCodec) contract(path *domain.Path) (abi.ABI, common.Address) {
	if path.Protocol == domain.ProtocolV3 {
		return c.quoterV2, c.quoterV2Address
	}
	return c.mixedQuoter, c.mixedQuoterAddress
}

func methodFor(tradeType domain.TradeType) string {
	if tradeType == domain.ExactOutput {
		return methodQuoteExactOutput
	}
	return methodQuoteExactInput
}

// Supports reports whether path can be quoted in the trade direction with
// the configured contracts. Mixed and V2 paths need the mixed-route quoter
// and only quote exact input.
func (c *QuoteCodec) Supports(path *domain.Path, tradeType domain.TradeType) bool {
	if path.Protocol == domain.ProtocolV3 {
		return true
	}
	return tradeType == domain.ExactInput && c.mixedQuoterAddress != (common.Address{})
}

// EncodeCall builds the simulated quoter call for one (path, amount).
func (c *QuoteCodec) EncodeCall(path *domain.Path, tradeType domain.TradeType, amount *big.Int) (Call, error) {
	if tradeType == domain.ExactOutput && path.Protocol != domain.ProtocolV3 {
		return Call{}, &ConfigurationError{
			Reason: fmt.Sprintf("exact output is not quotable on %s path %s", path.Protocol, path.ID()),
		}
	}
	parsed, target := c.contract(path)
	data, err := parsed.Pack(methodFor(tradeType), EncodePath(path, tradeType), amount)
	if err != nil {
		return Call{}, fmt.Errorf("failed to pack quote call for %s: %w", path.ID(), err)
	}
	return Call{Target: target, CallData: data}, nil
}

// Decode unpacks a quoter return payload.
func (c *QuoteCodec) Decode(path *domain.Path, tradeType domain.TradeType, data []byte) (*QuoteResult, error) {
	parsed, _ := c.contract(path)
	values, err := parsed.Unpack(methodFor(tradeType), data)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	if len(values) != 4 {
		return nil, &DecodeError{Path: path, Err: ErrUnexpectedQuoteOutput}
	}

	amount, ok1 := values[0].(*big.Int)
	sqrtPrices, ok2 := values[1].([]*big.Int)
	ticks, ok3 := values[2].([]uint32)
	gas, ok4 := values[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, &DecodeError{Path: path, Err: ErrUnexpectedQuoteOutput}
	}

	return &QuoteResult{
		Amount:                      amount,
		SqrtPriceX96AfterList:       sqrtPrices,
		InitializedTicksCrossedList: ticks,
		GasEstimate:                 gas,
	}, nil
}

// PackResult encodes a quoter return payload. Test doubles and simulated
// transports use it to answer calls.
func (c *QuoteCodec) PackResult(path *domain.Path, tradeType domain.TradeType, r *QuoteResult) ([]byte, error) {
	parsed, _ := c.contract(path)
	method, ok := parsed.Methods[methodFor(tradeType)]
	if !ok {
		return nil, fmt.Errorf("method %s not found", methodFor(tradeType))
	}
	return method.Outputs.Pack(r.Amount, r.SqrtPriceX96AfterList, r.InitializedTicksCrossedList, r.GasEstimate)
}

// UnpackArgs decodes the (path, amount) arguments of an encoded call.
func (c *QuoteCodec) UnpackArgs(call Call) (method string, path []byte, amount *big.Int, err error) {
	if len(call.CallData) < 4 {
		return "", nil, nil, ErrUnexpectedQuoteOutput
	}
	parsed := c.quoterV2
	if call.Target == c.mixedQuoterAddress && call.Target != c.quoterV2Address {
		parsed = c.mixedQuoter
	}
	m, err := parsed.MethodById(call.CallData[:4])
	if err != nil {
		return "", nil, nil, err
	}
	args, err := m.Inputs.Unpack(call.CallData[4:])
	if err != nil {
		return "", nil, nil, err
	}
	if len(args) != 2 {
		return "", nil, nil, ErrUnexpectedQuoteOutput
	}
	p, ok1 := args[0].([]byte)
	a, ok2 := args[1].(*big.Int)
	if !ok1 || !ok2 {
		return "", nil, nil, ErrUnexpectedQuoteOutput
	}
	return m.Name, p, a, nil
}
