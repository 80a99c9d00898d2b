package quoter

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/swap-router/internal/domain"
)

var (
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	dai  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")

	quoterV2Addr    = common.HexToAddress("0x61fFE014bA17989E743c5F6cB21bF9697530B21e")
	mixedQuoterAddr = common.HexToAddress("0x84E44095eeBfEC7793Cd7d5b57B7e401D7f1cA2E")
)

func mustPath(t testing.TB, input common.Address, pools ...*domain.Pool) *domain.Path {
	t.Helper()
	p, err := domain.NewPath(input, pools)
	require.NoError(t, err)
	return p
}

func v3Pool(addr string, a, b common.Address, fee uint32) *domain.Pool {
	return &domain.Pool{Address: common.HexToAddress(addr), Protocol: domain.ProtocolV3, Token0: a, Token1: b, Fee: fee}
}

func v2Pool(addr string, a, b common.Address) *domain.Pool {
	return &domain.Pool{Address: common.HexToAddress(addr), Protocol: domain.ProtocolV2, Token0: a, Token1: b, Fee: domain.V2PoolFee}
}

func TestEncodePathLayout(t *testing.T) {
	path := mustPath(t, weth,
		v3Pool("0x01", weth, usdc, 500),
		v2Pool("0x02", usdc, dai),
	)
	require.Equal(t, domain.ProtocolMixed, path.Protocol)

	in := EncodePath(path, domain.ExactInput)
	require.Len(t, in, 20*3+3*2)
	assert.Equal(t, weth.Bytes(), in[0:20])
	assert.Equal(t, []byte{0x00, 0x01, 0xf4}, in[20:23])
	assert.Equal(t, usdc.Bytes(), in[23:43])
	assert.Equal(t, []byte{0x80, 0x00, 0x00}, in[43:46])
	assert.Equal(t, dai.Bytes(), in[46:66])

	out := EncodePath(path, domain.ExactOutput)
	assert.Equal(t, dai.Bytes(), out[0:20])
	assert.Equal(t, []byte{0x80, 0x00, 0x00}, out[20:23])
	assert.Equal(t, weth.Bytes(), out[46:66])
}

func TestQuoteCodecRoundTrip(t *testing.T) {
	codec, err := NewQuoteCodec(quoterV2Addr, mixedQuoterAddr)
	require.NoError(t, err)

	path := mustPath(t, weth, v3Pool("0x01", weth, usdc, 500))
	call, err := codec.EncodeCall(path, domain.ExactInput, big.NewInt(1e18))
	require.NoError(t, err)
	assert.Equal(t, quoterV2Addr, call.Target)

	method, encoded, amount, err := codec.UnpackArgs(call)
	require.NoError(t, err)
	assert.Equal(t, "quoteExactInput", method)
	assert.Equal(t, EncodePath(path, domain.ExactInput), encoded)
	assert.Equal(t, 0, amount.Cmp(big.NewInt(1e18)))

	want := &QuoteResult{
		Amount:                      big.NewInt(3_000_000_000),
		SqrtPriceX96AfterList:       []*big.Int{big.NewInt(42)},
		InitializedTicksCrossedList: []uint32{2},
		GasEstimate:                 big.NewInt(85_000),
	}
	data, err := codec.PackResult(path, domain.ExactInput, want)
	require.NoError(t, err)

	got, err := codec.Decode(path, domain.ExactInput, data)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Amount.Cmp(want.Amount))
	assert.Equal(t, []uint32{2}, got.InitializedTicksCrossedList)
	assert.Equal(t, 0, got.GasEstimate.Cmp(want.GasEstimate))
}

func TestQuoteCodecRejectsExactOutputOnV2(t *testing.T) {
	codec, err := NewQuoteCodec(quoterV2Addr, mixedQuoterAddr)
	require.NoError(t, err)

	path := mustPath(t, usdc, v2Pool("0x02", usdc, dai))
	_, err = codec.EncodeCall(path, domain.ExactOutput, big.NewInt(1))
	var cfg *ConfigurationError
	require.ErrorAs(t, err, &cfg)

	call, err := codec.EncodeCall(path, domain.ExactInput, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, mixedQuoterAddr, call.Target)
}

func TestQuoteCodecDecodeGarbage(t *testing.T) {
	codec, err := NewQuoteCodec(quoterV2Addr, mixedQuoterAddr)
	require.NoError(t, err)

	path := mustPath(t, weth, v3Pool("0x01", weth, usdc, 500))
	_, err = codec.Decode(path, domain.ExactInput, []byte{1, 2, 3, 4})
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

// quotingCaller prices every call at amount*rate and fails calls whose
// amount equals failAmount.
type quotingCaller struct {
	codec      *QuoteCodec
	rate       int64
	failAmount *big.Int
}

func (q *quotingCaller) CallBatch(_ context.Context, calls []Call, _ uint64, block uint64) (*BatchResponse, error) {
	results := make([]CallResult, len(calls))
	for i, c := range calls {
		_, _, amount, err := q.codec.UnpackArgs(c)
		if err != nil {
			return nil, err
		}
		if q.failAmount != nil && amount.Cmp(q.failAmount) == 0 {
			results[i] = CallResult{Success: false, ReturnData: []byte{}}
			continue
		}
		data, err := q.codec.mixedQuoter.Methods[methodQuoteExactInput].Outputs.Pack(
			new(big.Int).Mul(amount, big.NewInt(q.rate)), []*big.Int{}, []uint32{}, big.NewInt(60_000),
		)
		if err != nil {
			return nil, err
		}
		results[i] = CallResult{Success: true, GasUsed: 100_000, ReturnData: data}
	}
	if block == 0 {
		block = 77
	}
	return &BatchResponse{BlockNumber: block, Results: results}, nil
}

func TestProviderGetQuotesPathMajor(t *testing.T) {
	codec, err := NewQuoteCodec(quoterV2Addr, mixedQuoterAddr)
	require.NoError(t, err)

	paths := []*domain.Path{
		mustPath(t, weth, v3Pool("0x01", weth, usdc, 500)),
		mustPath(t, weth, v2Pool("0x02", weth, usdc)),
	}
	fractions := []domain.TradeFraction{
		{Percent: 50, Amount: big.NewInt(500)},
		{Percent: 100, Amount: big.NewInt(1000)},
	}

	caller := &quotingCaller{codec: codec, rate: 3, failAmount: big.NewInt(500)}
	provider := NewOnChainQuoteProvider(codec, NewExecutor(caller, nil))

	batch, err := provider.GetQuotes(context.Background(), paths, fractions, domain.ExactInput, testParams())
	require.NoError(t, err)
	require.Len(t, batch.Quotes, 4)
	assert.Equal(t, uint64(77), batch.BlockNumber)

	assert.Nil(t, batch.Quotes[0])
	assert.Nil(t, batch.Quotes[2])
	require.NotNil(t, batch.Quotes[1])
	require.NotNil(t, batch.Quotes[3])

	assert.Same(t, paths[0], batch.Quotes[1].Path)
	assert.Same(t, paths[1], batch.Quotes[3].Path)
	assert.Equal(t, 100, batch.Quotes[3].Percent)
	assert.Equal(t, 0, batch.Quotes[3].Quote.Cmp(big.NewInt(3000)))
	assert.Len(t, batch.Valid(), 2)
	assert.Equal(t, uint64(100_000), batch.ApproxGasUsedPerSuccessCall)
}

func TestProviderDropsZeroAmountQuotes(t *testing.T) {
	codec, err := NewQuoteCodec(quoterV2Addr, mixedQuoterAddr)
	require.NoError(t, err)

	paths := []*domain.Path{mustPath(t, weth, v3Pool("0x01", weth, usdc, 500))}
	fractions := []domain.TradeFraction{{Percent: 100, Amount: big.NewInt(1000)}}
	provider := NewOnChainQuoteProvider(codec, NewExecutor(&quotingCaller{codec: codec, rate: 0}, nil))

	batch, err := provider.GetQuotes(context.Background(), paths, fractions, domain.ExactInput, testParams())
	require.NoError(t, err)
	require.Len(t, batch.Quotes, 1)
	assert.Nil(t, batch.Quotes[0])
	assert.Empty(t, batch.Valid())
}

func TestCodecSupports(t *testing.T) {
	codec, err := NewQuoteCodec(quoterV2Addr, mixedQuoterAddr)
	require.NoError(t, err)
	v3 := mustPath(t, weth, v3Pool("0x01", weth, usdc, 500))
	v2 := mustPath(t, weth, v2Pool("0x02", weth, usdc))

	assert.True(t, codec.Supports(v3, domain.ExactInput))
	assert.True(t, codec.Supports(v3, domain.ExactOutput))
	assert.True(t, codec.Supports(v2, domain.ExactInput))
	assert.False(t, codec.Supports(v2, domain.ExactOutput))

	noMixed, err := NewQuoteCodec(quoterV2Addr, common.Address{})
	require.NoError(t, err)
	assert.False(t, noMixed.Supports(v2, domain.ExactInput))
	assert.True(t, noMixed.Supports(v3, domain.ExactInput))
}
