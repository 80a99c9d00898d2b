package persistence

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/swap-router/internal/domain"
)

func TestPoolRecordRoundTrip(t *testing.T) {
	pool := &domain.Pool{
		Address:   common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640"),
		Protocol:  domain.ProtocolV3,
		Token0:    common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
		Token1:    common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		Fee:       500,
		Liquidity: big.NewInt(123456789),
	}
	back, err := StoredToPool(PoolToStored(pool))
	require.NoError(t, err)
	assert.Equal(t, pool, back)
}

func TestStoredV2PoolGetsConstantFee(t *testing.T) {
	stored := &StoredPool{
		Address:  common.HexToAddress("0x01").Hex(),
		Protocol: "v2",
		Token0:   common.HexToAddress("0x02").Hex(),
		Token1:   common.HexToAddress("0x03").Hex(),
	}
	pool, err := StoredToPool(stored)
	require.NoError(t, err)
	assert.Equal(t, domain.ProtocolV2, pool.Protocol)
	assert.Equal(t, domain.V2PoolFee, pool.Fee)
	assert.Nil(t, pool.Liquidity)
}

func TestStoredToPoolRejects(t *testing.T) {
	good := StoredPool{
		Address:  common.HexToAddress("0x01").Hex(),
		Protocol: "V3",
		Token0:   common.HexToAddress("0x02").Hex(),
		Token1:   common.HexToAddress("0x03").Hex(),
	}
	cases := map[string]func(*StoredPool){
		"address":   func(s *StoredPool) { s.Token1 = "0x12" },
		"mixed":     func(s *StoredPool) { s.Protocol = "MIXED" },
		"protocol":  func(s *StoredPool) { s.Protocol = "V4" },
		"liquidity": func(s *StoredPool) { s.Liquidity = "lots" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := good
			mutate(&s)
			_, err := StoredToPool(&s)
			assert.ErrorIs(t, err, ErrInvalidRecord)
		})
	}
}

func TestStoredToToken(t *testing.T) {
	token, price, err := StoredToToken(StoredToken{
		Address:  common.HexToAddress("0x02").Hex(),
		Symbol:   "USDC",
		Decimals: 6,
		PriceUSD: "1.0001",
	})
	require.NoError(t, err)
	assert.Equal(t, uint8(6), token.Decimals)
	assert.True(t, price.Equal(decimal.RequireFromString("1.0001")))

	_, price, err = StoredToToken(StoredToken{Address: common.HexToAddress("0x02").Hex()})
	require.NoError(t, err)
	assert.True(t, price.IsZero())

	_, _, err = StoredToToken(StoredToken{Address: "usdc"})
	assert.ErrorIs(t, err, ErrInvalidRecord)
	_, _, err = StoredToToken(StoredToken{Address: common.HexToAddress("0x02").Hex(), PriceUSD: "one"})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}
