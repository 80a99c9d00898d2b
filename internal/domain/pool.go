package domain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Protocol tags the AMM variant a pool or path belongs to.
type Protocol uint8

const (
	ProtocolV2 Protocol = iota
	ProtocolV3
	ProtocolMixed
)

func (p Protocol) String() string {
	switch p {
	case ProtocolV2:
		return "V2"
	case ProtocolV3:
		return "V3"
	case ProtocolMixed:
		return "MIXED"
	default:
		return "UNKNOWN"
	}
}

// ParseProtocol is the inverse of Protocol.String.
func ParseProtocol(s string) (Protocol, bool) {
	switch strings.ToUpper(s) {
	case "V2":
		return ProtocolV2, true
	case "V3":
		return ProtocolV3, true
	case "MIXED":
		return ProtocolMixed, true
	default:
		return 0, false
	}
}

// V2FeeFlag marks a V2 hop inside a mixed-route encoded path.
const V2FeeFlag uint32 = 0x800000

// V2PoolFee is the constant V2 LP fee expressed in hundredths of a bip.
const V2PoolFee uint32 = 3000

// Token is the minimal currency metadata the router needs.
type Token struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// Pool is a single on-chain liquidity venue. Only V2 and V3 are valid pool
// protocols; Mixed exists only at the path level.
type Pool struct {
	Address  common.Address `json:"address"`
	Protocol Protocol       `json:"protocol"`
	Token0   common.Address `json:"token0"`
	Token1   common.Address `json:"token1"`
	// Fee in hundredths of a bip (500 = 0.05%). Ignored for V2.
	Fee uint32 `json:"fee"`
	// Liquidity is a ranking hint for candidate selection; may be nil.
	Liquidity *big.Int `json:"liquidity,omitempty"`
}

func (p *Pool) Involves(token common.Address) bool {
	return p.Token0 == token || p.Token1 == token
}

// Other returns the token on the opposite side of the pool.
func (p *Pool) Other(token common.Address) common.Address {
	if p.Token0 == token {
		return p.Token1
	}
	return p.Token0
}

// EncodedFee is the 3-byte fee used in packed quoter paths.
func (p *Pool) EncodedFee() uint32 {
	if p.Protocol == ProtocolV2 {
		return V2FeeFlag
	}
	return p.Fee
}
