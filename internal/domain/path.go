package domain

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrEmptyPath        = errors.New("path has no pools")
	ErrDisconnectedPath = errors.New("path pools do not connect input to output")
)

// Path is an ordered, immutable sequence of pools from Input to Output.
// It is shared read-only by every quote derived from it.
type Path struct {
	Protocol Protocol
	Pools    []*Pool
	// Tokens has len(Pools)+1 entries: Tokens[0] == Input, Tokens[n] == Output.
	Tokens []common.Address

	id string
}

// NewPath validates that pools connect input to output and tags the path
// with V2, V3 or Mixed depending on the pools it touches.
func NewPath(input common.Address, pools []*Pool) (*Path, error) {
	if len(pools) == 0 {
		return nil, ErrEmptyPath
	}

	tokens := make([]common.Address, 0, len(pools)+1)
	tokens = append(tokens, input)
	current := input
	hasV2, hasV3 := false, false
	for _, pool := range pools {
		if pool == nil || !pool.Involves(current) {
			return nil, ErrDisconnectedPath
		}
		current = pool.Other(current)
		tokens = append(tokens, current)
		switch pool.Protocol {
		case ProtocolV2:
			hasV2 = true
		default:
			hasV3 = true
		}
	}

	protocol := ProtocolV3
	switch {
	case hasV2 && hasV3:
		protocol = ProtocolMixed
	case hasV2:
		protocol = ProtocolV2
	}

	p := &Path{
		Protocol: protocol,
		Pools:    pools,
		Tokens:   tokens,
	}
	p.id = p.buildID()
	return p, nil
}

func (p *Path) buildID() string {
	var sb strings.Builder
	sb.WriteString(p.Protocol.String())
	for _, pool := range p.Pools {
		sb.WriteByte(':')
		sb.WriteString(strings.ToLower(pool.Address.Hex()))
	}
	return sb.String()
}

// ID is a stable identifier derived from protocol and pool addresses.
func (p *Path) ID() string {
	return p.id
}

func (p *Path) Input() common.Address {
	return p.Tokens[0]
}

func (p *Path) Output() common.Address {
	return p.Tokens[len(p.Tokens)-1]
}

func (p *Path) HopCount() int {
	return len(p.Pools)
}

// PoolAddresses lists the pools touched by the path, in hop order.
func (p *Path) PoolAddresses() []common.Address {
	out := make([]common.Address, len(p.Pools))
	for i, pool := range p.Pools {
		out[i] = pool.Address
	}
	return out
}

// SharesPool reports whether any pool of p is in used.
func (p *Path) SharesPool(used map[common.Address]struct{}) bool {
	for _, pool := range p.Pools {
		if _, ok := used[pool.Address]; ok {
			return true
		}
	}
	return false
}
