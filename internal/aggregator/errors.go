package aggregator

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hxuan190/swap-router/internal/domain"
)

var (
	ErrInvalidRequest = errors.New("invalid swap request")
	ErrNotReady       = errors.New("router has no pools loaded")
)

// NoRouteFoundError means routing ran to completion and found no valid
// plan. It is a result, not a failure of the system.
type NoRouteFoundError struct {
	TokenIn   common.Address
	TokenOut  common.Address
	TradeType domain.TradeType
	Reason    string
}

func (e *NoRouteFoundError) Error() string {
	return fmt.Sprintf("no route found %s -> %s (%s): %s", e.TokenIn.Hex(), e.TokenOut.Hex(), e.TradeType, e.Reason)
}

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
