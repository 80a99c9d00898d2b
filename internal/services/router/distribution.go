package router

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/hxuan190/swap-router/internal/domain"
)

var ErrInvalidDistribution = errors.New("distribution percent must be in (0, 100] and divide 100")

// Fractions splits amount into 100/distributionPercent buckets at
// distributionPercent, 2*distributionPercent, ..., 100 percent. Bucket
// amounts are floored; the optimizer reconciles the shortfall.
func Fractions(amount *big.Int, distributionPercent int) ([]domain.TradeFraction, error) {
	if distributionPercent <= 0 || distributionPercent > 100 || 100%distributionPercent != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDistribution, distributionPercent)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errors.New("amount must be positive")
	}

	n := 100 / distributionPercent
	out := make([]domain.TradeFraction, 0, n)
	hundred := big.NewInt(100)
	for i := 1; i <= n; i++ {
		percent := i * distributionPercent
		amt := new(big.Int).Mul(amount, big.NewInt(int64(percent)))
		amt.Quo(amt, hundred)
		out = append(out, domain.TradeFraction{Percent: percent, Amount: amt})
	}
	return out, nil
}

// Percents lists the bucket percents of fractions in the same order.
func Percents(fractions []domain.TradeFraction) []int {
	out := make([]int, len(fractions))
	for i, f := range fractions {
		out[i] = f.Percent
	}
	return out
}
