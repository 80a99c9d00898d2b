package quoter

import (
	"errors"
	"time"
)

// LowSuccessRatePolicy decides what happens when a chunk decodes fewer
// elements than MinSuccessRate.
type LowSuccessRatePolicy uint8

const (
	// RetryLowSuccessRateOnce fails the chunk the first time the request sees
	// a low success rate and keeps partial results on every later occurrence.
	// Sparse liquidity would otherwise retry until MaxAttempts.
	RetryLowSuccessRateOnce LowSuccessRatePolicy = iota
	// AlwaysRetryLowSuccessRate fails the chunk on every occurrence.
	AlwaysRetryLowSuccessRate
)

// Override replaces chunk size and per-call gas after a failure kind.
// Zero fields fall back to the derived adjustment.
type Override struct {
	ChunkSize       int
	GasLimitPerCall uint64
}

type RollbackPolicy struct {
	Enabled                bool
	AttemptsBeforeRollback int
	RollbackBlockOffset    uint64
}

// BatchParams tunes the executor. Defaults are chosen per chain.
type BatchParams struct {
	ChunkSize       int
	GasLimitPerCall uint64
	MinSuccessRate  float64
	MaxAttempts     int
	BaseBlockOffset uint64
	Rollback        RollbackPolicy

	OutOfGasOverride    Override
	SuccessRateOverride Override
	LowSuccessRate      LowSuccessRatePolicy

	// UnderReportsCallGas is a chain capability: exhausted out-of-gas chunks
	// become "no quote" instead of an error.
	UnderReportsCallGas bool

	CallTimeout time.Duration
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

func DefaultBatchParams() BatchParams {
	return BatchParams{
		ChunkSize:       150,
		GasLimitPerCall: 1_000_000,
		MinSuccessRate:  0.2,
		MaxAttempts:     3,
		Rollback: RollbackPolicy{
			Enabled:                true,
			AttemptsBeforeRollback: 1,
			RollbackBlockOffset:    10,
		},
		OutOfGasOverride:    Override{ChunkSize: 110, GasLimitPerCall: 1_300_000},
		SuccessRateOverride: Override{ChunkSize: 110, GasLimitPerCall: 1_300_000},
		CallTimeout:         10 * time.Second,
		MinBackoff:          25 * time.Millisecond,
		MaxBackoff:          250 * time.Millisecond,
	}
}

func (p BatchParams) Validate() error {
	if p.ChunkSize <= 0 {
		return errors.New("batch params: ChunkSize must be positive")
	}
	if p.GasLimitPerCall == 0 {
		return errors.New("batch params: GasLimitPerCall must be positive")
	}
	if p.MinSuccessRate < 0 || p.MinSuccessRate > 1 {
		return errors.New("batch params: MinSuccessRate must be within [0,1]")
	}
	if p.MaxAttempts <= 0 {
		return errors.New("batch params: MaxAttempts must be positive")
	}
	if p.Rollback.Enabled && p.Rollback.AttemptsBeforeRollback <= 0 {
		return errors.New("batch params: AttemptsBeforeRollback must be positive")
	}
	return nil
}
