package quoter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hxuan190/swap-router/internal/domain"
)

// FailureKind is the closed set of reasons a chunk can fail. Transports
// return it inside a TransportError; anything unrecognised is FailureUnknown.
type FailureKind uint8

const (
	FailureUnknown FailureKind = iota
	FailureBlockHeaderUnavailable
	FailureTimeout
	FailureOutOfGas
	FailureSuccessRate
	FailureBlockConflict

	numFailureKinds
)

func (k FailureKind) String() string {
	switch k {
	case FailureBlockHeaderUnavailable:
		return "block_header_unavailable"
	case FailureTimeout:
		return "timeout"
	case FailureOutOfGas:
		return "out_of_gas"
	case FailureSuccessRate:
		return "success_rate"
	case FailureBlockConflict:
		return "block_conflict"
	default:
		return "unknown"
	}
}

// FailureSet is a bitmask of failure kinds. It is a value type so RetryState
// copies stay independent.
type FailureSet uint16

func (s FailureSet) Has(k FailureKind) bool {
	return s&(1<<k) != 0
}

func (s FailureSet) With(k FailureKind) FailureSet {
	return s | (1 << k)
}

// RoundFailures counts failed chunks per kind in a single attempt round.
type RoundFailures [numFailureKinds]int

func (r RoundFailures) Any() bool {
	for _, n := range r {
		if n > 0 {
			return true
		}
	}
	return false
}

// Only reports whether k is the sole kind present in the round.
func (r RoundFailures) Only(k FailureKind) bool {
	for kind, n := range r {
		if FailureKind(kind) != k && n > 0 {
			return false
		}
	}
	return r[k] > 0
}

func (r RoundFailures) String() string {
	parts := make([]string, 0, len(r))
	for kind, n := range r {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", FailureKind(kind), n))
		}
	}
	return strings.Join(parts, ",")
}

// TransportError is returned by a BatchCaller when the batched call itself
// failed. The executor switches on Kind.
type TransportError struct {
	Kind FailureKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ClassifyError maps a transport error to its failure kind.
func ClassifyError(err error) FailureKind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureUnknown
}

// ExhaustedError is returned when MaxAttempts rounds did not resolve every
// chunk. Reasons counts, per kind, the failed chunks seen over the request.
type ExhaustedError struct {
	Attempts int
	Reasons  map[FailureKind]int
	Err      error
}

func (e *ExhaustedError) Error() string {
	kinds := make([]string, 0, len(e.Reasons))
	for k, n := range e.Reasons {
		kinds = append(kinds, fmt.Sprintf("%s=%d", k, n))
	}
	sort.Strings(kinds)
	msg := fmt.Sprintf("quote batch exhausted after %d attempts [%s]", e.Attempts, strings.Join(kinds, ","))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// ConfigurationError is a request that can never succeed; it is not retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid quote configuration: " + e.Reason
}

// DecodeError marks a single element whose return data could not be decoded.
// It never escapes the provider.
type DecodeError struct {
	Path *domain.Path
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode quote for %s: %v", e.Path.ID(), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
