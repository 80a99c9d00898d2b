package quoter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/stat"

	"github.com/hxuan190/swap-router/internal/metrics"
)

var ErrNoBlockNumber = errors.New("failed to resolve target block number")

// BlockNumberSource resolves the chain head.
type BlockNumberSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// BatchOutcome is the executor result. Results is aligned with the request
// slice; elements of unresolved chunks are left zero (invalid).
type BatchOutcome struct {
	Results                     []CallResult
	BlockNumber                 uint64
	ApproxGasUsedPerSuccessCall uint64
	Attempts                    int
	State                       RetryState
}

// Executor runs the attempt loop around the Scheduler.
type Executor struct {
	scheduler *Scheduler
	blocks    BlockNumberSource
	logger    zerolog.Logger
}

// NewExecutor builds an executor. A nil block source queries "latest" on
// every chunk, which makes block conflicts between chunks possible.
func NewExecutor(caller BatchCaller, blocks BlockNumberSource) *Executor {
	return &Executor{
		scheduler: NewScheduler(caller),
		blocks:    blocks,
		logger:    log.With().Str("component", "quote-batch-executor").Logger(),
	}
}

func (e *Executor) WithLogger(logger zerolog.Logger) *Executor {
	e.logger = logger
	return e
}

// Execute resolves calls at one consistent block, retrying failed chunks with
// adapted chunk size and gas limit until every chunk succeeds or MaxAttempts
// is reached. Cancelling ctx abandons the loop.
func (e *Executor) Execute(ctx context.Context, calls []Call, p BatchParams) (*BatchOutcome, error) {
	if err := p.Validate(); err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}

	target, err := e.targetBlock(ctx, p)
	if err != nil {
		return nil, err
	}

	state := NewRetryState(p, target)
	if len(calls) == 0 {
		return &BatchOutcome{BlockNumber: target, State: state}, nil
	}

	all := make([]int, len(calls))
	for i := range all {
		all[i] = i
	}
	chunks := PartitionRequests(all, state.ChunkSize)

	bo := newBackoff(p)
	start := time.Now()
	for attempt := 1; ; attempt++ {
		state.Attempt = attempt
		dispatchErr := e.scheduler.Dispatch(ctx, chunks, calls, state, p)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if dispatchErr != nil {
			e.logger.Debug().Err(dispatchErr).Int("attempt", attempt).Msg("batch calls failed")
		}

		round := e.evaluate(chunks, state, p)
		if conflict, blocks, majority := hasBlockConflict(chunks); conflict {
			e.logger.Warn().
				Int("attempt", attempt).
				Uints64("blocks", blocks).
				Uint64("repinned", majority).
				Msg("chunks disagree on block number, retrying whole round")
			for _, c := range chunks {
				c.reset()
				c.Failure = FailureBlockConflict
			}
			round[FailureBlockConflict] = len(chunks)
			state.BlockNumber = majority
		}

		if !round.Any() && allSucceeded(chunks) {
			break
		}

		for kind, n := range round {
			if n > 0 {
				metrics.QuoteChunkFailures.WithLabelValues(FailureKind(kind).String()).Add(float64(n))
			}
		}

		prevBlock := state.BlockNumber
		state = state.Next(round, p)
		e.logger.Warn().
			Int("attempt", attempt).
			Str("failures", round.String()).
			Int("chunk_size", state.ChunkSize).
			Uint64("gas_limit_per_call", state.GasLimitPerCall).
			Uint64("block", state.BlockNumber).
			Msg("quote batch round failed")

		if attempt >= p.MaxAttempts {
			if p.UnderReportsCallGas && onlyOutOfGasLeft(chunks) {
				e.logger.Warn().Int("attempts", attempt).Msg("out-of-gas chunks left unresolved, treating as no quote")
				break
			}
			return nil, exhausted(attempt, state, chunks)
		}

		chunks = rechunk(chunks, state.ChunkSize, prevBlock != state.BlockNumber)

		if err := sleep(ctx, bo.NextBackOff()); err != nil {
			return nil, err
		}
	}

	outcome := assemble(chunks, len(calls), state)
	metrics.QuoteBatchAttempts.Observe(float64(outcome.Attempts))
	metrics.QuoteBatchDuration.Observe(time.Since(start).Seconds())
	if outcome.ApproxGasUsedPerSuccessCall > 0 {
		metrics.QuoteCallGasUsed.Observe(float64(outcome.ApproxGasUsedPerSuccessCall))
	}
	return outcome, nil
}

func (e *Executor) targetBlock(ctx context.Context, p BatchParams) (uint64, error) {
	if e.blocks == nil {
		return 0, nil
	}
	latest, err := e.blocks.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoBlockNumber, err)
	}
	if latest > p.BaseBlockOffset {
		latest -= p.BaseBlockOffset
	}
	return latest, nil
}

// evaluate classifies chunks that returned a response. Element failures stay
// local to the element; only a low success rate fails the chunk.
func (e *Executor) evaluate(chunks []*BatchChunk, state RetryState, p BatchParams) RoundFailures {
	var round RoundFailures
	for _, c := range chunks {
		switch {
		case c.Status == ChunkSuccess:
			continue
		case c.Status == ChunkFailed:
			round[c.Failure]++
			continue
		case c.Response == nil || len(c.Response.Results) != len(c.Indices):
			c.Status = ChunkFailed
			c.Failure = FailureUnknown
			c.Err = errors.New("malformed batch response")
			round[FailureUnknown]++
			continue
		}

		valid := 0
		for _, r := range c.Response.Results {
			if r.Valid() {
				valid++
			}
		}
		rate := float64(valid) / float64(len(c.Response.Results))
		if rate < p.MinSuccessRate {
			if state.FailLowSuccessRate(p) {
				c.Status = ChunkFailed
				c.Failure = FailureSuccessRate
				c.Err = fmt.Errorf("success rate %.2f below %.2f", rate, p.MinSuccessRate)
				c.Response = nil
				round[FailureSuccessRate]++
				continue
			}
			e.logger.Debug().Float64("rate", rate).Int("chunk", len(c.Indices)).Msg("tolerating repeated low success rate")
		}
		c.Status = ChunkSuccess
	}
	return round
}

// hasBlockConflict reports whether successful chunks ran at different
// blocks. majority is the block most chunks ran at; a tie picks the newest.
func hasBlockConflict(chunks []*BatchChunk) (conflict bool, blocks []uint64, majority uint64) {
	seen := make(map[uint64]int)
	for _, c := range chunks {
		if c.Status == ChunkSuccess {
			seen[c.Response.BlockNumber]++
		}
	}
	if len(seen) <= 1 {
		return false, nil, 0
	}
	blocks = make([]uint64, 0, len(seen))
	for b := range seen {
		blocks = append(blocks, b)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i] < blocks[j] })
	for _, b := range blocks {
		if seen[b] >= seen[majority] {
			majority = b
		}
	}
	return true, blocks, majority
}

func allSucceeded(chunks []*BatchChunk) bool {
	for _, c := range chunks {
		if c.Status != ChunkSuccess {
			return false
		}
	}
	return true
}

func onlyOutOfGasLeft(chunks []*BatchChunk) bool {
	var left RoundFailures
	for _, c := range chunks {
		if c.Status != ChunkSuccess {
			left[c.Failure]++
		}
	}
	return left.Only(FailureOutOfGas)
}

// rechunk keeps successful chunks and re-partitions the rest with the
// current chunk size. When the target block moved, earlier successes are
// stale and everything is re-issued.
func rechunk(chunks []*BatchChunk, chunkSize int, blockMoved bool) []*BatchChunk {
	kept := make([]*BatchChunk, 0, len(chunks))
	var outstanding []int
	for _, c := range chunks {
		if c.Status == ChunkSuccess && !blockMoved {
			kept = append(kept, c)
			continue
		}
		outstanding = append(outstanding, c.Indices...)
	}
	sort.Ints(outstanding)
	return append(kept, PartitionRequests(outstanding, chunkSize)...)
}

func exhausted(attempts int, state RetryState, chunks []*BatchChunk) error {
	reasons := make(map[FailureKind]int)
	for kind, n := range state.Counts {
		if n > 0 {
			reasons[FailureKind(kind)] = n
		}
	}
	var errs error
	for _, c := range chunks {
		if c.Status != ChunkSuccess && c.Err != nil {
			errs = multierr.Append(errs, c.Err)
		}
	}
	return &ExhaustedError{Attempts: attempts, Reasons: reasons, Err: errs}
}

func assemble(chunks []*BatchChunk, n int, state RetryState) *BatchOutcome {
	out := &BatchOutcome{
		Results:     make([]CallResult, n),
		BlockNumber: state.BlockNumber,
		Attempts:    state.Attempt,
		State:       state,
	}

	var gasUsed []float64
	for _, c := range chunks {
		if c.Status != ChunkSuccess {
			continue
		}
		out.BlockNumber = c.Response.BlockNumber
		for j, idx := range c.Indices {
			r := c.Response.Results[j]
			out.Results[idx] = r
			if r.Valid() {
				gasUsed = append(gasUsed, float64(r.GasUsed))
			}
		}
	}

	if len(gasUsed) > 0 {
		sort.Float64s(gasUsed)
		out.ApproxGasUsedPerSuccessCall = uint64(stat.Quantile(0.99, stat.Empirical, gasUsed, nil))
	}
	return out
}

func newBackoff(p BatchParams) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.MinBackoff
	bo.MaxInterval = p.MaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
