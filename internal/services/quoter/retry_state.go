package quoter

// RetryState is the executor's per-request state machine. It is a value:
// Next returns the successor and never mutates the receiver, so one executor
// can serve concurrent requests without shared counters.
type RetryState struct {
	Attempt         int
	BlockNumber     uint64
	ChunkSize       int
	GasLimitPerCall uint64

	// Seen holds every failure kind observed so far in this request.
	Seen FailureSet
	// Adapted holds the kinds whose parameter recovery has been applied.
	Adapted FailureSet

	ConsecutiveBlockHeaderFailures int
	RolledBack                     bool

	Counts RoundFailures
}

func NewRetryState(p BatchParams, blockNumber uint64) RetryState {
	return RetryState{
		BlockNumber:     blockNumber,
		ChunkSize:       p.ChunkSize,
		GasLimitPerCall: p.GasLimitPerCall,
	}
}

// FailLowSuccessRate reports whether a chunk below MinSuccessRate must be
// failed in the current round.
func (s RetryState) FailLowSuccessRate(p BatchParams) bool {
	if p.LowSuccessRate == AlwaysRetryLowSuccessRate {
		return true
	}
	return !s.Seen.Has(FailureSuccessRate)
}

// Next applies one round of failures. Each recovery runs at most once per
// request.
func (s RetryState) Next(round RoundFailures, p BatchParams) RetryState {
	next := s
	for kind, n := range round {
		next.Counts[kind] += n
	}

	if round[FailureOutOfGas] > 0 && !next.Adapted.Has(FailureOutOfGas) {
		next.ChunkSize, next.GasLimitPerCall = adapt(next.ChunkSize, next.GasLimitPerCall, p.OutOfGasOverride, 1, 2, 3, 2)
		next.Adapted = next.Adapted.With(FailureOutOfGas)
	}

	if round[FailureSuccessRate] > 0 && !next.Adapted.Has(FailureSuccessRate) {
		next.ChunkSize, next.GasLimitPerCall = adapt(next.ChunkSize, next.GasLimitPerCall, p.SuccessRateOverride, 3, 4, 5, 4)
		next.Adapted = next.Adapted.With(FailureSuccessRate)
	}

	if round[FailureBlockHeaderUnavailable] > 0 {
		next.ConsecutiveBlockHeaderFailures++
	} else {
		next.ConsecutiveBlockHeaderFailures = 0
	}
	if p.Rollback.Enabled && !next.RolledBack &&
		next.ConsecutiveBlockHeaderFailures >= p.Rollback.AttemptsBeforeRollback {
		if next.BlockNumber > p.Rollback.RollbackBlockOffset {
			next.BlockNumber -= p.Rollback.RollbackBlockOffset
		}
		next.RolledBack = true
		next.Adapted = next.Adapted.With(FailureBlockHeaderUnavailable)
	}

	for kind, n := range round {
		if n > 0 {
			next.Seen = next.Seen.With(FailureKind(kind))
		}
	}
	return next
}

// adapt shrinks the chunk and raises the gas limit. Overrides win when set;
// otherwise chunk*chunkNum/chunkDen and gas*gasNum/gasDen are used. The
// chunk never grows and the gas limit never shrinks.
func adapt(chunk int, gas uint64, o Override, chunkNum, chunkDen int, gasNum, gasDen uint64) (int, uint64) {
	newChunk := chunk * chunkNum / chunkDen
	if o.ChunkSize > 0 {
		newChunk = o.ChunkSize
	}
	if newChunk > chunk {
		newChunk = chunk
	}
	if newChunk < 1 {
		newChunk = 1
	}

	newGas := gas * gasNum / gasDen
	if o.GasLimitPerCall > 0 {
		newGas = o.GasLimitPerCall
	}
	if newGas < gas {
		newGas = gas
	}
	return newChunk, newGas
}
