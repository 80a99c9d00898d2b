package quoter

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// MinReturnDataLength is the shortest return payload that can carry a quote.
// Anything shorter is a failed element whatever its success flag says.
const MinReturnDataLength = 3

// Call is one simulated contract call inside a batch.
type Call struct {
	Target   common.Address
	CallData []byte
}

type CallResult struct {
	Success    bool
	GasUsed    uint64
	ReturnData []byte
}

// Valid reports whether the element can be decoded at all.
func (r CallResult) Valid() bool {
	return r.Success && len(r.ReturnData) >= MinReturnDataLength
}

// BatchResponse carries one result per call plus the block the batch ran at.
type BatchResponse struct {
	BlockNumber uint64
	Results     []CallResult
}

// BatchCaller is the batched call channel. blockNumber 0 means latest.
// Failures of the whole batch should be returned as *TransportError.
type BatchCaller interface {
	CallBatch(ctx context.Context, calls []Call, gasLimitPerCall uint64, blockNumber uint64) (*BatchResponse, error)
}

type ChunkStatus uint8

const (
	ChunkPending ChunkStatus = iota
	ChunkSuccess
	ChunkFailed
)

// BatchChunk is a bounded group of requests in flight together. Indices
// point into the request slice handed to the executor.
type BatchChunk struct {
	Indices  []int
	Status   ChunkStatus
	Failure  FailureKind
	Err      error
	Response *BatchResponse
}

func (c *BatchChunk) reset() {
	c.Status = ChunkPending
	c.Err = nil
	c.Response = nil
}

// normalizedChunkSize spreads n requests evenly over ceil(n/chunkSize)
// chunks so retries never leave one small straggler chunk.
func normalizedChunkSize(n, chunkSize int) int {
	if n <= 0 || chunkSize <= 0 {
		return 1
	}
	numChunks := (n + chunkSize - 1) / chunkSize
	return (n + numChunks - 1) / numChunks
}

// PartitionRequests splits indices into pending chunks. Every index lands in
// exactly one chunk.
func PartitionRequests(indices []int, chunkSize int) []*BatchChunk {
	if len(indices) == 0 {
		return nil
	}
	size := normalizedChunkSize(len(indices), chunkSize)
	chunks := make([]*BatchChunk, 0, (len(indices)+size-1)/size)
	for start := 0; start < len(indices); start += size {
		end := start + size
		if end > len(indices) {
			end = len(indices)
		}
		part := make([]int, end-start)
		copy(part, indices[start:end])
		chunks = append(chunks, &BatchChunk{Indices: part})
	}
	return chunks
}

// Scheduler issues every non-successful chunk concurrently and waits for all
// of them. Outcomes are written onto the chunks.
type Scheduler struct {
	caller BatchCaller
}

func NewScheduler(caller BatchCaller) *Scheduler {
	return &Scheduler{caller: caller}
}

// Dispatch returns the transport errors of this round combined. A failed
// chunk never cancels its siblings, so the goroutines themselves return nil.
func (s *Scheduler) Dispatch(ctx context.Context, chunks []*BatchChunk, calls []Call, state RetryState, p BatchParams) error {
	var g errgroup.Group
	issued := make([]*BatchChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.Status == ChunkSuccess {
			continue
		}
		chunk := chunk
		chunk.reset()
		issued = append(issued, chunk)

		batch := make([]Call, len(chunk.Indices))
		for i, idx := range chunk.Indices {
			batch[i] = calls[idx]
		}

		g.Go(func() error {
			callCtx := ctx
			if p.CallTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, p.CallTimeout)
				defer cancel()
			}
			resp, err := s.caller.CallBatch(callCtx, batch, state.GasLimitPerCall, state.BlockNumber)
			if err != nil {
				chunk.Status = ChunkFailed
				chunk.Failure = ClassifyError(err)
				chunk.Err = err
				return nil
			}
			chunk.Response = resp
			return nil
		})
	}
	_ = g.Wait()

	var errs error
	for _, c := range issued {
		if c.Status == ChunkFailed {
			errs = multierr.Append(errs, c.Err)
		}
	}
	return errs
}
