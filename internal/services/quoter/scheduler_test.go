package quoter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestPartitionRequestsNormalizesChunkSize(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		chunkSize int
		want      []int
	}{
		{"even split", 200, 150, []int{100, 100}},
		{"three chunks", 301, 150, []int{101, 101, 99}},
		{"single chunk", 40, 150, []int{40}},
		{"exact multiple", 300, 150, []int{150, 150}},
		{"chunk of one", 3, 1, []int{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			indices := make([]int, tt.n)
			for i := range indices {
				indices[i] = i
			}
			chunks := PartitionRequests(indices, tt.chunkSize)
			require.Len(t, chunks, len(tt.want))

			next := 0
			for i, c := range chunks {
				assert.Len(t, c.Indices, tt.want[i])
				assert.Equal(t, ChunkPending, c.Status)
				for _, idx := range c.Indices {
					assert.Equal(t, next, idx)
					next++
				}
			}
			assert.Equal(t, tt.n, next)
		})
	}
}

func TestPartitionRequestsEmpty(t *testing.T) {
	assert.Nil(t, PartitionRequests(nil, 10))
}

func TestDispatchSkipsSuccessfulChunks(t *testing.T) {
	caller := &fakeCaller{handle: func(_ int, calls []Call, _, block uint64) (*BatchResponse, error) {
		return okResponse(block, len(calls), 1), nil
	}}
	chunks := PartitionRequests([]int{0, 1, 2, 3}, 2)
	chunks[0].Status = ChunkSuccess

	p := DefaultBatchParams()
	require.NoError(t, NewScheduler(caller).Dispatch(context.Background(), chunks, makeCalls(4), NewRetryState(p, 9), p))

	inv := caller.invocations()
	require.Len(t, inv, 1)
	assert.Equal(t, uint64(9), inv[0].block)
	require.NotNil(t, chunks[1].Response)
	assert.Nil(t, chunks[0].Response)
}

func TestDispatchClassifiesTransportErrors(t *testing.T) {
	caller := &fakeCaller{handle: func(n int, _ []Call, _, _ uint64) (*BatchResponse, error) {
		if n == 1 {
			return nil, &TransportError{Kind: FailureBlockHeaderUnavailable, Err: errors.New("header not found")}
		}
		return nil, errors.New("connection reset")
	}}
	chunks := PartitionRequests([]int{0}, 1)

	p := DefaultBatchParams()
	s := NewScheduler(caller)
	err := s.Dispatch(context.Background(), chunks, makeCalls(1), NewRetryState(p, 1), p)
	require.Error(t, err)
	assert.Equal(t, ChunkFailed, chunks[0].Status)
	assert.Equal(t, FailureBlockHeaderUnavailable, chunks[0].Failure)

	err = s.Dispatch(context.Background(), chunks, makeCalls(1), NewRetryState(p, 1), p)
	assert.EqualError(t, err, "connection reset")
	assert.Equal(t, FailureUnknown, chunks[0].Failure)
}

func TestDispatchCombinesChunkErrors(t *testing.T) {
	caller := &fakeCaller{handle: func(_ int, calls []Call, _, block uint64) (*BatchResponse, error) {
		if len(calls) == 1 {
			return okResponse(block, 1, 1), nil
		}
		return nil, &TransportError{Kind: FailureTimeout, Err: errors.New("deadline")}
	}}
	chunks := []*BatchChunk{{Indices: []int{0, 1}}, {Indices: []int{2}}, {Indices: []int{3, 4}}}

	p := DefaultBatchParams()
	err := NewScheduler(caller).Dispatch(context.Background(), chunks, makeCalls(5), NewRetryState(p, 1), p)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.NotNil(t, chunks[1].Response)
}

func TestDispatchAppliesCallTimeout(t *testing.T) {
	caller := &slowCaller{}
	chunks := PartitionRequests([]int{0}, 1)

	p := DefaultBatchParams()
	p.CallTimeout = 5 * time.Millisecond
	NewScheduler(caller).Dispatch(context.Background(), chunks, makeCalls(1), NewRetryState(p, 1), p)
	assert.Equal(t, ChunkFailed, chunks[0].Status)
	assert.Equal(t, FailureTimeout, chunks[0].Failure)
}

type slowCaller struct{}

func (slowCaller) CallBatch(ctx context.Context, _ []Call, _, _ uint64) (*BatchResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
