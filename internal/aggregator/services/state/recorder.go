package state

import (
	"context"

	"github.com/hxuan190/evm-quote-engine/internal/domain"
	"github.com/hxuan190/evm-quote-engine/internal/metrics"
)

// Recorder consumes a fetch record stream into a snapshot.
// It finishes once the producer closes the stream; the snapshot must not be read before that.
type Recorder struct {
	snap *domain.Snapshot
	done chan struct{}
}

func StartRecorder(records <-chan domain.StateFetch, block uint64) *Recorder {
	r := &Recorder{
		snap: domain.NewSnapshot(block),
		done: make(chan struct{}),
	}
	go r.run(records)
	return r
}

func (r *Recorder) run(records <-chan domain.StateFetch) {
	defer close(r.done)
	for f := range records {
		r.snap.Apply(f)
		metrics.SnapshotRecords.Inc()
	}
}

func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the stream is drained and returns the finished snapshot.
func (r *Recorder) Wait(ctx context.Context) (*domain.Snapshot, error) {
	select {
	case <-r.done:
		return r.snap, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
