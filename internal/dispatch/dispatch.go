// Package dispatch routes queued jobs to worker goroutines, optionally
// partitioned by key so jobs sharing a key are handled in order by one
// worker.
package dispatch

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Dispatcher hands out the channel a job with the given key must be sent on.
type Dispatcher[T any] interface {
	ChannelFor(key string) chan T
}

// --- single queue ---

type singleQueue[T any] struct {
	jobCh chan T
}

func (q singleQueue[T]) ChannelFor(_ string) chan T {
	return q.jobCh
}

// NewSingle starts one worker draining one buffered queue.
//
// When ctx is cancelled, jobs still queued are handed to drain instead of
// handle before the worker exits: every accepted job is resolved one way or
// the other, never silently dropped.
func NewSingle[T any](
	ctx context.Context,
	bufferSize int,
	handle func(context.Context, T),
	drain func(T),
) Dispatcher[T] {
	jobCh := make(chan T, bufferSize)
	ready := make(chan struct{})

	go func(ch chan T) {
		defer close(ch)
		close(ready)
		for {
			select {
			case job := <-ch:
				handle(ctx, job)
			case <-ctx.Done():
				flush(ch, drain)
				return
			}
		}
	}(jobCh)

	<-ready

	return singleQueue[T]{jobCh: jobCh}
}

// --- partitioned queues ---

type partitionedQueue[T any] struct {
	jobChs []chan T
}

func (pq partitionedQueue[T]) ChannelFor(key string) chan T {
	return pq.jobChs[indexFor(key, len(pq.jobChs))]
}

// NewPartitioned starts numWorkers workers, each draining its own buffered
// queue. Keys are hashed onto queues, so jobs sharing a key keep their
// submission order while distinct keys may run in parallel. Shutdown
// behaves as in NewSingle: queued jobs go to drain, never into the void.
func NewPartitioned[T any](
	ctx context.Context,
	numWorkers, bufferSize int,
	handle func(context.Context, T),
	drain func(T),
) Dispatcher[T] {
	if numWorkers <= 1 {
		return NewSingle(ctx, bufferSize, handle, drain)
	}
	channels := make([]chan T, numWorkers)
	ready := sync.WaitGroup{}
	for i := 0; i < numWorkers; i++ {
		ready.Add(1)
		ch := make(chan T, bufferSize)
		go func(ch chan T) {
			defer close(ch)
			ready.Done()
			for {
				select {
				case job := <-ch:
					handle(ctx, job)
				case <-ctx.Done():
					flush(ch, drain)
					return
				}
			}
		}(ch)
		channels[i] = ch
	}
	ready.Wait()
	return partitionedQueue[T]{jobChs: channels}
}

func flush[T any](ch chan T, drain func(T)) {
	for {
		select {
		case job := <-ch:
			drain(job)
		default:
			return
		}
	}
}

func indexFor(key string, numChs int) int {
	if numChs == 0 {
		panic("number of channels cannot be 0")
	}
	return int(xxhash.Sum64String(key) % uint64(numChs))
}
