// Package parallel provides the two worker-pool partitioning strategies
// named in spec.md §5: static (each worker gets a fixed contiguous
// range, decided once) and dynamic (workers pull chunks from a shared
// counter until the range is exhausted). Generalized from the teacher's
// WorkerPool (pkg/parallel/workers.go), which only ever did static
// batchSize/remainder partitioning over vector-math batches; here the
// same partitioning shapes apply over arbitrary index ranges, since the
// payload is now "search this query" / "insert this vector", not a
// fixed math kernel.
package parallel

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Pool runs work across a fixed number of goroutines using either
// static or dynamic partitioning.
type Pool struct {
	size    int
	limiter *rate.Limiter // nil when unthrottled
}

// New creates a Pool with size workers (0 selects runtime.NumCPU()).
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{size: size}
}

// WithInsertRate returns a copy of p whose RunBatch waits on a rate
// limiter before each item, allowing at most ratePerSec items per
// second; RunStatic and RunDynamic do not consult the limiter. It is a
// knob for capping sustained insert throughput (spec.md §9 does not
// mandate this); config.WorkerConfig.MaxInsertRate exists, but no index
// or engine code in this module calls WithInsertRate.
func (p *Pool) WithInsertRate(ratePerSec float64) *Pool {
	if ratePerSec <= 0 {
		return p
	}
	return &Pool{size: p.size, limiter: rate.NewLimiter(rate.Limit(ratePerSec), int(ratePerSec)+1)}
}

// Size returns the worker count.
func (p *Pool) Size() int { return p.size }

// RunStatic partitions [0, n) into p.size contiguous ranges, one per
// worker, computed once up front — the teacher's batchSize/remainder
// scheme, generalized to call fn(start, end) per partition instead of a
// single hardcoded math kernel. When n is less than twice p.size, fn(0,
// n) instead runs once on the calling goroutine.
func (p *Pool) RunStatic(n int, fn func(start, end int)) {
	if n == 0 {
		return
	}
	workers := p.size
	if n < workers*2 {
		fn(0, n)
		return
	}

	batchSize := n / workers
	remainder := n % workers

	var wg sync.WaitGroup
	start := 0
	for i := 0; i < workers; i++ {
		end := start + batchSize
		if i < remainder {
			end++
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
		start = end
	}
	wg.Wait()
}

// RunDynamic partitions [0, n) into chunks of chunkSize pulled from a
// shared counter: a worker that finishes a chunk immediately pulls the
// next one rather than waiting on slower siblings. Matches spec.md §5's
// "dynamic partitioning... shared queue, chunked pulls" requirement,
// for work whose per-chunk cost is uneven; no index in this module
// calls it.
func (p *Pool) RunDynamic(n, chunkSize int, fn func(start, end int)) {
	if n == 0 {
		return
	}
	if chunkSize <= 0 {
		chunkSize = 1
	}
	var next int64
	var mu sync.Mutex
	pull := func() (int, int, bool) {
		mu.Lock()
		defer mu.Unlock()
		if int(next) >= n {
			return 0, 0, false
		}
		start := int(next)
		end := start + chunkSize
		if end > n {
			end = n
		}
		next = int64(end)
		return start, end, true
	}

	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				s, e, ok := pull()
				if !ok {
					return
				}
				fn(s, e)
			}
		}()
	}
	wg.Wait()
}

// RunBatch runs fn(i) for each i in [0, n) across a static partition,
// collecting the first non-nil error. Matches spec.md §7's "errors
// encountered in one worker during a parallel operation are collected;
// the operation is abandoned and the first error is returned" — workers
// that are already in flight finish their current item (no preemptive
// cancellation, per spec.md §5's "no cooperative suspension" note) but
// stop pulling new items once an error has been recorded.
func (p *Pool) RunBatch(ctx context.Context, n int, fn func(i int) error) error {
	if n == 0 {
		return nil
	}
	var (
		once     sync.Once
		firstErr error
		failed   atomic.Bool
	)
	record := func(err error) {
		once.Do(func() { firstErr = err })
	}

	p.RunStatic(n, func(start, end int) {
		for i := start; i < end; i++ {
			if failed.Load() {
				return
			}
			if p.limiter != nil {
				if err := p.limiter.Wait(ctx); err != nil {
					record(err)
					failed.Store(true)
					return
				}
			}
			if err := fn(i); err != nil {
				record(err)
				failed.Store(true)
				return
			}
		}
	})
	return firstErr
}
