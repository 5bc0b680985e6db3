// Package shepherdpool is a goroutine-backed implementation of
// hostrt.Runtime: a fixed set of "shepherd" workers, each owning its own
// FIFO run queue, executing submitted work cooperatively — a shepherd
// only picks up its next job once the current one returns. This
// reproduces the non-preemptive-within-a-shepherd guarantee the futures
// placement policy depends on (future.Controller's per-shepherd
// round-robin cursor needs no lock only because of this property).
//
// Grounded on the worker-pool shape used across the retrieved corpus
// (a fixed goroutine-per-worker loop pulling off an owned queue) and on
// the pack's own goroutine-lifecycle idioms (atomic running flags,
// start/stop coordinated without a dedicated supervisor goroutine).
package shepherdpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-future/hostrt"
	"github.com/rs/zerolog"
)

type shepherdCtxKey struct{}

// Pool is a fixed collection of shepherd workers.
type Pool struct {
	shepherds []*shepherd
	nextID    uint64
	log       zerolog.Logger
}

type job struct {
	task  *hostrt.RawTask
	fn    func(context.Context) (any, error)
	local func(context.Context)
	done  chan struct{}
}

type shepherd struct {
	id     int
	pool   *Pool
	mu     sync.Mutex
	cond   *sync.Cond
	queue  *taskQueue[*job]
	closed bool
	exited bool
}

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithLogger overrides the pool's structured logger. The zero value logs
// nothing (zerolog.Nop()).
func WithLogger(log zerolog.Logger) Option {
	return func(p *Pool) { p.log = log }
}

// New starts a Pool of n shepherd goroutines. It returns an error if n is
// not positive.
func New(n int, opts ...Option) (*Pool, error) {
	if n <= 0 {
		return nil, fmt.Errorf("shepherdpool: shepherd count must be positive, got %d", n)
	}

	p := &Pool{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}

	p.shepherds = make([]*shepherd, n)
	for i := range p.shepherds {
		s := &shepherd{id: i, pool: p, queue: newTaskQueue[*job](8)}
		s.cond = sync.NewCond(&s.mu)
		p.shepherds[i] = s
		go s.run()
	}

	p.log.Debug().Int("shepherds", n).Msg("shepherdpool: started")
	return p, nil
}

// ShepherdCount implements hostrt.Runtime.
func (p *Pool) ShepherdCount() int { return len(p.shepherds) }

// CurrentShepherd implements hostrt.Runtime.
func (p *Pool) CurrentShepherd(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(shepherdCtxKey{}).(int)
	return id, ok
}

// SpawnOn implements hostrt.Runtime.
func (p *Pool) SpawnOn(shep int, isFuture bool, fn func(context.Context) (any, error)) (*hostrt.RawTask, error) {
	if shep < 0 || shep >= len(p.shepherds) {
		return nil, fmt.Errorf("shepherdpool: shepherd id %d out of range [0,%d)", shep, len(p.shepherds))
	}
	id := atomic.AddUint64(&p.nextID, 1)
	task := hostrt.NewRawTask(id, shep, isFuture)
	p.shepherds[shep].submit(&job{task: task, fn: fn})
	return task, nil
}

// SpawnShepherdLocal implements hostrt.Runtime.
func (p *Pool) SpawnShepherdLocal(shep int, fn func(context.Context)) <-chan struct{} {
	done := make(chan struct{})
	if shep < 0 || shep >= len(p.shepherds) {
		close(done)
		return done
	}
	p.shepherds[shep].submit(&job{local: fn, done: done})
	return done
}

// Close marks every shepherd closed and waits for each to drain its queue
// and exit, or for ctx to be cancelled, whichever comes first. SpawnOn and
// SpawnShepherdLocal do not check the closed state: work submitted after
// Close is still queued, and work queued after a shepherd has exited is
// never run.
func (p *Pool) Close(ctx context.Context) error {
	for _, s := range p.shepherds {
		s.shutdown()
	}

	allDone := make(chan struct{})
	go func() {
		for _, s := range p.shepherds {
			s.wait()
		}
		close(allDone)
	}()

	select {
	case <-allDone:
		p.log.Debug().Msg("shepherdpool: closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *shepherd) submit(j *job) {
	s.mu.Lock()
	s.queue.PushBack(j)
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *shepherd) shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// wait blocks until the shepherd's loop has exited.
func (s *shepherd) wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.exited {
		s.cond.Wait()
	}
}

func (s *shepherd) run() {
	ctx := context.WithValue(context.Background(), shepherdCtxKey{}, s.id)
	for {
		j, ok := s.next()
		if !ok {
			s.mu.Lock()
			s.exited = true
			s.cond.Broadcast() // wake any wait() waiting on the loop's exit
			s.mu.Unlock()
			return
		}
		s.exec(ctx, j)
	}
}

// next blocks until a job is available or the shepherd has been shut down
// with an empty queue, in which case it returns (nil, false).
func (s *shepherd) next() (*job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.queue.Len() == 0 {
		if s.closed {
			return nil, false
		}
		s.cond.Wait()
	}
	return s.queue.PopFront(), true
}

func (s *shepherd) exec(ctx context.Context, j *job) {
	if j.local != nil {
		defer close(j.done)
		j.local(ctx)
		return
	}

	val, err := func() (val any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("shepherdpool: task panicked: %v", r)
			}
		}()
		return j.fn(ctx)
	}()
	j.task.Result.WriteFull(val, err)
}
