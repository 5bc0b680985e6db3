// Package future implements the futures admission-control layer: a
// per-shepherd cap on concurrently-runnable future tasks, round-robin
// placement, blocking admission, and dynamic yield/acquire of a task's
// future status, on top of any host runtime satisfying hostrt.Runtime.
//
// This package never imports shepherdpool (or any other concrete
// hostrt.Runtime implementation); it consumes only the interface in
// package hostrt, the same boundary the original design draws around the
// qthreads runtime it was built against.
package future

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-future/hostrt"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Controller is the process-wide (per-runtime) futures admission-control
// state: the location table (component B), the global placement cursor
// for non-future callers (component D's fallback), and the runtime it is
// bound to.
type Controller struct {
	rt        hostrt.Runtime
	locations []*location
	log       zerolog.Logger

	globalMu     sync.Mutex
	globalCursor int

	closed int32
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithLogger overrides the controller's structured logger. The zero value
// logs nothing (zerolog.Nop()).
func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// New is future_init: it allocates the location table (one per shepherd
// reported by rt), sets every location's cap to vpPerLoc, and fans out one
// binding task per shepherd — barriering on their completion — before
// returning. vpPerLoc must be positive; rt must report at least one
// shepherd.
func New(ctx context.Context, rt hostrt.Runtime, vpPerLoc int, opts ...Option) (*Controller, error) {
	if vpPerLoc <= 0 {
		return nil, fmt.Errorf("future: %w: got %d", ErrInvalidCap, vpPerLoc)
	}
	if rt == nil || rt.ShepherdCount() <= 0 {
		return nil, ErrInvalidRuntime
	}

	c := &Controller{rt: rt, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}

	n := rt.ShepherdCount()
	c.locations = make([]*location, n)
	for i := range c.locations {
		c.locations[i] = newLocation(i, vpPerLoc)
	}

	// fan out one binding task per shepherd, and barrier on all of them
	// completing before future_init (New) returns — every shepherd has
	// "seen" its own location before the first user call can race it.
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			done := rt.SpawnShepherdLocal(i, func(context.Context) {
				c.log.Debug().Int("shepherd", i).Msg("future: shepherd bound")
			})
			select {
			case <-done:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("future: binding shepherds: %w", err)
	}

	c.log.Debug().Int("shepherds", n).Int("vp_per_loc", vpPerLoc).Msg("future: initialized")
	return c, nil
}

func (c *Controller) ready() error {
	if c == nil || c.rt == nil {
		return ErrNotInitialized
	}
	if atomic.LoadInt32(&c.closed) != 0 {
		return ErrClosed
	}
	return nil
}

// choose implements the placement policy (component D): if the calling
// task is itself running on one of this controller's shepherds, advance
// that shepherd's own cursor (no lock: only tasks on that shepherd ever
// touch it, and the host runtime's cooperative scheduling means they do
// so one at a time); otherwise fall back to the global cursor under
// globalMu.
func (c *Controller) choose(ctx context.Context) int {
	if shep, ok := c.rt.CurrentShepherd(ctx); ok && shep >= 0 && shep < len(c.locations) {
		return c.locations[shep].nextCursor(len(c.locations))
	}

	c.globalMu.Lock()
	defer c.globalMu.Unlock()
	r := c.globalCursor
	c.globalCursor++
	if c.globalCursor == len(c.locations) {
		c.globalCursor = 0
	}
	return r
}

// Fork is future_fork: it picks a target shepherd via the placement
// policy, blocks until that shepherd's location admits a new VP slot,
// then asks the runtime to spawn fn there as a future-flagged task. It
// returns once fn has been admitted and handed to the runtime; fn itself
// runs asynchronously. fn observes its own Task handle via
// Controller.Self(ctx). When fn returns, the task exits (Task.Exit), which
// releases its VP slot if it is still a future.
func (c *Controller) Fork(ctx context.Context, fn func(context.Context) (any, error)) (*Task, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	target := c.choose(ctx)
	loc := c.locations[target]

	if err := loc.admit(ctx); err != nil {
		return nil, err
	}

	t := &Task{loc: loc, ctrl: c}
	spawned := make(chan struct{})
	raw, err := c.rt.SpawnOn(target, true, func(taskCtx context.Context) (any, error) {
		// wait until t.raw is set, so fn and the deferred Exit see a
		// complete handle.
		<-spawned
		defer t.Exit()
		return fn(withTask(taskCtx, t))
	})
	if err != nil {
		// the admission slot reserved above must be released: no task
		// was actually handed to the runtime to eventually yield/exit it.
		loc.release()
		return nil, fmt.Errorf("future: spawn on shepherd %d: %w", target, err)
	}
	t.raw = raw
	close(spawned)

	c.log.Debug().Int("shepherd", target).Uint64("task", raw.ID()).Msg("future: forked")
	return t, nil
}

// Yield is future_yield: "I do not count toward future resource limits,
// temporarily." If t is a future, its location's VP slot is released
// (possibly waking one admit waiter) and Yield returns true. If t is nil
// or is not (or is no longer) a future, Yield is a no-op and returns
// false.
func (c *Controller) Yield(t *Task) bool {
	if c.ready() != nil || t == nil || !t.raw.IsFuture() {
		return false
	}
	t.loc.release()
	c.log.Debug().Uint64("task", t.raw.ID()).Msg("future: yielded")
	return true
}

// Acquire is future_acquire: "I count as a future again." If t is a
// future, it blocks until its location admits a VP slot. If t is nil or
// is not a future, Acquire is a no-op.
func (c *Controller) Acquire(ctx context.Context, t *Task) error {
	if err := c.ready(); err != nil {
		return err
	}
	if t == nil || !t.raw.IsFuture() {
		return nil
	}
	if err := t.loc.admit(ctx); err != nil {
		return err
	}
	c.log.Debug().Uint64("task", t.raw.ID()).Msg("future: acquired")
	return nil
}

// Join is future_join: it blocks until t's spawned function has returned,
// then yields its result and error.
func (c *Controller) Join(ctx context.Context, t *Task) (any, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("future: join: %w", ErrNotInitialized)
	}
	val, err, cerr := t.raw.Result.ReadWhenFull(ctx)
	if cerr != nil {
		return nil, cerr
	}
	return val, err
}

// JoinAll is future_join_all: serial Join over each task, in order. The
// order futures complete in is irrelevant to correctness; only the order
// results are returned in is fixed, matching ts.
func (c *Controller) JoinAll(ctx context.Context, ts []*Task) ([]any, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	out := make([]any, len(ts))
	for i, t := range ts {
		v, err := c.Join(ctx, t)
		if err != nil {
			return out, fmt.Errorf("future: join_all: task %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Close is future_cleanup: it fans out one teardown task per shepherd
// (fire-and-forget, matching the source's future_shep_cleanup, which has
// no meaningful return value) and barriers on their completion. After
// Close returns, the other error-returning Controller methods return
// ErrClosed and Yield returns false; calling Close again returns nil.
func (c *Controller) Close(ctx context.Context) error {
	if err := c.ready(); err != nil {
		if err == ErrClosed {
			return nil
		}
		return err
	}
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, loc := range c.locations {
		loc := loc
		g.Go(func() error {
			done := c.rt.SpawnShepherdLocal(loc.id, func(context.Context) {
				c.log.Debug().Int("shepherd", loc.id).Msg("future: shepherd unbound")
			})
			select {
			case <-done:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("future: cleanup: %w", err)
	}

	c.log.Debug().Msg("future: closed")
	return nil
}

// VPCount returns the current VP count for shepherd id. It is a
// diagnostic accessor, not part of the admission protocol; callers should
// not rely on the value remaining accurate past the call (admission is
// live).
func (c *Controller) VPCount(shepherd int) (int, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	if shepherd < 0 || shepherd >= len(c.locations) {
		return 0, fmt.Errorf("future: shepherd id %d out of range [0,%d)", shepherd, len(c.locations))
	}
	return c.locations[shepherd].count(), nil
}

// ShepherdCount returns the number of shepherds this controller was
// initialized with.
func (c *Controller) ShepherdCount() (int, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	return len(c.locations), nil
}
