package future

import (
	"context"
	"sync"

	"github.com/joeycumines/go-future/feb"
)

// location is the per-shepherd bookkeeping record (component A of the
// design): the cap on concurrently-admitted futures, the current count,
// the lock guarding that count, the FEB rendezvous admission blocks on,
// and the round-robin cursor used when placing a future forked by a task
// that itself runs on this shepherd.
type location struct {
	id     int
	vpMax  int
	vpMu   sync.Mutex
	vpCnt  int
	wait   *feb.Word
	cursor uint32 // touched only by tasks running on this shepherd
}

func newLocation(id, vpMax int) *location {
	return &location{
		id:    id,
		vpMax: vpMax,
		// vp_wait_addr starts empty: this establishes the waiting-queue
		// rendezvous, mirroring the single "lock" call future_shep_init
		// performs before future_init returns.
		wait: feb.NewEmpty(),
	}
}

// admit blocks until a VP slot is available on this location, then takes
// one. It is the blocking_vp_incr of the original design: acquire the
// count lock, and while at capacity, drop the lock and wait on the FEB
// word before re-checking.
func (l *location) admit(ctx context.Context) error {
	l.vpMu.Lock()
	for l.vpCnt >= l.vpMax {
		l.vpMu.Unlock()
		if err := l.wait.Lock(ctx); err != nil {
			return err
		}
		l.vpMu.Lock()
	}
	l.vpCnt++
	l.vpMu.Unlock()
	return nil
}

// release gives back a VP slot. If the location was exactly at capacity
// before the decrement, it wakes at most one waiter blocked in admit.
//
// The capacity test happens against the pre-decrement value, matching
// the source's `(vp_count-- == vp_max)`: the wake fires because we *were*
// at the cap, not because we now measure some other condition after the
// fact.
func (l *location) release() {
	l.vpMu.Lock()
	wasAtCap := l.vpCnt == l.vpMax
	l.vpCnt--
	l.vpMu.Unlock()
	if wasAtCap {
		l.wait.Unlock()
	}
}

// count returns the current VP count. Exposed for tests and diagnostics
// only; it is not part of the admission protocol itself.
func (l *location) count() int {
	l.vpMu.Lock()
	defer l.vpMu.Unlock()
	return l.vpCnt
}

// nextCursor returns the current round-robin cursor value and advances it
// modulo n. It must only be called by a task executing on this location's
// shepherd: the host runtime's cooperative, non-preemptive scheduling
// within a shepherd is what makes the unguarded read-modify-write safe.
func (l *location) nextCursor(n int) int {
	v := int(l.cursor)
	l.cursor++
	if int(l.cursor) == n {
		l.cursor = 0
	}
	return v
}
