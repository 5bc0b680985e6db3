// Package hostrt defines the boundary between the futures admission-control
// layer (package future) and the lightweight-thread runtime that actually
// schedules work (package shepherdpool, or any other implementation an
// embedder supplies). Neither future nor shepherdpool imports the other;
// both depend only on the types declared here, mirroring the "required
// interface from the host runtime" boundary of the original qthreads
// futurelib design.
package hostrt

import (
	"context"
	"sync/atomic"

	"github.com/joeycumines/go-future/feb"
)

// RawTask is a handle to a task spawned on the runtime. It carries the
// future/non-future flag (clearable exactly once) and the return slot a
// join blocks on.
type RawTask struct {
	id       uint64
	shepherd int
	isFuture int32 // 0 or 1, see IsFuture/ClearFuture
	Result   *feb.Word
}

// NewRawTask constructs a RawTask bound to shepherd, with isFuture
// recording whether it counts against admission-control limits.
func NewRawTask(id uint64, shepherd int, isFuture bool) *RawTask {
	t := &RawTask{id: id, shepherd: shepherd, Result: feb.NewEmpty()}
	if isFuture {
		t.isFuture = 1
	}
	return t
}

// ID returns the task's runtime-assigned identifier.
func (t *RawTask) ID() uint64 { return t.id }

// Shepherd returns the id of the shepherd this task is running (or ran) on.
func (t *RawTask) Shepherd() int { return t.shepherd }

// IsFuture reports whether the task currently counts toward its
// shepherd's VP-slot cap.
func (t *RawTask) IsFuture() bool {
	return atomic.LoadInt32(&t.isFuture) != 0
}

// ClearFuture monotonically clears the future flag. Once cleared it stays
// cleared for the lifetime of the task.
func (t *RawTask) ClearFuture() {
	atomic.StoreInt32(&t.isFuture, 0)
}

// Runtime is the set of capabilities the futures layer requires from a
// host lightweight-thread runtime: shepherd topology, the ability to spawn
// a task on a specific shepherd (optionally future-flagged) with its
// result observable via RawTask.Result, and the ability to identify the
// shepherd a currently-running task is bound to.
type Runtime interface {
	// ShepherdCount returns the fixed number of shepherds configured for
	// the process lifetime.
	ShepherdCount() int

	// CurrentShepherd returns the id of the shepherd the calling task is
	// executing on, and true, or (0, false) if the caller is not running
	// on a shepherd managed by this runtime (e.g. an external goroutine).
	CurrentShepherd(ctx context.Context) (id int, ok bool)

	// SpawnOn schedules fn to run on the given shepherd. If isFuture is
	// true the spawned task's RawTask.IsFuture reports true until
	// ClearFuture is called. fn's return value and error are delivered
	// through the returned RawTask's Result word.
	SpawnOn(shepherd int, isFuture bool, fn func(context.Context) (any, error)) (*RawTask, error)

	// SpawnShepherdLocal runs fn once, pinned to the given shepherd, and
	// closes the returned channel when fn returns. It is used to fan out
	// per-shepherd initialization/teardown tasks.
	SpawnShepherdLocal(shepherd int, fn func(context.Context)) <-chan struct{}
}
