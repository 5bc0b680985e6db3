package future

import (
	"context"

	"github.com/joeycumines/go-future/hostrt"
)

// Task is a handle to a future spawned by Controller.Fork. It wraps the
// host runtime's raw task handle with the location it was admitted on, so
// Yield/Acquire/Exit can address the right admission slot in O(1).
type Task struct {
	raw  *hostrt.RawTask
	loc  *location
	ctrl *Controller
}

type taskCtxKey struct{}

// withTask returns a context carrying t, so code running inside the
// future itself can retrieve its own handle via Controller.Self.
func withTask(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, taskCtxKey{}, t)
}

// Self returns the Task handle bound to ctx, i.e. the handle for the
// future currently executing, or nil if ctx was not produced by running
// inside a Controller.Fork call (for example, an external, non-future
// caller). Yield, Acquire, and Exit all accept a nil Task as a
// well-defined no-op, matching the source's treatment of non-future
// callers.
func (c *Controller) Self(ctx context.Context) *Task {
	t, _ := ctx.Value(taskCtxKey{}).(*Task)
	return t
}

// Exit says "I am no longer a future, permanently." It is equivalent to
// Yield followed by clearing the task's future flag; once cleared, further
// Yield/Acquire calls on this Task are no-ops. Exit is idempotent (calling
// it twice is safe and has no additional effect).
func (t *Task) Exit() {
	if t == nil {
		return
	}
	t.ctrl.Yield(t)
	t.raw.ClearFuture()
}

// IsFuture reports whether the task currently counts toward its
// location's VP-slot cap.
func (t *Task) IsFuture() bool {
	return t != nil && t.raw.IsFuture()
}
