package feb

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWord_LockUnlock(t *testing.T) {
	w := NewFull(nil)

	require.NoError(t, w.Lock(context.Background()))

	var unlocked int32
	done := make(chan struct{})
	go func() {
		require.NoError(t, w.Lock(context.Background()))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Lock returned before Unlock was called")
	case <-time.After(20 * time.Millisecond):
	}

	unlocked = 1
	w.Unlock()
	<-done
	assert.EqualValues(t, 1, unlocked)
}

func TestWord_Lock_ContextCancel(t *testing.T) {
	w := NewEmpty()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := w.Lock(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWord_Unlock_WakesExactlyOneWaiter(t *testing.T) {
	w := NewEmpty()

	const waiters = 5
	var wg sync.WaitGroup
	woke := make(chan int, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := w.Lock(context.Background()); err == nil {
				woke <- i
			}
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	w.Unlock()
	time.Sleep(20 * time.Millisecond)

	assert.Len(t, woke, 1, "exactly one waiter should have been released")

	// release the rest so the goroutines don't leak past the test. Unlock
	// on a still-full word adds no token, so wait for each release to be
	// taken before the next.
	for i := 1; i < waiters; i++ {
		w.Unlock()
		for len(woke) <= i {
			time.Sleep(time.Millisecond)
		}
	}
	wg.Wait()
	close(woke)
}

func TestWord_WriteFullReadWhenFull(t *testing.T) {
	w := NewEmpty()

	type result struct {
		val any
		err error
	}
	results := make(chan result, 3)
	for i := 0; i < 3; i++ {
		go func() {
			v, e, cerr := w.ReadWhenFull(context.Background())
			require.NoError(t, cerr)
			results <- result{v, e}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	w.WriteFull(42, nil)

	for i := 0; i < 3; i++ {
		r := <-results
		assert.Equal(t, 42, r.val)
		assert.NoError(t, r.err)
	}
}

func TestWord_ReadWhenFull_AlreadyFull(t *testing.T) {
	w := NewFull("ready")
	v, err, cerr := w.ReadWhenFull(context.Background())
	require.NoError(t, cerr)
	assert.Equal(t, "ready", v)
	assert.NoError(t, err)
}

func TestWord_ReadWhenFull_ContextCancel(t *testing.T) {
	w := NewEmpty()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, _, cerr := w.ReadWhenFull(ctx)
	assert.ErrorIs(t, cerr, context.DeadlineExceeded)
}
