package shepherdpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidCount(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
	_, err = New(-1)
	assert.Error(t, err)
}

func TestPool_SpawnOn_RunsOnRequestedShepherd(t *testing.T) {
	p, err := New(4)
	require.NoError(t, err)
	defer func() { _ = p.Close(context.Background()) }()

	for shep := 0; shep < 4; shep++ {
		shep := shep
		task, err := p.SpawnOn(shep, false, func(ctx context.Context) (any, error) {
			got, ok := p.CurrentShepherd(ctx)
			assert.True(t, ok)
			assert.Equal(t, shep, got)
			return shep, nil
		})
		require.NoError(t, err)
		v, e, cerr := task.Result.ReadWhenFull(context.Background())
		require.NoError(t, cerr)
		require.NoError(t, e)
		assert.Equal(t, shep, v)
	}
}

func TestPool_SpawnOn_OutOfRange(t *testing.T) {
	p, err := New(2)
	require.NoError(t, err)
	defer func() { _ = p.Close(context.Background()) }()

	_, err = p.SpawnOn(2, false, func(context.Context) (any, error) { return nil, nil })
	assert.Error(t, err)
	_, err = p.SpawnOn(-1, false, func(context.Context) (any, error) { return nil, nil })
	assert.Error(t, err)
}

func TestPool_SpawnOn_PropagatesError(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)
	defer func() { _ = p.Close(context.Background()) }()

	boom := errors.New("boom")
	task, err := p.SpawnOn(0, false, func(context.Context) (any, error) { return nil, boom })
	require.NoError(t, err)
	_, e, cerr := task.Result.ReadWhenFull(context.Background())
	require.NoError(t, cerr)
	assert.ErrorIs(t, e, boom)
}

func TestPool_SpawnOn_RecoversPanic(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)
	defer func() { _ = p.Close(context.Background()) }()

	task, err := p.SpawnOn(0, false, func(context.Context) (any, error) { panic("kaboom") })
	require.NoError(t, err)
	_, e, cerr := task.Result.ReadWhenFull(context.Background())
	require.NoError(t, cerr)
	assert.Error(t, e)
}

func TestPool_RunsSequentiallyPerShepherd(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)
	defer func() { _ = p.Close(context.Background()) }()

	var running int32
	var maxConcurrent int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		_, err := p.SpawnOn(0, false, func(context.Context) (any, error) {
			defer wg.Done()
			n := atomic.AddInt32(&running, 1)
			for {
				cur := atomic.LoadInt32(&maxConcurrent)
				if n <= cur || atomic.CompareAndSwapInt32(&maxConcurrent, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil, nil
		})
		require.NoError(t, err)
	}
	wg.Wait()
	assert.EqualValues(t, 1, maxConcurrent, "shepherd must run tasks one at a time")
}

func TestPool_SpawnShepherdLocal(t *testing.T) {
	p, err := New(3)
	require.NoError(t, err)
	defer func() { _ = p.Close(context.Background()) }()

	var hit [3]int32
	for i := 0; i < 3; i++ {
		i := i
		done := p.SpawnShepherdLocal(i, func(ctx context.Context) {
			got, ok := p.CurrentShepherd(ctx)
			assert.True(t, ok)
			assert.Equal(t, i, got)
			atomic.StoreInt32(&hit[i], 1)
		})
		<-done
	}
	for i := range hit {
		assert.EqualValues(t, 1, hit[i])
	}
}

func TestPool_Close_WaitsForQueueDrain(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)

	var completed int32
	for i := 0; i < 10; i++ {
		_, err := p.SpawnOn(0, false, func(context.Context) (any, error) {
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&completed, 1)
			return nil, nil
		})
		require.NoError(t, err)
	}

	require.NoError(t, p.Close(context.Background()))
	assert.EqualValues(t, 10, completed)
}

func TestPool_Close_ContextCancel(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)

	_, err = p.SpawnOn(0, false, func(context.Context) (any, error) {
		time.Sleep(100 * time.Millisecond)
		return nil, nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	err = p.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// let the background drain finish so the test doesn't leak goroutines.
	time.Sleep(150 * time.Millisecond)
}
