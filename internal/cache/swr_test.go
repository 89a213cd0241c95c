package cache

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

func TestLoader_MissFetchesAndCaches(t *testing.T) {
	svc, _, _ := newTestService(t)
	l := NewLoader(svc, "scan", 10*time.Second, 5*time.Second)
	ctx := context.Background()

	var fetches int32
	fetch := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&fetches, 1)
		return "result-1", nil
	}

	var got string
	require.NoError(t, l.Do(ctx, "abc", &got, fetch))
	assert.Equal(t, "result-1", got)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))

	// Second call is a fresh hit: no fetch
	got = ""
	require.NoError(t, l.Do(ctx, "abc", &got, fetch))
	assert.Equal(t, "result-1", got)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))
}

func TestLoader_MissFetchErrorPropagates(t *testing.T) {
	svc, _, _ := newTestService(t)
	l := NewLoader(svc, "scan", 10*time.Second, 5*time.Second)

	errFetch := errors.New("upstream unavailable")
	var got string
	err := l.Do(context.Background(), "abc", &got, func(ctx context.Context) (interface{}, error) {
		return nil, errFetch
	})

	assert.Equal(t, errFetch, err)
	assert.False(t, svc.Exists(context.Background(), Key("scan", "abc")))
}

func TestLoader_StaleHitServesOldValueAndRefreshes(t *testing.T) {
	svc, mr, _ := newTestService(t)
	l := NewLoader(svc, "scan", 10*time.Second, 5*time.Second)
	ctx := context.Background()

	require.True(t, svc.Set(ctx, Key("scan", "abc"), "old", 10*time.Second))

	// Drop the remaining TTL inside the stale window
	mr.FastForward(6 * time.Second)

	var fetches int32
	fetch := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&fetches, 1)
		return "new", nil
	}

	// Stale hit: caller gets the old value without waiting on the fetch
	var got string
	require.NoError(t, l.Do(ctx, "abc", &got, fetch))
	assert.Equal(t, "old", got)

	// The background refresh lands shortly after
	require.Eventually(t, func() bool {
		return !l.refreshing("abc")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))

	got = ""
	require.NoError(t, l.Do(ctx, "abc", &got, fetch))
	assert.Equal(t, "new", got)

	// Refreshed entries live for ttl+staleWindow so the next staleness
	// check has the full window to play with
	assert.Equal(t, 15*time.Second, mr.TTL(Key("scan", "abc")))
}

func TestLoader_ConcurrentStaleHitsSingleRefresh(t *testing.T) {
	svc, mr, _ := newTestService(t)
	l := NewLoader(svc, "scan", 10*time.Second, 5*time.Second)
	ctx := context.Background()

	require.True(t, svc.Set(ctx, Key("scan", "abc"), "old", 10*time.Second))
	mr.FastForward(6 * time.Second)

	var fetches int32
	fetch := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&fetches, 1)
		time.Sleep(100 * time.Millisecond)
		return "new", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var got string
			err := l.Do(ctx, "abc", &got, fetch)
			assert.NoError(t, err)
			assert.Equal(t, "old", got)
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return !l.refreshing("abc")
	}, 2*time.Second, 5*time.Millisecond)

	// All ten stale reads collapsed into one background fetch
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))
}

func TestLoader_RefreshSurvivesCallerCancellation(t *testing.T) {
	svc, mr, _ := newTestService(t)
	l := NewLoader(svc, "scan", 10*time.Second, 5*time.Second)

	require.True(t, svc.Set(context.Background(), Key("scan", "abc"), "old", 10*time.Second))
	mr.FastForward(6 * time.Second)

	fetch := func(ctx context.Context) (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
			return "new", nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	var got string
	require.NoError(t, l.Do(ctx, "abc", &got, fetch))
	assert.Equal(t, "old", got)

	// The triggering request goes away; the refresh keeps running
	cancel()

	require.Eventually(t, func() bool {
		var v string
		if !svc.Get(context.Background(), Key("scan", "abc"), &v) {
			return false
		}
		return v == "new"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestLoader_RefreshErrorKeepsStaleValue(t *testing.T) {
	svc, mr, _ := newTestService(t)
	l := NewLoader(svc, "scan", 10*time.Second, 5*time.Second)
	ctx := context.Background()

	require.True(t, svc.Set(ctx, Key("scan", "abc"), "old", 10*time.Second))
	mr.FastForward(6 * time.Second)

	var got string
	require.NoError(t, l.Do(ctx, "abc", &got, func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("upstream unavailable")
	}))
	assert.Equal(t, "old", got)

	require.Eventually(t, func() bool {
		return !l.refreshing("abc")
	}, 2*time.Second, 5*time.Millisecond)

	// Failed refresh is only logged; the stale entry remains readable
	got = ""
	require.True(t, svc.Get(ctx, Key("scan", "abc"), &got))
	assert.Equal(t, "old", got)
}

func TestLoader_Invalidate(t *testing.T) {
	svc, _, _ := newTestService(t)
	l := NewLoader(svc, "scan", 10*time.Second, 5*time.Second)
	ctx := context.Background()

	require.NoError(t, l.Do(ctx, "abc", nil, func(ctx context.Context) (interface{}, error) {
		return "result", nil
	}))
	require.True(t, svc.Exists(ctx, Key("scan", "abc")))

	assert.True(t, l.Invalidate(ctx, "abc"))
	assert.False(t, svc.Exists(ctx, Key("scan", "abc")))
}
