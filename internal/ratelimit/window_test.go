package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Hromosvod-Enjoyers/Kocek/internal/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_AdmitUpToLimit(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	w := NewWindow(clk)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := w.Admit(ctx, "10.0.0.1", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be admitted", i+1)
		clk.Advance(time.Second)
	}

	ok, err := w.Admit(ctx, "10.0.0.1", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "6th request inside the window must be rejected")

	clk.Advance(time.Minute)
	ok, err = w.Admit(ctx, "10.0.0.1", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "window elapsed, request should be admitted again")
}

func TestWindow_RejectionIsNotRecorded(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	w := NewWindow(clk)
	ctx := context.Background()

	ok, _ := w.Admit(ctx, "k", 1, 10*time.Second)
	require.True(t, ok)

	// Rejected attempts must not extend the window.
	for i := 0; i < 9; i++ {
		clk.Advance(time.Second)
		ok, _ = w.Admit(ctx, "k", 1, 10*time.Second)
		require.False(t, ok)
	}
	clk.Advance(time.Second)
	ok, _ = w.Admit(ctx, "k", 1, 10*time.Second)
	assert.True(t, ok)
}

func TestWindow_ExactWindowBoundaryIsExpired(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	w := NewWindow(clk)
	ctx := context.Background()

	ok, _ := w.Admit(ctx, "k", 1, time.Minute)
	require.True(t, ok)
	clk.Advance(time.Minute - time.Millisecond)
	ok, _ = w.Admit(ctx, "k", 1, time.Minute)
	require.False(t, ok)
	clk.Advance(time.Millisecond)
	ok, _ = w.Admit(ctx, "k", 1, time.Minute)
	assert.True(t, ok)
}

func TestWindow_KeysAreIndependent(t *testing.T) {
	w := NewWindow(clock.NewFake(time.Unix(0, 0)))
	ctx := context.Background()

	ok, _ := w.Admit(ctx, "a", 1, time.Minute)
	require.True(t, ok)
	ok, _ = w.Admit(ctx, "a", 1, time.Minute)
	require.False(t, ok)
	ok, _ = w.Admit(ctx, "b", 1, time.Minute)
	assert.True(t, ok)
}

func TestWindow_EmptyKeyUsesUnknownBucket(t *testing.T) {
	w := NewWindow(clock.NewFake(time.Unix(0, 0)))
	ctx := context.Background()

	ok, _ := w.Admit(ctx, "", 1, time.Minute)
	require.True(t, ok)
	ok, _ = w.Admit(ctx, UnknownKey, 1, time.Minute)
	assert.False(t, ok, "empty key and %q share a bucket", UnknownKey)
}

func TestWindow_ConcurrentAdmitsRespectLimit(t *testing.T) {
	w := NewWindow(clock.NewFake(time.Unix(0, 0)))
	ctx := context.Background()

	var admitted int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := w.Admit(ctx, "shared", 10, time.Minute); ok {
				atomic.AddInt32(&admitted, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(10), admitted)
}

func TestWindow_Sweep(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	w := NewWindow(clk)
	ctx := context.Background()

	_, _ = w.Admit(ctx, "old", 5, time.Minute)
	clk.Advance(30 * time.Second)
	_, _ = w.Admit(ctx, "fresh", 5, time.Minute)
	clk.Advance(31 * time.Second)

	assert.Equal(t, 1, w.Sweep())
	assert.Equal(t, 1, w.Len())

	ok, _ := w.Admit(ctx, "old", 1, time.Minute)
	assert.True(t, ok)
}

func TestWindow_RunSweeperStopsOnCancel(t *testing.T) {
	w := NewWindow(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.RunSweeper(ctx, 5*time.Millisecond) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
