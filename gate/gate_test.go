package gate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	directive "github.com/aurora-voice/directive-core"
)

func audioBlocking() directive.BlockingPolicy {
	return directive.BlockingPolicy{Mediums: []directive.Medium{directive.AUDIO}, IsBlocking: true}
}

func TestTryAdmitNonConflicting(t *testing.T) {
	g := New()
	require.True(t, g.TryAdmit("m1", audioBlocking()))
	require.True(t, g.TryAdmit("m2", directive.BlockingPolicy{Mediums: []directive.Medium{directive.VISUAL}, IsBlocking: true}))
	assert.Equal(t, 2, g.InFlightCount())
}

func TestTryAdmitRejectsConflicting(t *testing.T) {
	g := New()
	require.True(t, g.TryAdmit("m1", audioBlocking()))
	assert.False(t, g.TryAdmit("m2", audioBlocking()))
}

func TestReleaseWakesWaiter(t *testing.T) {
	g := New()
	require.True(t, g.TryAdmit("m1", audioBlocking()))

	var admitted atomic.Bool
	done := make(chan struct{})
	go func() {
		err := g.WaitUntilAdmitted(context.Background(), nil, "m2", audioBlocking())
		if err == nil {
			admitted.Store(true)
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, admitted.Load())

	g.Release("m1")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter never woke up after Release")
	}
	assert.True(t, admitted.Load())
}

func TestWaitUntilAdmittedRespectsCancelChannel(t *testing.T) {
	g := New()
	require.True(t, g.TryAdmit("m1", audioBlocking()))

	cancel := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.WaitUntilAdmitted(context.Background(), cancel, "m2", audioBlocking())
	}()

	time.Sleep(10 * time.Millisecond)
	close(cancel)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrCanceled)
	case <-time.After(time.Second):
		t.Fatal("WaitUntilAdmitted never returned after cancel")
	}
}

func TestWaitUntilAdmittedRespectsContext(t *testing.T) {
	g := New()
	require.True(t, g.TryAdmit("m1", audioBlocking()))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.WaitUntilAdmitted(ctx, nil, "m2", audioBlocking())
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("WaitUntilAdmitted never returned after context cancellation")
	}
}

func TestWaitUntilAdmittedRefusesAlreadyCancelledEntryEvenWhenAdmittable(t *testing.T) {
	g := New()
	cancel := make(chan struct{})
	close(cancel)

	err := g.WaitUntilAdmitted(context.Background(), cancel, "m1", audioBlocking())
	assert.ErrorIs(t, err, ErrCanceled)
	assert.Equal(t, 0, g.InFlightCount())
}

func TestReleaseOfUnheldMessageIsNoop(t *testing.T) {
	g := New()
	g.Release("never-held")
	assert.Equal(t, 0, g.InFlightCount())
}

func TestConcurrentAdmitReleaseNeverDoubleAdmitsConflictingPolicies(t *testing.T) {
	g := New()
	var wg sync.WaitGroup
	var violations atomic.Int32
	var active atomic.Int32

	const n = 50
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%26))
			if err := g.WaitUntilAdmitted(context.Background(), nil, id, audioBlocking()); err != nil {
				violations.Add(1)
				return
			}
			if active.Add(1) > 1 {
				violations.Add(1)
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			g.Release(id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(0), violations.Load())
	assert.Equal(t, 0, g.InFlightCount())
}
