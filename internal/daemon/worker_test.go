package daemon

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/build"
	"git.home.luguber.info/inful/sitegen/internal/daemon/events"
)

type fakeRunner struct {
	mu      sync.Mutex
	reasons []string
	active  atomic.Int32
	overlap atomic.Bool
	delay   time.Duration
}

func (f *fakeRunner) Run(_ context.Context, reason string) (*build.PassResult, error) {
	if f.active.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.active.Add(-1)
	time.Sleep(f.delay)

	f.mu.Lock()
	f.reasons = append(f.reasons, reason)
	n := len(f.reasons)
	f.mu.Unlock()
	return &build.PassResult{ID: fmt.Sprintf("%s-%d", reason, n), Reason: reason, Status: build.StatusSuccess}, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reasons)
}

func TestWorker_RunsPassPerRebuildNow(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	doneCh, unsub := events.Subscribe[events.PassCompleted](bus, 4)
	defer unsub()

	runner := &fakeRunner{}
	w, err := NewWorker(bus, runner, nil)
	require.NoError(t, err)
	go func() { _ = w.Run(t.Context()) }()
	<-w.Ready()

	require.NoError(t, bus.Publish(t.Context(), events.RebuildNow{LastReason: events.ReasonFSChange}))

	select {
	case got := <-doneCh:
		require.Equal(t, events.ReasonFSChange, got.Result.Reason)
	case <-time.After(time.Second):
		t.Fatal("no PassCompleted")
	}
	require.False(t, w.Running())
}

func TestWorker_PassesNeverOverlap(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	runner := &fakeRunner{delay: 20 * time.Millisecond}
	w, err := NewWorker(bus, runner, nil)
	require.NoError(t, err)
	go func() { _ = w.Run(t.Context()) }()
	<-w.Ready()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.RunPass(t.Context(), events.ReasonStartup)
	}()
	require.NoError(t, bus.Publish(t.Context(), events.RebuildNow{LastReason: events.ReasonFSChange}))
	wg.Wait()

	require.Eventually(t, func() bool { return runner.count() == 2 }, time.Second, 5*time.Millisecond)
	require.False(t, runner.overlap.Load())
}

func TestCoordinator_BurstDuringPassYieldsOneFollowUp(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	runner := &fakeRunner{delay: 60 * time.Millisecond}
	w, err := NewWorker(bus, runner, nil)
	require.NoError(t, err)
	d, err := NewDebouncer(bus, DebouncerConfig{
		CheckPassRunning: w.Running,
		PollInterval:     5 * time.Millisecond,
	})
	require.NoError(t, err)

	go func() { _ = w.Run(t.Context()) }()
	go func() { _ = d.Run(t.Context()) }()
	<-w.Ready()
	<-d.Ready()

	// First request starts a pass immediately; the rest arrive while it runs.
	for range 5 {
		require.NoError(t, bus.Publish(t.Context(), events.RebuildRequested{Reason: events.ReasonFSChange}))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return runner.count() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, 2, runner.count())
	require.False(t, runner.overlap.Load())
}

func TestNewWorker_Validation(t *testing.T) {
	_, err := NewWorker(nil, &fakeRunner{}, nil)
	require.Error(t, err)

	bus := events.NewBus()
	defer bus.Close()
	_, err = NewWorker(bus, nil, nil)
	require.Error(t, err)
}
