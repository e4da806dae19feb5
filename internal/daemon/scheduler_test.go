package daemon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/daemon/events"
)

func TestScheduler_PublishesScheduledRebuild(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	reqCh, unsub := events.Subscribe[events.RebuildRequested](bus, 4)
	defer unsub()

	s, err := NewScheduler(bus, nil)
	require.NoError(t, err)

	id, err := s.ScheduleRebuild(t.Context(), 20*time.Millisecond)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	s.Start()
	defer func() { require.NoError(t, s.Stop()) }()

	select {
	case got := <-reqCh:
		require.Equal(t, events.ReasonScheduled, got.Reason)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not request a rebuild")
	}
}

func TestScheduler_RejectsNonPositiveInterval(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	s, err := NewScheduler(bus, nil)
	require.NoError(t, err)
	defer func() { _ = s.Stop() }()

	_, err = s.ScheduleRebuild(t.Context(), 0)
	require.Error(t, err)
}
