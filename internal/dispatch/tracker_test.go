package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_LaunchAndGet(t *testing.T) {
	tracker := NewTracker(0)
	d := New(&recordingSender{}, discardLogger(), WithDelay(0), WithObserver(tracker))

	req := testRequest()
	run, err := d.Prepare(req)
	require.NoError(t, err)

	tracker.Launch(context.Background(), *run, func(ctx context.Context) {
		d.Execute(ctx, req, run)
	})
	tracker.Wait()

	got, err := tracker.Get(run.ID, "owner-1")
	require.NoError(t, err)
	assert.True(t, got.Finished())
	assert.Equal(t, OutcomeAllSent, Summarize(got).Outcome)

	_, err = tracker.Get(run.ID, "someone-else")
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = tracker.Get("missing", "owner-1")
	assert.ErrorIs(t, err, ErrRunNotFound)

	assert.ErrorIs(t, tracker.Cancel(run.ID, "owner-1"), ErrRunFinished)
}

func TestTracker_Cancel(t *testing.T) {
	tracker := NewTracker(0)
	sent := make(chan struct{})
	sender := &recordingSender{onSend: func(n int) {
		if n == 0 {
			close(sent)
		}
	}}
	d := New(sender, discardLogger(), WithDelay(time.Hour), WithObserver(tracker))

	req := testRequest()
	run, err := d.Prepare(req)
	require.NoError(t, err)

	tracker.Launch(context.Background(), *run, func(ctx context.Context) {
		d.Execute(ctx, req, run)
	})

	<-sent
	require.NoError(t, tracker.Cancel(run.ID, "owner-1"))
	tracker.Wait()

	got, err := tracker.Get(run.ID, "owner-1")
	require.NoError(t, err)
	assert.True(t, got.Cancelled)
	assert.Equal(t, "1 sent, 0 failed, 2 pending", Summarize(got).String())
}

func TestTracker_ListAndPrune(t *testing.T) {
	tracker := NewTracker(2)
	base := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		run := Run{
			ID:         string(rune('a' + i)),
			OwnerID:    "owner-1",
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + time.Second),
		}
		tracker.OnUpdate(run)
	}
	tracker.OnUpdate(Run{ID: "other", OwnerID: "owner-2", StartedAt: base})

	runs := tracker.List("owner-1")
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	assert.Len(t, tracker.List("owner-2"), 1)
	assert.Empty(t, tracker.List("nobody"))
}
