package dispatch

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	// ErrRunNotFound is returned for an unknown run id
	ErrRunNotFound = errors.New("run not found")
	// ErrRunFinished is returned when cancelling a run that already ended
	ErrRunFinished = errors.New("run already finished")
)

// DefaultHistory is the number of finished runs kept per owner
const DefaultHistory = 20

type trackedRun struct {
	run    Run
	cancel context.CancelFunc
}

// Tracker keeps the latest snapshot of every run in memory
type Tracker struct {
	mu      sync.Mutex
	runs    map[string]*trackedRun
	history int
	wg      sync.WaitGroup
}

// NewTracker creates a Tracker keeping history finished runs per owner
func NewTracker(history int) *Tracker {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Tracker{
		runs:    make(map[string]*trackedRun),
		history: history,
	}
}

// Launch registers run and executes exec in the background with a
// context that Cancel can stop.
func (t *Tracker) Launch(parent context.Context, run Run, exec func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(parent)

	t.mu.Lock()
	t.runs[run.ID] = &trackedRun{run: run.Clone(), cancel: cancel}
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer cancel()
		exec(ctx)
	}()
}

// Wait blocks until every launched run has returned
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// OnUpdate implements Observer
func (t *Tracker) OnUpdate(run Run) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr, ok := t.runs[run.ID]
	if !ok {
		tr = &trackedRun{}
		t.runs[run.ID] = tr
	}
	tr.run = run.Clone()

	if run.Finished() {
		t.prune(run.OwnerID)
	}
}

// Get returns the latest snapshot of a run owned by ownerID
func (t *Tracker) Get(id, ownerID string) (Run, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr, ok := t.runs[id]
	if !ok || tr.run.OwnerID != ownerID {
		return Run{}, ErrRunNotFound
	}
	return tr.run.Clone(), nil
}

// List returns the runs of ownerID, newest first
func (t *Tracker) List(ownerID string) []Run {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Run
	for _, tr := range t.runs {
		if tr.run.OwnerID == ownerID {
			out = append(out, tr.run.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Cancel stops a running run. Recipients not yet processed stay pending.
func (t *Tracker) Cancel(id, ownerID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr, ok := t.runs[id]
	if !ok || tr.run.OwnerID != ownerID {
		return ErrRunNotFound
	}
	if tr.run.Finished() || tr.cancel == nil {
		return ErrRunFinished
	}
	tr.cancel()
	return nil
}

// prune drops the oldest finished runs of owner beyond the history size
func (t *Tracker) prune(ownerID string) {
	var finished []string
	for id, tr := range t.runs {
		if tr.run.OwnerID == ownerID && tr.run.Finished() {
			finished = append(finished, id)
		}
	}
	if len(finished) <= t.history {
		return
	}

	sort.Slice(finished, func(i, j int) bool {
		return t.runs[finished[i]].run.FinishedAt.Before(t.runs[finished[j]].run.FinishedAt)
	})
	for _, id := range finished[:len(finished)-t.history] {
		delete(t.runs, id)
	}
}
