// Package sequence runs multi-step fetch sequences with latest-wins semantics.
//
// Each action (for example "load_layer") has a monotonically increasing
// generation. Starting a run for an action cancels the previous run of the
// same action, and only the run holding the newest generation may commit
// results. Runs of different actions never interfere.
package sequence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Outcome string

const (
	Completed  Outcome = "completed"
	Failed     Outcome = "failed"
	Aborted    Outcome = "aborted"
	Superseded Outcome = "superseded"
)

// ObserveFunc receives the outcome of every finished run.
type ObserveFunc func(action string, outcome Outcome, d time.Duration)

type slot struct {
	generation uint64
	cancel     context.CancelFunc
}

type Tracker struct {
	mu      sync.Mutex
	root    context.Context
	stop    context.CancelFunc
	slots   map[string]*slot
	gens    map[string]uint64
	observe ObserveFunc
	wg      sync.WaitGroup
}

func NewTracker(observe ObserveFunc) *Tracker {
	root, stop := context.WithCancel(context.Background())
	return &Tracker{
		root:    root,
		stop:    stop,
		slots:   make(map[string]*slot),
		gens:    make(map[string]uint64),
		observe: observe,
	}
}

// Ticket identifies one run. It stays valid after the run finishes but
// Commit refuses it once a newer run of the same action begins.
type Ticket struct {
	Action     string
	Generation uint64
	ID         uuid.UUID

	tracker *Tracker
	started time.Time
}

// Begin claims the next generation for action and cancels the run holding
// the previous one. The returned context is cancelled when a newer run
// begins or the tracker is closed.
func (t *Tracker) Begin(action string) (context.Context, Ticket) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.beginLocked(action)
}

func (t *Tracker) beginLocked(action string) (context.Context, Ticket) {
	ctx, cancel := context.WithCancel(t.root)
	if prev, ok := t.slots[action]; ok {
		prev.cancel()
	}
	t.gens[action]++
	gen := t.gens[action]
	t.slots[action] = &slot{generation: gen, cancel: cancel}

	return ctx, Ticket{
		Action:     action,
		Generation: gen,
		ID:         uuid.New(),
		tracker:    t,
		started:    time.Now(),
	}
}

// current reports whether tk still holds the newest generation of its action.
func (tk Ticket) current() bool {
	if tk.tracker == nil {
		return false
	}
	tk.tracker.mu.Lock()
	defer tk.tracker.mu.Unlock()
	return tk.tracker.gens[tk.Action] == tk.Generation
}

// Commit runs fn only if tk is still current. No other run of the same
// action can begin while fn executes.
func (tk Ticket) Commit(fn func()) bool {
	if tk.tracker == nil {
		return false
	}
	tk.tracker.mu.Lock()
	defer tk.tracker.mu.Unlock()
	if tk.tracker.gens[tk.Action] != tk.Generation {
		return false
	}
	fn()
	return true
}

// Finish releases the run's context and reports its outcome. A run that
// lost its generation is always reported as superseded.
func (tk Ticket) Finish(outcome Outcome) Outcome {
	t := tk.tracker
	if t == nil {
		return outcome
	}

	t.mu.Lock()
	current := t.gens[tk.Action] == tk.Generation
	if s, ok := t.slots[tk.Action]; ok && s.generation == tk.Generation {
		s.cancel()
		delete(t.slots, tk.Action)
	}
	t.mu.Unlock()

	if !current {
		outcome = Superseded
	}
	if t.observe != nil {
		t.observe(tk.Action, outcome, time.Since(tk.started))
	}
	return outcome
}

// Run is a handle on a sequence started in the background.
type Run struct {
	Action     string
	Generation uint64
	ID         uuid.UUID

	done    chan struct{}
	outcome Outcome
}

// Done is closed when the run has finished.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes or ctx is done.
func (r *Run) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-r.done:
		return r.outcome, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Start begins a new run of action and executes fn on its own goroutine.
func (t *Tracker) Start(action string, fn func(ctx context.Context, tk Ticket) Outcome) *Run {
	ctx, tk := t.Begin(action)
	return t.launch(ctx, tk, fn)
}

// StartWith claims the next generation of action and calls claim while no
// other run of the action can begin, so state written by claim is ordered
// with the generation. When claim returns false the previous run stays
// cancelled, no run starts and StartWith returns nil. claim must not call
// back into the tracker.
func (t *Tracker) StartWith(action string, claim func(tk Ticket) bool, fn func(ctx context.Context, tk Ticket) Outcome) *Run {
	t.mu.Lock()
	ctx, tk := t.beginLocked(action)
	if !claim(tk) {
		if s, ok := t.slots[action]; ok && s.generation == tk.Generation {
			s.cancel()
			delete(t.slots, action)
		}
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()
	return t.launch(ctx, tk, fn)
}

func (t *Tracker) launch(ctx context.Context, tk Ticket, fn func(ctx context.Context, tk Ticket) Outcome) *Run {
	run := &Run{
		Action:     tk.Action,
		Generation: tk.Generation,
		ID:         tk.ID,
		done:       make(chan struct{}),
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer close(run.done)
		run.outcome = tk.Finish(fn(ctx, tk))
	}()
	return run
}

// Close cancels every in-flight run and waits for them to return.
func (t *Tracker) Close() {
	t.stop()
	t.wg.Wait()
}
