// Package scheduler provides cancellable run-after-duration actions.
// Thread auto-close and timed unblocks both ride on it.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mailroom.app/engine/common/id"
	"mailroom.app/engine/common/logger"
)

// ActionID identifies one scheduled action.
type ActionID int64

// Payload is the deferred unit of work. It runs at most once, on the
// scheduler's execution context.
type Payload func(ctx context.Context) error

const (
	statePending int32 = iota
	stateFiring
	stateFired
	stateCancelled
)

type action struct {
	id     ActionID
	fireAt time.Time
	timer  *time.Timer
	state  atomic.Int32
	fn     Payload
}

// Scheduler owns a set of independent timers. Cancellation and firing
// race through an atomic state transition: whichever commits first wins,
// so a fired action never also counts as cancelled.
type Scheduler struct {
	mu      sync.Mutex
	actions map[ActionID]*action
	wg      sync.WaitGroup
	closed  bool
}

func New() *Scheduler {
	return &Scheduler{actions: make(map[ActionID]*action)}
}

// Schedule registers fn to run after d. A non-positive d fires the action
// immediately (still asynchronously, on the scheduler's context).
func (s *Scheduler) Schedule(d time.Duration, fn Payload) ActionID {
	if d < 0 {
		d = 0
	}
	a := &action{
		id:     ActionID(id.New()),
		fireAt: time.Now().Add(d),
		fn:     fn,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	s.actions[a.id] = a
	s.wg.Add(1)
	a.timer = time.AfterFunc(d, func() { s.fire(a) })
	s.mu.Unlock()

	return a.id
}

// ScheduleAt registers fn to run at t. Past times fire immediately, which
// is what closure recovery relies on for overdue records.
func (s *Scheduler) ScheduleAt(t time.Time, fn Payload) ActionID {
	return s.Schedule(time.Until(t), fn)
}

// Cancel prevents the action from firing. It returns true only when it
// committed before the fire transition; a concurrent fire that already
// started runs to completion and Cancel reports false.
func (s *Scheduler) Cancel(actionID ActionID) bool {
	s.mu.Lock()
	a, ok := s.actions[actionID]
	s.mu.Unlock()
	if !ok {
		return false
	}

	if !a.state.CompareAndSwap(statePending, stateCancelled) {
		return false
	}
	a.timer.Stop()
	s.remove(a.id)
	s.wg.Done()
	return true
}

// Pending reports whether the action is still scheduled and uncommitted.
func (s *Scheduler) Pending(actionID ActionID) bool {
	s.mu.Lock()
	a, ok := s.actions[actionID]
	s.mu.Unlock()
	return ok && a.state.Load() == statePending
}

// Len returns the number of live (pending or firing) actions.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions)
}

// Close stops accepting new actions and waits for in-flight payloads.
// Pending timers are cancelled.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	pending := make([]*action, 0, len(s.actions))
	for _, a := range s.actions {
		pending = append(pending, a)
	}
	s.mu.Unlock()

	for _, a := range pending {
		if a.state.CompareAndSwap(statePending, stateCancelled) {
			a.timer.Stop()
			s.remove(a.id)
			s.wg.Done()
		}
	}
	s.wg.Wait()
}

func (s *Scheduler) fire(a *action) {
	// The fire commit point: once we move pending -> firing, Cancel can no
	// longer win.
	if !a.state.CompareAndSwap(statePending, stateFiring) {
		return
	}
	defer s.wg.Done()
	defer s.remove(a.id)

	ctx := logger.WithLogFields(context.Background(), logger.LogFields{
		Component: "mailroom.scheduler",
	})

	if err := s.runPayload(ctx, a); err != nil {
		// Reported once, no retry. A failed payload is the payload
		// owner's problem to resolve, not the scheduler's.
		slog.ErrorContext(ctx, "scheduled action failed",
			"action_id", int64(a.id),
			"error", err)
	}
	a.state.Store(stateFired)
}

func (s *Scheduler) runPayload(ctx context.Context, a *action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.fn(ctx)
}

func (s *Scheduler) remove(actionID ActionID) {
	s.mu.Lock()
	delete(s.actions, actionID)
	s.mu.Unlock()
}
