// go-gravitrax
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-gravitrax.
//
// go-gravitrax is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-gravitrax is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-gravitrax; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package sequence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	gravitrax "github.com/ZaparooProject/go-gravitrax"
)

// ErrRunnerClosed is returned by Serve once the runner has been closed
var ErrRunnerClosed = errors.New("runner closed")

// DefaultPendingSize bounds the number of queued trigger firings
const DefaultPendingSize = 16

// Sender sends periodic signals. *gravitrax.Bridge implements it.
type Sender interface {
	SendPeriodic(ctx context.Context, status gravitrax.Status, color gravitrax.Color,
		count int, gap time.Duration, opts ...gravitrax.SendOption) error
}

// RunnerMetrics counts trigger activity
type RunnerMetrics struct {
	Fired   int64
	Dropped int64
	Failed  int64
	Steps   int64
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithRunnerLogger sets the logger
func WithRunnerLogger(log gravitrax.Logger) RunnerOption {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// WithPendingSize sets how many trigger firings may wait for Serve
func WithPendingSize(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.pending = make(chan firing, n)
		}
	}
}

type firing struct {
	when    Match
	actions []Step
}

// Runner executes sequences and reacts to received signals with triggers.
//
// Observe matches events against the triggers and queues the actions; Serve
// executes queued actions one firing at a time so the notification
// goroutine is never blocked by sending.
type Runner struct {
	sender   Sender
	log      gravitrax.Logger
	pending  chan firing
	closed   chan struct{}
	triggers []Trigger
	mu       sync.Mutex
	once     sync.Once
	fired    int64
	dropped  int64
	failed   int64
	steps    int64
}

// NewRunner creates a runner sending through sender
func NewRunner(sender Sender, opts ...RunnerOption) *Runner {
	r := &Runner{
		sender:  sender,
		log:     gravitrax.NopLogger(),
		pending: make(chan firing, DefaultPendingSize),
		closed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the steps of seq in order and stops at the first failure
func (r *Runner) Run(ctx context.Context, seq Sequence, opts ...gravitrax.SendOption) error {
	if err := seq.Validate(); err != nil {
		return err
	}
	r.log.Infof("running sequence %q (%d steps)", seq.Name, len(seq.Steps))
	if err := r.RunSteps(ctx, seq.Steps, opts...); err != nil {
		return fmt.Errorf("sequence %q: %w", seq.Name, err)
	}
	return nil
}

// RunSteps executes steps in order. Extra opts are applied after the
// step's own parameters.
func (r *Runner) RunSteps(ctx context.Context, steps []Step, opts ...gravitrax.SendOption) error {
	for i, step := range steps {
		if err := r.runStep(ctx, step, opts); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step, err)
		}
	}
	return nil
}

func (r *Runner) runStep(ctx context.Context, step Step, extra []gravitrax.SendOption) error {
	if err := step.Validate(); err != nil {
		return err
	}
	atomic.AddInt64(&r.steps, 1)
	r.log.Debugf("step: %s", step)

	opts := append(step.sendOptions(), extra...)
	return r.sender.SendPeriodic(ctx, step.Status, step.Color, step.Count, step.Pause.Duration(), opts...)
}

// AddTrigger registers t. A trigger with the same When replaces the
// earlier one.
func (r *Runner) AddTrigger(t Trigger) error {
	if err := t.Validate(); err != nil {
		return err
	}
	actions := make([]Step, len(t.Actions))
	copy(actions, t.Actions)
	t.Actions = actions

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.triggers {
		if existing.When == t.When {
			r.triggers[i] = t
			return nil
		}
	}
	r.triggers = append(r.triggers, t)
	return nil
}

// RemoveTrigger drops the trigger for when and reports whether one existed
func (r *Runner) RemoveTrigger(when Match) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.triggers {
		if t.When == when {
			r.triggers = append(r.triggers[:i], r.triggers[i+1:]...)
			return true
		}
	}
	return false
}

// Triggers returns a copy of the registered triggers
func (r *Runner) Triggers() []Trigger {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Trigger, len(r.triggers))
	copy(out, r.triggers)
	return out
}

// Observe is a gravitrax.Observer. It never blocks; firings that do not
// fit the pending queue are dropped. Frames with a bad checksum are ignored.
func (r *Runner) Observe(_ *gravitrax.Bridge, ev gravitrax.Event) {
	if !ev.IsSignal() || ev.Signal == nil || !ev.ChecksumValid {
		return
	}

	r.mu.Lock()
	var matched []firing
	for _, t := range r.triggers {
		if t.When.Matches(*ev.Signal) {
			matched = append(matched, firing{when: t.When, actions: t.Actions})
		}
	}
	r.mu.Unlock()

	for _, f := range matched {
		atomic.AddInt64(&r.fired, 1)
		select {
		case r.pending <- f:
		default:
			atomic.AddInt64(&r.dropped, 1)
			r.log.Warnf("trigger %s dropped, runner busy", f.when)
		}
	}
}

// Serve executes queued trigger actions until ctx ends or Close is called.
// Failed actions are logged and counted.
func (r *Runner) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.closed:
			return ErrRunnerClosed
		case f := <-r.pending:
			r.log.Infof("trigger %s fired", f.when)
			if err := r.RunSteps(ctx, f.actions); err != nil {
				atomic.AddInt64(&r.failed, 1)
				r.log.Errorf("trigger %s: %v", f.when, err)
			}
		}
	}
}

// Close stops Serve
func (r *Runner) Close() {
	r.once.Do(func() { close(r.closed) })
}

// Metrics returns the trigger counters
func (r *Runner) Metrics() RunnerMetrics {
	return RunnerMetrics{
		Fired:   atomic.LoadInt64(&r.fired),
		Dropped: atomic.LoadInt64(&r.dropped),
		Failed:  atomic.LoadInt64(&r.failed),
		Steps:   atomic.LoadInt64(&r.steps),
	}
}
