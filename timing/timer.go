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

// Package timing measures the time between a start signal and a finish
// signal on a GraviTrax track.
//
// Every start is queued. A finish consumes the oldest pending start so
// several marbles can be on the track at once. Starts that see no finish
// within the timeout expire.
package timing

import (
	"sync"
	"sync/atomic"
	"time"

	gravitrax "github.com/ZaparooProject/go-gravitrax"
)

// Matcher selects signals
type Matcher func(sig gravitrax.Signal) bool

// StartOn matches signals of color and starter button presses
func StartOn(color gravitrax.Color) Matcher {
	return func(sig gravitrax.Signal) bool {
		return sig.Color == color || sig.Status == gravitrax.StatusStarterPress
	}
}

// FinishOn matches signals of color sent by a finish stone
func FinishOn(color gravitrax.Color) Matcher {
	return func(sig gravitrax.Signal) bool {
		return sig.Stone == gravitrax.StoneFinish && sig.Color == color
	}
}

// SignalIs matches signals with exactly this status, stone and colour
func SignalIs(status gravitrax.Status, stone gravitrax.Stone, color gravitrax.Color) Matcher {
	return func(sig gravitrax.Signal) bool {
		return sig.Status == status && sig.Stone == stone && sig.Color == color
	}
}

// Result is one measured run
type Result struct {
	Started  time.Time
	Finished time.Time
	Elapsed  time.Duration
}

// Callbacks are invoked outside the timer lock
type Callbacks struct {
	OnStart   func(started time.Time, pending int)
	OnFinish  func(Result)
	OnTimeout func(started time.Time)
}

// Config configures a RaceTimer
type Config struct {
	Start  Matcher
	Finish Matcher
	// Timeout expires a start without finish. Zero keeps starts forever.
	Timeout time.Duration
	// MaxPending bounds the start queue. The oldest start is discarded when
	// it is full. Zero means unbounded.
	MaxPending int
	Callbacks  Callbacks
}

// DefaultConfig starts on blue and finishes on green from a finish stone
func DefaultConfig() *Config {
	return &Config{
		Start:      StartOn(gravitrax.ColorBlue),
		Finish:     FinishOn(gravitrax.ColorGreen),
		Timeout:    60 * time.Second,
		MaxPending: 8,
	}
}

// Metrics counts timer activity
type Metrics struct {
	Starts    int64
	Finishes  int64
	Timeouts  int64
	Unmatched int64
	Overflows int64
	Last      time.Duration
	Best      time.Duration
}

// RaceTimer pairs start and finish signals
type RaceTimer struct {
	config *Config
	now    func() time.Time
	queue  runQueue
	mu     sync.Mutex
	nextID uint64

	starts    int64
	finishes  int64
	timeouts  int64
	unmatched int64
	overflows int64
	last      int64
	best      int64
}

// New creates a RaceTimer. A nil config uses DefaultConfig.
func New(config *Config) *RaceTimer {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.Start == nil {
		config.Start = defaults.Start
	}
	if config.Finish == nil {
		config.Finish = defaults.Finish
	}
	return &RaceTimer{config: config, now: time.Now}
}

// Observe is a gravitrax.Observer. Events without a signal and frames that
// failed the checksum are ignored.
func (t *RaceTimer) Observe(_ *gravitrax.Bridge, ev gravitrax.Event) {
	if !ev.IsSignal() || !ev.ChecksumValid {
		return
	}
	t.HandleSignal(*ev.Signal)
}

// HandleSignal feeds one received signal into the timer. A signal matching
// both rules finishes a pending run before it starts a new one.
func (t *RaceTimer) HandleSignal(sig gravitrax.Signal) {
	if t.config.Finish(sig) {
		t.finish()
		return
	}
	if t.config.Start(sig) {
		t.start()
	}
}

func (t *RaceTimer) start() {
	now := t.now()

	t.mu.Lock()
	t.nextID++
	r := &run{started: now, id: t.nextID}
	var dropped *run
	if t.config.MaxPending > 0 && len(t.queue.runs) >= t.config.MaxPending {
		dropped, _ = t.queue.pop()
		atomic.AddInt64(&t.overflows, 1)
	}
	if t.config.Timeout > 0 {
		id := r.id
		r.expiry = time.AfterFunc(t.config.Timeout, func() { t.expire(id) })
	}
	t.queue.push(r)
	pending := len(t.queue.runs)
	t.mu.Unlock()

	atomic.AddInt64(&t.starts, 1)
	if dropped != nil && t.config.Callbacks.OnTimeout != nil {
		t.config.Callbacks.OnTimeout(dropped.started)
	}
	if t.config.Callbacks.OnStart != nil {
		t.config.Callbacks.OnStart(now, pending)
	}
}

func (t *RaceTimer) finish() {
	now := t.now()

	t.mu.Lock()
	r, ok := t.queue.pop()
	t.mu.Unlock()

	if !ok {
		atomic.AddInt64(&t.unmatched, 1)
		return
	}

	res := Result{Started: r.started, Finished: now, Elapsed: now.Sub(r.started)}
	atomic.AddInt64(&t.finishes, 1)
	atomic.StoreInt64(&t.last, int64(res.Elapsed))
	for {
		best := atomic.LoadInt64(&t.best)
		if best != 0 && best <= int64(res.Elapsed) {
			break
		}
		if atomic.CompareAndSwapInt64(&t.best, best, int64(res.Elapsed)) {
			break
		}
	}

	if t.config.Callbacks.OnFinish != nil {
		t.config.Callbacks.OnFinish(res)
	}
}

func (t *RaceTimer) expire(id uint64) {
	t.mu.Lock()
	r, ok := t.queue.remove(id)
	t.mu.Unlock()
	if !ok {
		return
	}

	atomic.AddInt64(&t.timeouts, 1)
	if t.config.Callbacks.OnTimeout != nil {
		t.config.Callbacks.OnTimeout(r.started)
	}
}

// State reports whether a run is pending
func (t *RaceTimer) State() RunState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queue.state()
}

// Pending returns the number of starts waiting for a finish
func (t *RaceTimer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue.runs)
}

// Reset discards pending starts and returns how many were dropped
func (t *RaceTimer) Reset() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queue.reset()
}

// Metrics returns the timer counters
func (t *RaceTimer) Metrics() Metrics {
	return Metrics{
		Starts:    atomic.LoadInt64(&t.starts),
		Finishes:  atomic.LoadInt64(&t.finishes),
		Timeouts:  atomic.LoadInt64(&t.timeouts),
		Unmatched: atomic.LoadInt64(&t.unmatched),
		Overflows: atomic.LoadInt64(&t.overflows),
		Last:      time.Duration(atomic.LoadInt64(&t.last)),
		Best:      time.Duration(atomic.LoadInt64(&t.best)),
	}
}
