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

package timing

import (
	"sync"
	"testing"
	"time"

	gravitrax "github.com/ZaparooProject/go-gravitrax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	now time.Time
	mu  sync.Mutex
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	startSignal  = gravitrax.Signal{Stone: gravitrax.StoneStarter, Status: gravitrax.StatusStarter, Color: gravitrax.ColorBlue}
	finishSignal = gravitrax.Signal{Stone: gravitrax.StoneFinish, Status: gravitrax.StatusAll, Color: gravitrax.ColorGreen}
)

func newTestTimer(t *testing.T, config *Config) (*RaceTimer, *fakeClock) {
	t.Helper()
	timer := New(config)
	clock := newFakeClock()
	timer.now = clock.Now
	t.Cleanup(func() { timer.Reset() })
	return timer, clock
}

func TestMatchers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		matcher Matcher
		sig     gravitrax.Signal
		want    bool
	}{
		{"start on color", StartOn(gravitrax.ColorBlue), gravitrax.Signal{Color: gravitrax.ColorBlue}, true},
		{"start on starter press", StartOn(gravitrax.ColorBlue), gravitrax.Signal{Status: gravitrax.StatusStarterPress, Color: gravitrax.ColorRed}, true},
		{"start other color", StartOn(gravitrax.ColorBlue), gravitrax.Signal{Color: gravitrax.ColorRed}, false},
		{"finish stone and color", FinishOn(gravitrax.ColorGreen), finishSignal, true},
		{"finish wrong stone", FinishOn(gravitrax.ColorGreen), gravitrax.Signal{Stone: gravitrax.StoneTrigger, Color: gravitrax.ColorGreen}, false},
		{"finish wrong color", FinishOn(gravitrax.ColorGreen), gravitrax.Signal{Stone: gravitrax.StoneFinish, Color: gravitrax.ColorRed}, false},
		{"exact match", SignalIs(gravitrax.StatusStarter, gravitrax.StoneStarter, gravitrax.ColorBlue), startSignal, true},
		{"exact mismatch", SignalIs(gravitrax.StatusAll, gravitrax.StoneStarter, gravitrax.ColorBlue), startSignal, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.matcher(tt.sig))
		})
	}
}

func TestRaceTimerMeasures(t *testing.T) {
	t.Parallel()

	var results []Result
	config := DefaultConfig()
	config.Callbacks.OnFinish = func(r Result) { results = append(results, r) }
	timer, clock := newTestTimer(t, config)

	assert.Equal(t, StateIdle, timer.State())
	timer.HandleSignal(startSignal)
	assert.Equal(t, StateRunning, timer.State())

	clock.Advance(3 * time.Second)
	timer.HandleSignal(finishSignal)
	assert.Equal(t, StateIdle, timer.State())

	require.Len(t, results, 1)
	assert.Equal(t, 3*time.Second, results[0].Elapsed)
	assert.Equal(t, results[0].Started.Add(3*time.Second), results[0].Finished)

	m := timer.Metrics()
	assert.Equal(t, int64(1), m.Starts)
	assert.Equal(t, int64(1), m.Finishes)
	assert.Equal(t, 3*time.Second, m.Last)
	assert.Equal(t, 3*time.Second, m.Best)
}

func TestRaceTimerFIFO(t *testing.T) {
	t.Parallel()

	var elapsed []time.Duration
	config := DefaultConfig()
	config.Callbacks.OnFinish = func(r Result) { elapsed = append(elapsed, r.Elapsed) }
	timer, clock := newTestTimer(t, config)

	timer.HandleSignal(startSignal)
	clock.Advance(time.Second)
	timer.HandleSignal(startSignal)
	assert.Equal(t, 2, timer.Pending())

	clock.Advance(4 * time.Second)
	timer.HandleSignal(finishSignal)
	clock.Advance(time.Second)
	timer.HandleSignal(finishSignal)

	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, elapsed)
	assert.Equal(t, 0, timer.Pending())
}

func TestRaceTimerBestAndLast(t *testing.T) {
	t.Parallel()

	timer, clock := newTestTimer(t, DefaultConfig())
	for _, d := range []time.Duration{4 * time.Second, 2 * time.Second, 6 * time.Second} {
		timer.HandleSignal(startSignal)
		clock.Advance(d)
		timer.HandleSignal(finishSignal)
	}

	m := timer.Metrics()
	assert.Equal(t, 2*time.Second, m.Best)
	assert.Equal(t, 6*time.Second, m.Last)
	assert.Equal(t, int64(3), m.Finishes)
}

func TestRaceTimerFinishWithoutStart(t *testing.T) {
	t.Parallel()

	timer, _ := newTestTimer(t, DefaultConfig())
	timer.HandleSignal(finishSignal)
	timer.HandleSignal(gravitrax.Signal{Stone: gravitrax.StoneTrigger, Color: gravitrax.ColorRed})

	m := timer.Metrics()
	assert.Equal(t, int64(1), m.Unmatched)
	assert.Zero(t, m.Starts)
	assert.Equal(t, StateIdle, timer.State())
}

func TestRaceTimerTimeout(t *testing.T) {
	t.Parallel()

	expired := make(chan time.Time, 1)
	config := DefaultConfig()
	config.Timeout = 20 * time.Millisecond
	config.Callbacks.OnTimeout = func(started time.Time) { expired <- started }
	timer, _ := newTestTimer(t, config)

	timer.HandleSignal(startSignal)

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("start did not expire")
	}
	assert.Equal(t, StateIdle, timer.State())
	assert.Equal(t, int64(1), timer.Metrics().Timeouts)

	timer.HandleSignal(finishSignal)
	assert.Equal(t, int64(1), timer.Metrics().Unmatched)
}

func TestRaceTimerFinishStopsExpiry(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	config.Timeout = 30 * time.Millisecond
	timer, _ := newTestTimer(t, config)

	timer.HandleSignal(startSignal)
	timer.HandleSignal(finishSignal)
	time.Sleep(60 * time.Millisecond)

	assert.Zero(t, timer.Metrics().Timeouts)
	assert.Equal(t, int64(1), timer.Metrics().Finishes)
}

func TestRaceTimerMaxPending(t *testing.T) {
	t.Parallel()

	var dropped []time.Time
	config := DefaultConfig()
	config.MaxPending = 2
	config.Callbacks.OnTimeout = func(started time.Time) { dropped = append(dropped, started) }
	timer, clock := newTestTimer(t, config)

	first := clock.Now()
	timer.HandleSignal(startSignal)
	clock.Advance(time.Second)
	timer.HandleSignal(startSignal)
	clock.Advance(time.Second)
	timer.HandleSignal(startSignal)

	assert.Equal(t, 2, timer.Pending())
	assert.Equal(t, []time.Time{first}, dropped)
	assert.Equal(t, int64(1), timer.Metrics().Overflows)
}

func TestRaceTimerObserve(t *testing.T) {
	t.Parallel()

	timer, _ := newTestTimer(t, DefaultConfig())

	sig := startSignal
	timer.Observe(nil, gravitrax.Event{Raw: []byte{0x01}})
	timer.Observe(nil, gravitrax.Event{Signal: &sig, ChecksumValid: false})
	assert.Equal(t, 0, timer.Pending())

	timer.Observe(nil, gravitrax.Event{Signal: &sig, ChecksumValid: true})
	assert.Equal(t, 1, timer.Pending())
}

func TestRaceTimerReset(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	config.Timeout = 20 * time.Millisecond
	timer, _ := newTestTimer(t, config)

	timer.HandleSignal(startSignal)
	timer.HandleSignal(startSignal)
	assert.Equal(t, 2, timer.Reset())
	assert.Equal(t, StateIdle, timer.State())

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, timer.Metrics().Timeouts)
}

func TestNewFillsMissingMatchers(t *testing.T) {
	t.Parallel()

	timer := New(&Config{})
	require.NotNil(t, timer.config.Start)
	require.NotNil(t, timer.config.Finish)
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "idle", StateIdle.String())
}
