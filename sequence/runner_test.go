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
	"sync"
	"testing"
	"time"

	gravitrax "github.com/ZaparooProject/go-gravitrax"
	testutil "github.com/ZaparooProject/go-gravitrax/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errSendFailed = errors.New("send failed")

type sendCall struct {
	status    gravitrax.Status
	color     gravitrax.Color
	stone     gravitrax.Stone
	count     int
	gap       time.Duration
	resends   int
	resendGap time.Duration
}

type fakeSender struct {
	fail  func(call int) error
	calls chan sendCall
	log   []sendCall
	mu    sync.Mutex
}

func newFakeSender() *fakeSender {
	return &fakeSender{calls: make(chan sendCall, 32)}
}

func (f *fakeSender) SendPeriodic(
	_ context.Context, status gravitrax.Status, color gravitrax.Color,
	count int, gap time.Duration, opts ...gravitrax.SendOption,
) error {
	cfg := gravitrax.DefaultSendConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	call := sendCall{
		status:    status,
		color:     color,
		stone:     cfg.Stone,
		count:     count,
		gap:       gap,
		resends:   cfg.Resends,
		resendGap: cfg.ResendGap,
	}

	f.mu.Lock()
	f.log = append(f.log, call)
	n := len(f.log)
	fail := f.fail
	f.mu.Unlock()

	f.calls <- call
	if fail != nil {
		return fail(n)
	}
	return nil
}

func (f *fakeSender) Calls() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sendCall, len(f.log))
	copy(out, f.log)
	return out
}

func nextCall(t *testing.T, f *fakeSender) sendCall {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for send")
		return sendCall{}
	}
}

func signalEvent(status gravitrax.Status, stone gravitrax.Stone, color gravitrax.Color) gravitrax.Event {
	sig := gravitrax.Signal{Header: gravitrax.DefaultHeader, Status: status, Stone: stone, Color: color}
	return gravitrax.Event{Signal: &sig, Header: sig.Header, ChecksumValid: true}
}

func TestRunnerRun(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	r := NewRunner(sender)

	seq := Sequence{Name: "demo", Steps: []Step{
		{Status: gravitrax.StatusSwitch, Color: gravitrax.ColorRed, Count: 2, Pause: Seconds(50 * time.Millisecond)},
		{Count: 0, Pause: Seconds(10 * time.Millisecond)},
		{Color: gravitrax.ColorBlue, Count: 1, Stone: gravitrax.StoneStarter, Resends: 3},
	}}
	require.NoError(t, r.Run(context.Background(), seq))

	calls := sender.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, sendCall{
		status: gravitrax.StatusSwitch, color: gravitrax.ColorRed, stone: gravitrax.StoneBridge,
		count: 2, gap: 50 * time.Millisecond, resends: gravitrax.DefaultResends,
	}, calls[0])
	assert.Equal(t, 0, calls[1].count)
	assert.Equal(t, 10*time.Millisecond, calls[1].gap)
	assert.Equal(t, gravitrax.StoneStarter, calls[2].stone)
	assert.Equal(t, 3, calls[2].resends)
	assert.Equal(t, int64(3), r.Metrics().Steps)
}

func TestRunnerRunStopsOnFailure(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	sender.fail = func(call int) error {
		if call == 2 {
			return errSendFailed
		}
		return nil
	}
	r := NewRunner(sender)

	seq := Sequence{Name: "broken", Steps: []Step{
		{Color: gravitrax.ColorRed, Count: 1},
		{Color: gravitrax.ColorGreen, Count: 1},
		{Color: gravitrax.ColorBlue, Count: 1},
	}}
	err := r.Run(context.Background(), seq)
	require.ErrorIs(t, err, errSendFailed)
	assert.Contains(t, err.Error(), "step 2")
	assert.Len(t, sender.Calls(), 2)
}

func TestRunnerRunRejectsInvalidSequence(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	r := NewRunner(sender)
	err := r.Run(context.Background(), Sequence{Name: "bad", Steps: []Step{{Color: gravitrax.ColorRed, Count: -1}}})
	require.ErrorIs(t, err, gravitrax.ErrInvalidParameter)
	assert.Empty(t, sender.Calls())
}

func TestRunnerExtraOptionsOverrideStep(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	r := NewRunner(sender)
	steps := []Step{{Color: gravitrax.ColorRed, Count: 1, Resends: 5}}
	require.NoError(t, r.RunSteps(context.Background(), steps, gravitrax.WithResends(1)))
	assert.Equal(t, 1, sender.Calls()[0].resends)
}

func TestRunnerTriggers(t *testing.T) {
	t.Parallel()

	r := NewRunner(newFakeSender())
	when := Match{Stone: gravitrax.StoneFinish, Color: gravitrax.ColorGreen}

	require.NoError(t, r.AddTrigger(Trigger{When: when, Actions: []Step{{Color: gravitrax.ColorRed, Count: 1}}}))
	require.NoError(t, r.AddTrigger(Trigger{When: when, Actions: []Step{{Color: gravitrax.ColorBlue, Count: 2}}}))
	require.NoError(t, r.AddTrigger(Trigger{When: Match{Stone: gravitrax.StoneTrigger, Color: gravitrax.ColorRed}}))

	triggers := r.Triggers()
	require.Len(t, triggers, 2)
	assert.Equal(t, gravitrax.ColorBlue, triggers[0].Actions[0].Color, "same condition replaces the trigger")

	assert.True(t, r.RemoveTrigger(when))
	assert.False(t, r.RemoveTrigger(when))
	assert.Len(t, r.Triggers(), 1)

	err := r.AddTrigger(Trigger{When: when, Actions: []Step{{Color: gravitrax.ColorRed, Count: -1}}})
	require.ErrorIs(t, err, gravitrax.ErrInvalidParameter)
}

func TestRunnerServeRunsMatchingTriggers(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	r := NewRunner(sender)
	require.NoError(t, r.AddTrigger(Trigger{
		When:    Match{Stone: gravitrax.StoneFinish, Color: gravitrax.ColorGreen},
		Actions: []Step{{Color: gravitrax.ColorRed, Count: 1}, {Color: gravitrax.ColorBlue, Count: 1}},
	}))

	done := make(chan error, 1)
	go func() { done <- r.Serve(context.Background()) }()

	r.Observe(nil, gravitrax.Event{Raw: []byte{1, 2, 3}})
	r.Observe(nil, signalEvent(gravitrax.StatusAll, gravitrax.StoneFinish, gravitrax.ColorRed))
	r.Observe(nil, signalEvent(gravitrax.StatusAll, gravitrax.StoneFinish, gravitrax.ColorGreen))

	assert.Equal(t, gravitrax.ColorRed, nextCall(t, sender).color)
	assert.Equal(t, gravitrax.ColorBlue, nextCall(t, sender).color)

	r.Close()
	require.ErrorIs(t, <-done, ErrRunnerClosed)

	m := r.Metrics()
	assert.Equal(t, int64(1), m.Fired)
	assert.Zero(t, m.Dropped)
	assert.Len(t, sender.Calls(), 2)
}

func TestRunnerObserveDropsWhenBusy(t *testing.T) {
	t.Parallel()

	r := NewRunner(newFakeSender(), WithPendingSize(1))
	require.NoError(t, r.AddTrigger(Trigger{
		When:    Match{Stone: gravitrax.StoneTrigger, Color: gravitrax.ColorRed},
		Actions: []Step{{Color: gravitrax.ColorGreen, Count: 1}},
	}))

	ev := signalEvent(gravitrax.StatusAll, gravitrax.StoneTrigger, gravitrax.ColorRed)
	r.Observe(nil, ev)
	r.Observe(nil, ev)
	r.Observe(nil, ev)

	m := r.Metrics()
	assert.Equal(t, int64(3), m.Fired)
	assert.Equal(t, int64(2), m.Dropped)
}

func TestRunnerObserveIgnoresBadChecksum(t *testing.T) {
	t.Parallel()

	r := NewRunner(newFakeSender())
	require.NoError(t, r.AddTrigger(Trigger{
		When:    Match{Stone: gravitrax.StoneTrigger, Color: gravitrax.ColorRed},
		Actions: []Step{{Color: gravitrax.ColorGreen, Count: 1}},
	}))

	ev := signalEvent(gravitrax.StatusAll, gravitrax.StoneTrigger, gravitrax.ColorRed)
	ev.ChecksumValid = false
	r.Observe(nil, ev)

	assert.Zero(t, r.Metrics().Fired)
}

func TestRunnerServeCountsFailures(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	sender.fail = func(int) error { return errSendFailed }
	r := NewRunner(sender)
	require.NoError(t, r.AddTrigger(Trigger{
		When:    Match{Stone: gravitrax.StoneTrigger, Color: gravitrax.ColorRed},
		Actions: []Step{{Color: gravitrax.ColorGreen, Count: 1}},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx) }()

	r.Observe(nil, signalEvent(gravitrax.StatusAll, gravitrax.StoneTrigger, gravitrax.ColorRed))
	nextCall(t, sender)

	assert.Eventually(t, func() bool { return r.Metrics().Failed == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestRunnerWithBridge(t *testing.T) {
	t.Parallel()

	const address = "AA:BB:CC:DD:EE:01"
	transport := gravitrax.NewMockTransport(gravitrax.ScanResult{Address: address, Name: gravitrax.BridgeName})
	bridge, err := gravitrax.New(transport)
	require.NoError(t, err)
	defer func() { _ = bridge.Close() }()

	ctx := context.Background()
	require.NoError(t, bridge.Connect(ctx, address, gravitrax.ByAddress(), gravitrax.WithConnectTimeout(time.Second)))
	link := transport.LastLink()
	require.NotNil(t, link)

	r := NewRunner(bridge)
	require.NoError(t, r.AddTrigger(Trigger{
		When:    Match{Status: gravitrax.StatusAll, Stone: gravitrax.StoneFinish, Color: gravitrax.ColorBlue},
		Actions: []Step{{Color: gravitrax.ColorRed, Count: 1, Resends: 2}},
	}))
	require.NoError(t, bridge.EnableNotifications(ctx, r.Observe))

	serveCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- r.Serve(serveCtx) }()

	before := link.WriteCount()
	require.True(t, link.Notify(gravitrax.UUIDNotify, testutil.BuildSignalNotification(
		byte(gravitrax.StoneFinish), byte(gravitrax.StatusAll), byte(gravitrax.ColorBlue), 9)))

	assert.Eventually(t, func() bool { return link.WriteCount() == before+2 }, 2*time.Second, 5*time.Millisecond)

	writes := link.Writes()
	sig, err := gravitrax.DecodeSent(writes[len(writes)-1].Data)
	require.NoError(t, err)
	assert.Equal(t, gravitrax.ColorRed, sig.Color)
	assert.Equal(t, gravitrax.StoneBridge, sig.Stone)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
