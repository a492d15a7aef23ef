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

package gravitrax

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	testutil "github.com/ZaparooProject/go-gravitrax/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const deadlockTestTimeout = 2 * time.Second

func TestMain(m *testing.M) {
	defer goleak.VerifyTestMain(m)
	m.Run()
}

func connectBlockingBridge(t *testing.T) (*Bridge, *BlockingMockLink) {
	t.Helper()
	transport := NewBlockingMockTransport()
	bridge := newTestBridge(t, transport)
	require.NoError(t, bridge.Connect(context.Background(), testAddress, ByAddress()))
	link := transport.LastBlockingLink()
	require.NotNil(t, link)
	return bridge, link
}

func waitDone(t *testing.T, wg *sync.WaitGroup, msg string) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(deadlockTestTimeout):
		t.Fatal(msg)
	}
}

// TestWriteMutexReleasedOnCancellation verifies that a write abandoned by
// its context does not keep other sends waiting
func TestWriteMutexReleasedOnCancellation(t *testing.T) {
	t.Parallel()
	bridge, _ := connectBlockingBridge(t)

	const numGoroutines = 5
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()

			err := bridge.SendSignal(ctx, StatusAll, ColorRed, WithResends(3))
			if err == nil {
				t.Error("expected cancellation error, got nil")
			}
		}()
	}

	waitDone(t, &wg, "deadlock detected: blocked sends did not return")
}

// TestContextCancellationDuringBlockedWrite verifies a blocked write returns
// promptly on cancel
func TestContextCancellationDuringBlockedWrite(t *testing.T) {
	t.Parallel()
	bridge, _ := connectBlockingBridge(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- bridge.SendSignal(ctx, StatusAll, ColorBlue, WithResends(1))
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(deadlockTestTimeout):
		t.Fatal("send did not respond to context cancellation")
	}
}

// TestConcurrentSendsInterleaveWrites verifies that concurrent sends all
// complete and every write reaches the link
func TestConcurrentSendsInterleaveWrites(t *testing.T) {
	t.Parallel()
	bridge, _, link := connectTestBridge(t)

	const numGoroutines = 8
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			color := Color(i%3 + 1)
			if err := bridge.SendSignal(context.Background(), StatusAll, color, WithResends(4)); err != nil {
				t.Errorf("send %d: %v", i, err)
			}
		}(i)
	}

	waitDone(t, &wg, "deadlock detected during concurrent sends")
	assert.Equal(t, numGoroutines*4, link.WriteCount())
}

// TestObserverReentrancy verifies an observer may call back into the bridge
func TestObserverReentrancy(t *testing.T) {
	t.Parallel()
	bridge, _, link := connectTestBridge(t)

	done := make(chan error, 1)
	require.NoError(t, bridge.EnableNotifications(context.Background(), func(b *Bridge, ev Event) {
		if err := b.SendSignal(context.Background(), StatusAll, ColorRed, WithResends(1)); err != nil {
			done <- err
			return
		}
		done <- b.DisableNotifications(context.Background())
	}))

	link.Notify(UUIDNotify, testutil.BuildSignalNotification(byte(StoneTrigger), 0, byte(ColorRed), 1))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(deadlockTestTimeout):
		t.Fatal("observer calling into the bridge deadlocked")
	}
	assert.False(t, bridge.Notifying())
	assert.Equal(t, 1, link.WriteCount())
}

// TestDisconnectDuringBlockedWrite verifies a disconnect releases writers
// stuck on the link
func TestDisconnectDuringBlockedWrite(t *testing.T) {
	t.Parallel()
	bridge, _ := connectBlockingBridge(t)

	done := make(chan error, 1)
	go func() {
		done <- bridge.SendSignal(context.Background(), StatusAll, ColorRed, WithResends(2))
	}()
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, bridge.Disconnect(context.Background(), WithDisconnectTimeout(time.Second)))

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(deadlockTestTimeout):
		t.Fatal("blocked write survived disconnect")
	}
}

// TestUnblockedWritesComplete verifies blocked writes finish once released
func TestUnblockedWritesComplete(t *testing.T) {
	t.Parallel()
	bridge, link := connectBlockingBridge(t)

	done := make(chan error, 1)
	go func() {
		done <- bridge.SendSignal(context.Background(), StatusAll, ColorGreen, WithResends(1))
	}()

	require.Eventually(t, func() bool {
		link.Unblock()
		select {
		case err := <-done:
			assert.NoError(t, err)
			return true
		default:
			return false
		}
	}, deadlockTestTimeout, 5*time.Millisecond)
	assert.Equal(t, 1, link.WriteCount())
}

// TestNotificationsDuringDisconnect verifies payloads racing a teardown
// neither block nor leak goroutines
func TestNotificationsDuringDisconnect(t *testing.T) {
	t.Parallel()
	bridge, _, link := connectTestBridge(t)
	collectEvents(t, bridge)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for id := 0; id < 200; id++ {
			link.Notify(UUIDNotify, testutil.BuildSignalNotification(byte(StoneTrigger), 0, byte(ColorRed), byte(id)))
		}
	}()

	require.NoError(t, bridge.Disconnect(context.Background()))
	waitDone(t, &wg, "notification producer blocked")
}

// TestCloseWhileReconnecting verifies Close stops a pending reconnect
func TestCloseWhileReconnecting(t *testing.T) {
	t.Parallel()
	bridge, transport, link := connectTestBridge(t, WithReconnect(true))
	transport.SetConnectDelay(time.Second)

	link.Drop()
	require.Eventually(t, func() bool { return bridge.State() == StateConnecting }, time.Second, time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- bridge.Close() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(deadlockTestTimeout):
		t.Fatal("close blocked on reconnect")
	}
	assert.False(t, bridge.IsConnected())
}

// TestCloseDuringConnect verifies a connect finishing after Close drops its link
func TestCloseDuringConnect(t *testing.T) {
	t.Parallel()
	transport := NewMockTransport(ScanResult{Address: testAddress, Name: BridgeName})
	transport.SetConnectDelay(200 * time.Millisecond)
	bridge := newTestBridge(t, transport)

	connected := make(chan error, 1)
	go func() {
		connected <- bridge.Connect(context.Background(), testAddress, ByAddress(), WithConnectTimeout(time.Second))
	}()
	require.Eventually(t, func() bool { return bridge.State() == StateConnecting }, time.Second, time.Millisecond)

	require.NoError(t, bridge.Close())

	select {
	case err := <-connected:
		require.ErrorIs(t, err, ErrBridgeClosed)
	case <-time.After(deadlockTestTimeout):
		t.Fatal("connect blocked after close")
	}
	assert.False(t, bridge.IsConnected())
	assert.Equal(t, StateDisconnected, bridge.State())

	link := transport.LastLink()
	require.NotNil(t, link)
	assert.False(t, link.IsConnected())
	assert.Equal(t, 1, link.DisconnectCalls())
}

// TestDisconnectContextDoneWhileLinkLossHandled verifies a cancelled
// disconnect waits for the in-progress teardown instead of spinning
func TestDisconnectContextDoneWhileLinkLossHandled(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	callback := func(*Bridge, DisconnectEvent) { <-release }
	bridge, _, _ := connectTestBridge(t, WithDisconnectCallback(callback))

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- bridge.Disconnect(ctx) }()

	require.Eventually(t, func() bool { return bridge.State() == StateDisconnected }, time.Second, time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(deadlockTestTimeout):
		t.Fatal("disconnect did not return after teardown")
	}
}
