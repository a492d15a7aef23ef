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
	"fmt"
	"sync"
	"sync/atomic"
)

// Event is one delivered notification.
//
// A payload containing signal frames produces one Event per new frame with
// Signal set. A payload without any frame produces a single Event with only
// Raw set.
type Event struct {
	Signal *Signal
	Raw    []byte
	Header byte
	// ChecksumValid is false when the frame failed the receive checksum.
	// Such frames are still delivered.
	ChecksumValid bool
}

// IsSignal reports whether the event carries a decoded signal
func (e Event) IsSignal() bool {
	return e.Signal != nil
}

// Observer receives notifications in arrival order on a single goroutine
type Observer func(b *Bridge, ev Event)

// NotificationMetrics counts notification handling since the Bridge was
// created
type NotificationMetrics struct {
	Payloads       int64
	Signals        int64
	RawEvents      int64
	Duplicates     int64
	ChecksumErrors int64
	Dropped        int64
	ObserverPanics int64
}

type notifyMetrics struct {
	payloads       int64
	signals        int64
	rawEvents      int64
	duplicates     int64
	checksumErrors int64
	dropped        int64
	observerPanics int64
}

// NotificationMetrics returns notification counters
func (b *Bridge) NotificationMetrics() NotificationMetrics {
	m := b.metrics
	return NotificationMetrics{
		Payloads:       atomic.LoadInt64(&m.payloads),
		Signals:        atomic.LoadInt64(&m.signals),
		RawEvents:      atomic.LoadInt64(&m.rawEvents),
		Duplicates:     atomic.LoadInt64(&m.duplicates),
		ChecksumErrors: atomic.LoadInt64(&m.checksumErrors),
		Dropped:        atomic.LoadInt64(&m.dropped),
		ObserverPanics: atomic.LoadInt64(&m.observerPanics),
	}
}

// EnableNotifications subscribes to the notify characteristic and delivers
// every notification to observer. Calling it again while enabled replaces
// the observer.
func (b *Bridge) EnableNotifications(ctx context.Context, observer Observer) error {
	if observer == nil {
		return fmt.Errorf("%w: nil observer", ErrInvalidParameter)
	}

	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.mu.Lock()
	if b.notifying && b.dispatcher != nil {
		b.observer = observer
		b.dispatcher.setObserver(observer)
		b.mu.Unlock()
		return nil
	}
	s := b.session
	log := b.log
	b.mu.Unlock()

	if s == nil {
		return ErrNotConnected
	}

	d := newDispatcher(b, observer, log)
	b.wg.Add(1)
	go d.run()

	if err := s.link.Subscribe(ctx, b.config.NotifyUUID, d.push); err != nil {
		d.stop()
		log.Errorf("enabling notifications failed: %v", err)
		return NewTransportError("subscribe", s.link.Address(), fmt.Errorf("%w: %w", ErrSubscribe, err), ErrorTypeTransient)
	}

	b.mu.Lock()
	if b.session != s {
		// link dropped while subscribing
		b.mu.Unlock()
		d.stop()
		return ErrNotConnected
	}
	b.dispatcher = d
	b.observer = observer
	b.notifying = true
	b.mu.Unlock()

	log.Infof("notifications enabled")
	return nil
}

// DisableNotifications unsubscribes and clears the observer. It is a no-op
// when notifications are not enabled.
func (b *Bridge) DisableNotifications(ctx context.Context) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.mu.Lock()
	s := b.session
	notifying := b.notifying
	log := b.log
	b.mu.Unlock()

	if notifying && s != nil {
		if err := s.link.Unsubscribe(ctx, b.config.NotifyUUID); err != nil {
			log.Errorf("disabling notifications failed: %v", err)
			return NewTransportError("unsubscribe", s.link.Address(), fmt.Errorf("%w: %w", ErrSubscribe, err), ErrorTypeTransient)
		}
	}

	b.mu.Lock()
	d := b.dispatcher
	b.dispatcher = nil
	b.observer = nil
	b.notifying = false
	b.mu.Unlock()
	d.stop()

	if notifying {
		log.Infof("notifications disabled")
	}
	return nil
}

// Notifying reports whether notifications are enabled
func (b *Bridge) Notifying() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.notifying
}

// dispatcher moves payloads from the transport callback onto one goroutine
// that decodes, deduplicates and calls the observer
type dispatcher struct {
	bridge   *Bridge
	log      Logger
	metrics  *notifyMetrics
	queue    chan []byte
	done     chan struct{}
	observer Observer
	dedup    *dedupWindow
	mu       sync.Mutex
	stopOnce sync.Once
}

func newDispatcher(b *Bridge, observer Observer, log Logger) *dispatcher {
	return &dispatcher{
		bridge:   b,
		log:      log,
		metrics:  b.metrics,
		queue:    make(chan []byte, b.config.QueueSize),
		done:     make(chan struct{}),
		observer: observer,
		dedup:    newDedupWindow(b.config.DedupWindow),
	}
}

// push is the transport callback. It never blocks.
func (d *dispatcher) push(data []byte) {
	if d.stopped() {
		return
	}
	atomic.AddInt64(&d.metrics.payloads, 1)

	payload := make([]byte, len(data))
	copy(payload, data)

	select {
	case d.queue <- payload:
	default:
		atomic.AddInt64(&d.metrics.dropped, 1)
		d.log.Warnf("notification queue full, dropping %d bytes", len(payload))
	}
}

func (d *dispatcher) run() {
	defer d.bridge.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case payload := <-d.queue:
			d.handle(payload)
		}
	}
}

// stop ends the dispatch loop without waiting for it. Safe on nil.
func (d *dispatcher) stop() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() { close(d.done) })
}

func (d *dispatcher) stopped() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

func (d *dispatcher) setObserver(observer Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observer = observer
}

func (d *dispatcher) handle(payload []byte) {
	frames := FindSignals(payload)
	if len(frames) == 0 {
		atomic.AddInt64(&d.metrics.rawEvents, 1)
		d.deliver(Event{Raw: payload})
		return
	}

	for _, f := range frames {
		if d.dedup.seen(f) {
			atomic.AddInt64(&d.metrics.duplicates, 1)
			continue
		}

		sig, err := Decode(f)
		valid := err == nil
		if !valid {
			atomic.AddInt64(&d.metrics.checksumErrors, 1)
			d.log.Debugf("incoming signal has an incorrect checksum: %v", err)
		}
		atomic.AddInt64(&d.metrics.signals, 1)
		d.deliver(Event{
			Header:        sig.Header,
			Signal:        &sig,
			Raw:           payload,
			ChecksumValid: valid,
		})
	}
}

func (d *dispatcher) deliver(ev Event) {
	if d.stopped() {
		return
	}

	d.mu.Lock()
	observer := d.observer
	d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&d.metrics.observerPanics, 1)
			d.log.Errorf("notification observer panicked: %v", r)
		}
	}()
	observer(d.bridge, ev)
}

// dedupWindow remembers the last size frames
type dedupWindow struct {
	recent [][FrameSize]byte
	size   int
}

func newDedupWindow(size int) *dedupWindow {
	return &dedupWindow{size: size}
}

func (w *dedupWindow) seen(f []byte) bool {
	if w.size <= 0 {
		return false
	}

	var key [FrameSize]byte
	copy(key[:], f)
	for _, k := range w.recent {
		if k == key {
			return true
		}
	}

	w.recent = append(w.recent, key)
	if len(w.recent) > w.size {
		w.recent = w.recent[1:]
	}
	return false
}
