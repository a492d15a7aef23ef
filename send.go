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
	"fmt"
	"math/rand"
	"time"
)

func (b *Bridge) sendConfig(opts []SendOption) *SendConfig {
	cfg := DefaultSendConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Resends < 1 {
		cfg.Resends = 1
	}
	if cfg.UUID == "" {
		cfg.UUID = b.config.WriteUUID
	}
	return cfg
}

// nextMessageID advances the sequence counter. The counter moves even when
// a random id is used.
func (b *Bridge) nextMessageID(random bool) byte {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.mu.Unlock()

	if random {
		return byte(rand.Intn(255))
	}
	return id
}

// SendSignal builds a signal and writes it cfg.Resends times.
//
// The frame carries a random reserved byte and the next message id. The
// returned error is nil only if every write succeeded. A failed, cancelled
// or interrupted send sets the configured ErrorEvent when any write failed.
func (b *Bridge) SendSignal(ctx context.Context, status Status, color Color, opts ...SendOption) error {
	cfg := b.sendConfig(opts)
	return b.sendSignal(ctx, status, color, cfg, cfg.ErrorEvent)
}

// sendSignal observes cfg.ErrorEvent for cancellation and sets onFail when
// a write fails.
func (b *Bridge) sendSignal(ctx context.Context, status Status, color Color, cfg *SendConfig, onFail *ErrorEvent) error {
	sig := Signal{
		Header:    cfg.Header,
		Stone:     cfg.Stone,
		Status:    status,
		Reserved:  byte(rand.Intn(255)),
		MessageID: b.nextMessageID(cfg.RandomID),
		Color:     color,
	}
	b.logger().Debugf("sending %s", sig)
	return b.sendBytes(ctx, Encode(sig), cfg, onFail)
}

// SendFrame writes an already built signal frame
func (b *Bridge) SendFrame(ctx context.Context, frame []byte, opts ...SendOption) error {
	if len(frame) != FrameSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidFrameLength, len(frame), FrameSize)
	}
	cfg := b.sendConfig(opts)
	return b.sendBytes(ctx, frame, cfg, cfg.ErrorEvent)
}

// SendBytes writes arbitrary data to the write characteristic
func (b *Bridge) SendBytes(ctx context.Context, data []byte, opts ...SendOption) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidParameter)
	}
	cfg := b.sendConfig(opts)
	return b.sendBytes(ctx, data, cfg, cfg.ErrorEvent)
}

func (b *Bridge) sendBytes(ctx context.Context, data []byte, cfg *SendConfig, onFail *ErrorEvent) error {
	var (
		lastErr  error
		failed   int
		attempts int
	)

	for i := 0; i < cfg.Resends; i++ {
		gap := cfg.ResendGap
		if i == 0 {
			gap = 0
		}
		if err := sleep(ctx, gap, cfg.ErrorEvent); err != nil {
			if failed > 0 {
				onFail.Set()
			}
			return fmt.Errorf("send stopped after %d of %d writes: %w", attempts, cfg.Resends, err)
		}

		attempts++
		if err := b.write(ctx, cfg.UUID, data); err != nil {
			failed++
			lastErr = err
		}
	}

	if failed > 0 {
		onFail.Set()
		b.logger().Errorf("error sending data: %v", lastErr)
		return &SendError{Err: lastErr, Attempts: attempts, Failed: failed}
	}
	return nil
}

func (b *Bridge) write(ctx context.Context, uuid string, data []byte) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	link, err := b.currentLink()
	if err != nil {
		return err
	}
	if err := link.Write(ctx, uuid, data); err != nil {
		return NewTransportError("write", link.Address(), fmt.Errorf("%w: %w", ErrTransportWrite, err), ErrorTypeTransient)
	}
	return nil
}

// SendPeriodic sends count signals with gap between them. A count of zero
// only waits gap.
//
// With StopOnFailure (the default) the first failed signal ends the run and
// later signals share its ErrorEvent. Without it every signal is attempted
// and the event is set at the end if any failed. A caller setting the event
// interrupts the run in both modes.
func (b *Bridge) SendPeriodic(
	ctx context.Context, status Status, color Color, count int, gap time.Duration, opts ...SendOption,
) error {
	if count < 0 {
		return fmt.Errorf("%w: negative count", ErrInvalidParameter)
	}
	cfg := b.sendConfig(opts)

	if count == 0 {
		return sleep(ctx, gap, cfg.ErrorEvent)
	}

	ev := cfg.ErrorEvent
	if cfg.StopOnFailure && ev == nil {
		ev = NewErrorEvent()
	}

	each := *cfg
	each.ErrorEvent = ev
	// Without StopOnFailure a failed signal must not cancel the next one.
	var onFail *ErrorEvent
	if cfg.StopOnFailure {
		onFail = ev
	}

	var (
		failures int
		lastErr  error
	)
	for i := 0; i < count; i++ {
		if i > 0 {
			if err := sleep(ctx, gap, ev); err != nil {
				return fmt.Errorf("periodic send stopped at %d of %d: %w", i, count, err)
			}
		}

		if err := b.sendSignal(ctx, status, color, &each, onFail); err != nil {
			if cfg.StopOnFailure || errors.Is(err, ErrCancelled) {
				return fmt.Errorf("periodic send stopped at %d of %d: %w", i+1, count, err)
			}
			failures++
			lastErr = err
		}
	}

	if failures > 0 {
		cfg.ErrorEvent.Set()
		return fmt.Errorf("%d of %d periodic sends failed: %w", failures, count, lastErr)
	}
	return nil
}

// StartBridgeMode makes the bridge relay signals between stones
func (b *Bridge) StartBridgeMode(ctx context.Context, opts ...SendOption) error {
	if err := b.SendSignal(ctx, StatusLock, ColorRed, opts...); err != nil {
		return err
	}
	b.logger().Infof("bridge mode started")
	return nil
}

// StopBridgeMode ends relaying
func (b *Bridge) StopBridgeMode(ctx context.Context, opts ...SendOption) error {
	if err := b.SendSignal(ctx, StatusUnlock, ColorRed, opts...); err != nil {
		return err
	}
	b.logger().Infof("bridge mode stopped")
	return nil
}
