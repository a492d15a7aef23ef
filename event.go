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
	"time"
)

// ErrorEvent is a one-shot flag shared between a caller and the send
// scheduler. Setting it interrupts pending waits and skips the remaining
// writes of every send using it. A failed send sets it.
//
// A nil *ErrorEvent is valid and never fires.
type ErrorEvent struct {
	ch   chan struct{}
	once sync.Once
}

// NewErrorEvent returns an unset event
func NewErrorEvent() *ErrorEvent {
	return &ErrorEvent{ch: make(chan struct{})}
}

// Set fires the event. Safe to call more than once.
func (e *ErrorEvent) Set() {
	if e == nil {
		return
	}
	e.once.Do(func() { close(e.ch) })
}

// IsSet reports whether the event fired
func (e *ErrorEvent) IsSet() bool {
	if e == nil {
		return false
	}
	select {
	case <-e.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the event fires
func (e *ErrorEvent) Done() <-chan struct{} {
	if e == nil {
		return nil
	}
	return e.ch
}

// interrupted returns an error if ctx is done or ev fired
func interrupted(ctx context.Context, ev *ErrorEvent) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	default:
	}
	if ev.IsSet() {
		return fmt.Errorf("%w: error event set", ErrCancelled)
	}
	return nil
}

// sleep waits d, returning early with ErrCancelled if ctx or ev fires
func sleep(ctx context.Context, d time.Duration, ev *ErrorEvent) error {
	if err := interrupted(ctx, ev); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	case <-ev.Done():
		return fmt.Errorf("%w: error event set", ErrCancelled)
	}
}
