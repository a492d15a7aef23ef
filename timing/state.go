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
	"time"
)

// RunState is the state of a race timer
type RunState int

const (
	// StateIdle means no start is waiting for a finish
	StateIdle RunState = iota
	// StateRunning means at least one start is pending
	StateRunning
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// run is one pending start
type run struct {
	started time.Time
	expiry  *time.Timer
	id      uint64
}

// safeTimerStop stops a timer and drains its channel if it already fired
func safeTimerStop(timer *time.Timer) {
	if timer != nil {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
}

// runQueue is the FIFO of pending starts
type runQueue struct {
	runs []*run
}

func (q *runQueue) state() RunState {
	if len(q.runs) == 0 {
		return StateIdle
	}
	return StateRunning
}

func (q *runQueue) push(r *run) {
	q.runs = append(q.runs, r)
}

// pop removes the oldest start and suspends its expiry
func (q *runQueue) pop() (*run, bool) {
	if len(q.runs) == 0 {
		return nil, false
	}
	r := q.runs[0]
	q.runs[0] = nil
	q.runs = q.runs[1:]
	safeTimerStop(r.expiry)
	r.expiry = nil
	return r, true
}

// remove drops the start with id. It reports false if a finish already
// consumed it.
func (q *runQueue) remove(id uint64) (*run, bool) {
	for i, r := range q.runs {
		if r.id == id {
			q.runs = append(q.runs[:i], q.runs[i+1:]...)
			r.expiry = nil
			return r, true
		}
	}
	return nil, false
}

// reset drops every start and stops their timers
func (q *runQueue) reset() int {
	n := len(q.runs)
	for _, r := range q.runs {
		safeTimerStop(r.expiry)
	}
	q.runs = nil
	return n
}
