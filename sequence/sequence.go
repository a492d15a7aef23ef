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

// Package sequence describes reusable signal programs: ordered steps,
// if/then triggers that react to received signals, and named presets
// stored as JSON.
package sequence

import (
	"fmt"
	"strconv"
	"time"

	gravitrax "github.com/ZaparooProject/go-gravitrax"
)

// MaxResends is the highest resend count a step accepts
const MaxResends = 12

// Seconds is a duration that is stored as fractional seconds in JSON
type Seconds time.Duration

// Duration returns s as a time.Duration
func (s Seconds) Duration() time.Duration {
	return time.Duration(s)
}

// MarshalJSON implements json.Marshaler
func (s Seconds) MarshalJSON() ([]byte, error) {
	return strconv.AppendFloat(nil, time.Duration(s).Seconds(), 'f', -1, 64), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (s *Seconds) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("seconds %s: %w", data, gravitrax.ErrInvalidParameter)
	}
	if v < 0 {
		return fmt.Errorf("seconds %s: negative duration: %w", data, gravitrax.ErrInvalidParameter)
	}
	*s = Seconds(v * float64(time.Second))
	return nil
}

// Step sends Count signals with Pause between them. A Count of zero only
// waits Pause.
//
// A zero Stone sends as the bridge and a zero Resends uses
// gravitrax.DefaultResends.
type Step struct {
	Status    gravitrax.Status `json:"status"`
	Stone     gravitrax.Stone  `json:"stone,omitempty"`
	Color     gravitrax.Color  `json:"color"`
	Count     int              `json:"count"`
	Resends   int              `json:"resends,omitempty"`
	ResendGap Seconds          `json:"resend_gap,omitempty"`
	Pause     Seconds          `json:"pause,omitempty"`
}

// Validate checks the step parameters
func (s Step) Validate() error {
	if s.Count < 0 {
		return fmt.Errorf("%w: negative count %d", gravitrax.ErrInvalidParameter, s.Count)
	}
	if s.Resends < 0 || s.Resends > MaxResends {
		return fmt.Errorf("%w: resends %d outside 0-%d", gravitrax.ErrInvalidParameter, s.Resends, MaxResends)
	}
	if s.Count > 0 && (s.Color < gravitrax.ColorRed || s.Color > gravitrax.ColorBlue) {
		return fmt.Errorf("%w: color %d", gravitrax.ErrInvalidParameter, s.Color)
	}
	return nil
}

// IsPause reports whether the step only waits
func (s Step) IsPause() bool {
	return s.Count == 0
}

func (s Step) sendOptions() []gravitrax.SendOption {
	stone := s.Stone
	if stone == 0 {
		stone = gravitrax.StoneBridge
	}
	resends := s.Resends
	if resends == 0 {
		resends = gravitrax.DefaultResends
	}
	return []gravitrax.SendOption{
		gravitrax.WithStone(stone),
		gravitrax.WithResends(resends),
		gravitrax.WithResendGap(s.ResendGap.Duration()),
	}
}

func (s Step) String() string {
	if s.IsPause() {
		return fmt.Sprintf("pause %s", s.Pause.Duration())
	}
	stone := s.Stone
	if stone == 0 {
		stone = gravitrax.StoneBridge
	}
	return fmt.Sprintf("%d x %s as %s (status %s, pause %s)",
		s.Count, s.Color, stone, s.Status, s.Pause.Duration())
}

// Sequence is a named list of steps run in order
type Sequence struct {
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

// Validate checks every step
func (s Sequence) Validate() error {
	for i, step := range s.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("sequence %q step %d: %w", s.Name, i+1, err)
		}
	}
	return nil
}

// Match selects received signals by status, stone and colour
type Match struct {
	Status gravitrax.Status `json:"status"`
	Stone  gravitrax.Stone  `json:"stone"`
	Color  gravitrax.Color  `json:"color"`
}

// Matches reports whether sig carries the same status, stone and colour
func (m Match) Matches(sig gravitrax.Signal) bool {
	return sig.Status == m.Status && sig.Stone == m.Stone && sig.Color == m.Color
}

func (m Match) String() string {
	return fmt.Sprintf("%s from %s with status %s", m.Color, m.Stone, m.Status)
}

// Trigger runs Actions whenever a signal matching When is received
type Trigger struct {
	When    Match  `json:"when"`
	Actions []Step `json:"actions"`
}

// Validate checks every action
func (t Trigger) Validate() error {
	for i, step := range t.Actions {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("trigger %s action %d: %w", t.When, i+1, err)
		}
	}
	return nil
}
