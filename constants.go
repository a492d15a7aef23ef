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
	"fmt"
	"strconv"
	"strings"

	"github.com/ZaparooProject/go-gravitrax/internal/frame"
)

// BridgeName is the advertised name of a GraviTrax Connect bridge.
const BridgeName = "GravitraxConnect"

// GATT characteristic UUIDs of the bridge
const (
	UUIDWrite   = "0000ff02-0000-1000-8000-00805f9b34fb"
	UUIDNotify  = "0000ff03-0000-1000-8000-00805f9b34fb"
	UUIDBattery = "00002a19-0000-1000-8000-00805f9b34fb"
	UUIDName    = "00002a00-0000-1000-8000-00805f9b34fb"
)

// DefaultHeader marks a frame as a GraviTrax signal.
const DefaultHeader byte = frame.Header

// Stone identifies the type of a power stone.
type Stone byte

const (
	StoneTrigger    Stone = 1
	StoneFinish     Stone = 2
	StoneStarter    Stone = 4
	StoneController Stone = 5
	StoneBridge     Stone = 6
)

var stoneNames = map[Stone]string{
	StoneTrigger:    "trigger",
	StoneFinish:     "finish",
	StoneStarter:    "starter",
	StoneController: "controller",
	StoneBridge:     "bridge",
}

func (s Stone) String() string {
	if name, ok := stoneNames[s]; ok {
		return name
	}
	return strconv.Itoa(int(s))
}

// ParseStone accepts a stone name (case-insensitive) or a decimal 0-255.
func ParseStone(s string) (Stone, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for stone, name := range stoneNames {
		if name == s {
			return stone, nil
		}
	}
	v, err := parseByte(s)
	if err != nil {
		return 0, fmt.Errorf("stone %q: %w", s, err)
	}
	return Stone(v), nil
}

// Color is the signal colour channel.
type Color byte

const (
	ColorRed   Color = 1
	ColorGreen Color = 2
	ColorBlue  Color = 3
)

func (c Color) String() string {
	switch c {
	case ColorRed:
		return "red"
	case ColorGreen:
		return "green"
	case ColorBlue:
		return "blue"
	default:
		return "color" + strconv.Itoa(int(c))
	}
}

// ParseColor accepts red/green/blue, their first letter, or 1-3.
func ParseColor(s string) (Color, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "red", "r", "1":
		return ColorRed, nil
	case "green", "g", "2":
		return ColorGreen, nil
	case "blue", "b", "3":
		return ColorBlue, nil
	default:
		return 0, fmt.Errorf("color %q: %w", s, ErrInvalidParameter)
	}
}

// Status selects which stones react to a signal.
type Status byte

const (
	StatusAll          Status = 0
	StatusStarter      Status = 1
	StatusSwitch       Status = 2
	StatusBridge       Status = 3
	StatusSound        Status = 4
	StatusLever        Status = 6
	StatusUnlock       Status = 200
	StatusLock         Status = 201
	StatusStarterPress Status = 202
)

var statusNames = map[Status]string{
	StatusAll:          "ALL",
	StatusStarter:      "STARTER",
	StatusSwitch:       "SWITCH",
	StatusBridge:       "BRIDGE",
	StatusSound:        "SOUND",
	StatusLever:        "LEVER",
	StatusUnlock:       "UNLOCK",
	StatusLock:         "LOCK",
	StatusStarterPress: "STARTER_PRESS",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return strconv.Itoa(int(s))
}

// ParseStatus accepts a status name (case-insensitive) or a decimal 0-255.
func ParseStatus(s string) (Status, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for status, name := range statusNames {
		if name == s {
			return status, nil
		}
	}
	v, err := parseByte(s)
	if err != nil {
		return 0, fmt.Errorf("status %q: %w", s, err)
	}
	return Status(v), nil
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, ErrInvalidParameter
	}
	return byte(v), nil
}
