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

package testing

import (
	"fmt"
	"sync"

	"github.com/ZaparooProject/go-gravitrax/internal/frame"
)

// Bridge mode statuses
const (
	statusUnlock byte = 200
	statusLock   byte = 201
)

// VirtualBridge is a simulated bridge answering characteristic reads and
// recording writes
type VirtualBridge struct {
	received   [][]byte
	mu         sync.Mutex
	Firmware   byte
	Hardware   byte
	BatteryRaw byte
	locked     bool
}

// NewVirtualBridge creates a bridge with firmware 3, hardware 1 and a full
// battery
func NewVirtualBridge() *VirtualBridge {
	return &VirtualBridge{
		Firmware:   3,
		Hardware:   1,
		BatteryRaw: BatteryRawFull,
	}
}

// Read answers a characteristic read
func (v *VirtualBridge) Read(uuid string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch uuid {
	case UUIDWrite:
		return BuildInfoResponse(v.Firmware, v.Hardware), nil
	case UUIDBattery:
		return BuildBatteryResponse(v.BatteryRaw), nil
	default:
		return nil, fmt.Errorf("characteristic %s not readable", uuid)
	}
}

// Write records data written to uuid. Signal frames switch bridge mode.
func (v *VirtualBridge) Write(uuid string, data []byte) error {
	if uuid != UUIDWrite {
		return fmt.Errorf("characteristic %s not writable", uuid)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.received = append(v.received, append([]byte(nil), data...))
	if len(data) == frame.Size && data[frame.OffsetHeader] == frame.Header {
		switch data[frame.OffsetStatus] {
		case statusLock:
			v.locked = true
		case statusUnlock:
			v.locked = false
		}
	}
	return nil
}

// Received returns every write in order
func (v *VirtualBridge) Received() [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([][]byte, len(v.received))
	copy(out, v.received)
	return out
}

// Locked reports whether bridge mode is active
func (v *VirtualBridge) Locked() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.locked
}

// SetBattery changes the raw battery value
func (v *VirtualBridge) SetBattery(raw byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.BatteryRaw = raw
}
