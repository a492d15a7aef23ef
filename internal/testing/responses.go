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

import "github.com/ZaparooProject/go-gravitrax/internal/frame"

// Characteristic UUIDs served by VirtualBridge
const (
	UUIDWrite   = "0000ff02-0000-1000-8000-00805f9b34fb"
	UUIDNotify  = "0000ff03-0000-1000-8000-00805f9b34fb"
	UUIDBattery = "00002a19-0000-1000-8000-00805f9b34fb"
)

// Raw battery characteristic values
const (
	BatteryRawEmpty  byte = 64
	BatteryRawLow    byte = 96
	BatteryRawMedium byte = 128
	BatteryRawHigh   byte = 160
	BatteryRawFull   byte = 100
)

// BuildSignalNotification creates a frame as the bridge notifies it, with
// the receive-direction checksum
func BuildSignalNotification(stone, status, color, messageID byte) []byte {
	data := []byte{frame.Header, stone, status, 0, messageID, 0, color}
	data[frame.OffsetChecksum] = frame.ReceiveChecksum(data)
	return data
}

// BuildCorruptNotification creates a signal frame whose checksum is off by one
func BuildCorruptNotification(stone, status, color, messageID byte) []byte {
	data := BuildSignalNotification(stone, status, color, messageID)
	data[frame.OffsetChecksum]++
	return data
}

// BuildSentSignal creates a frame as the host writes it, with the
// send-direction checksum
func BuildSentSignal(stone, status, color, reserved, messageID byte) []byte {
	data := []byte{frame.Header, stone, status, reserved, messageID, 0, color}
	data[frame.OffsetChecksum] = frame.SendChecksum(data)
	return data
}

// BuildNotificationPayload concatenates frames into one notification,
// optionally framed by leading and trailing noise
func BuildNotificationPayload(prefix []byte, frames ...[]byte) []byte {
	payload := append([]byte(nil), prefix...)
	for _, f := range frames {
		payload = append(payload, f...)
	}
	return payload
}

// BuildInfoResponse creates the read response of the write characteristic
func BuildInfoResponse(firmware, hardware byte) []byte {
	return []byte{0x00, firmware, hardware, 0x00}
}

// BuildBatteryResponse creates a battery characteristic read response
func BuildBatteryResponse(raw byte) []byte {
	return []byte{raw}
}
