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

	"github.com/ZaparooProject/go-gravitrax/internal/frame"
)

// FrameSize is the length of an encoded signal.
const FrameSize = frame.Size

// Direction selects which checksum rule applies to a frame.
type Direction int

const (
	// DirectionSend is the rule for frames the host writes to the bridge.
	DirectionSend Direction = iota
	// DirectionReceive is the rule for frames the bridge notifies.
	DirectionReceive
)

func (d Direction) String() string {
	if d == DirectionReceive {
		return "receive"
	}
	return "send"
}

// Signal is one GraviTrax message.
//
// Wire layout (7 bytes):
//
//	0 header | 1 stone | 2 status | 3 reserved | 4 message id | 5 checksum | 6 color
type Signal struct {
	Header    byte
	Stone     Stone
	Status    Status
	Reserved  byte
	MessageID byte
	Checksum  byte
	Color     Color
}

func (s Signal) String() string {
	return fmt.Sprintf("%s from %s status %s (id %d)", s.Color, s.Stone, s.Status, s.MessageID)
}

// Encode converts sig to its 7-byte frame with the send-direction checksum.
// The Checksum field of sig is ignored.
func Encode(sig Signal) []byte {
	data := make([]byte, frame.Size)
	data[frame.OffsetHeader] = sig.Header
	data[frame.OffsetStone] = byte(sig.Stone)
	data[frame.OffsetStatus] = byte(sig.Status)
	data[frame.OffsetReserved] = sig.Reserved
	data[frame.OffsetMessageID] = sig.MessageID
	data[frame.OffsetColor] = byte(sig.Color)
	data[frame.OffsetChecksum] = frame.SendChecksum(data)
	return data
}

// Decode parses a frame received from the bridge. When the receive-direction
// checksum does not match, the decoded signal is returned together with
// ErrChecksumMismatch so callers can still inspect it.
func Decode(data []byte) (Signal, error) {
	if len(data) != frame.Size {
		return Signal{}, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidFrameLength, len(data), frame.Size)
	}

	sig := signalFromFrame(data)
	if want := frame.ReceiveChecksum(data); sig.Checksum != want {
		return sig, fmt.Errorf("%w: got %d, want %d", ErrChecksumMismatch, sig.Checksum, want)
	}
	return sig, nil
}

// DecodeSent parses a frame built by the host (send-direction checksum).
func DecodeSent(data []byte) (Signal, error) {
	if len(data) != frame.Size {
		return Signal{}, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidFrameLength, len(data), frame.Size)
	}

	sig := signalFromFrame(data)
	if want := frame.SendChecksum(data); sig.Checksum != want {
		return sig, fmt.Errorf("%w: got %d, want %d", ErrChecksumMismatch, sig.Checksum, want)
	}
	return sig, nil
}

func signalFromFrame(data []byte) Signal {
	return Signal{
		Header:    data[frame.OffsetHeader],
		Stone:     Stone(data[frame.OffsetStone]),
		Status:    Status(data[frame.OffsetStatus]),
		Reserved:  data[frame.OffsetReserved],
		MessageID: data[frame.OffsetMessageID],
		Checksum:  data[frame.OffsetChecksum],
		Color:     Color(data[frame.OffsetColor]),
	}
}

// Checksum computes the checksum of a 7-byte frame for the given direction.
// Byte 5 of data is not read.
func Checksum(data []byte, dir Direction) (byte, error) {
	if len(data) != frame.Size {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidFrameLength, len(data), frame.Size)
	}
	if dir == DirectionReceive {
		return frame.ReceiveChecksum(data), nil
	}
	return frame.SendChecksum(data), nil
}

// AddChecksum returns a copy of data with the checksum slot filled in.
func AddChecksum(data []byte, dir Direction) ([]byte, error) {
	sum, err := Checksum(data, dir)
	if err != nil {
		return nil, err
	}
	out := make([]byte, frame.Size)
	copy(out, data)
	out[frame.OffsetChecksum] = sum
	return out, nil
}

// FindSignals returns every signal frame contained in a notification payload.
func FindSignals(payload []byte) [][]byte {
	return frame.Find(payload)
}
