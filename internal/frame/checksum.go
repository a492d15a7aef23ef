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

package frame

// SendChecksum computes the checksum the bridge expects on frames written
// by the host. Only bytes 0-4 contribute.
func SendChecksum(data []byte) byte {
	var sum byte
	for _, b := range data[OffsetHeader:OffsetChecksum] {
		sum += b
	}
	return sum
}

// ReceiveChecksum computes the checksum the bridge firmware places on
// frames it originates. The colour byte is folded in with a -1 seed.
func ReceiveChecksum(data []byte) byte {
	var sum byte
	for _, b := range data[OffsetHeader:OffsetChecksum] {
		sum += b
	}
	sum += data[OffsetColor]
	sum--
	return sum
}

// IsSignal reports whether data at offset start looks like a signal frame.
func IsSignal(data []byte, start int) bool {
	return start >= 0 && len(data)-start >= Size && data[start] == Header
}

// Find returns every Size-byte window of payload that starts with Header.
// Windows do not overlap; scanning resumes after each match.
func Find(payload []byte) [][]byte {
	var frames [][]byte
	for i := 0; i+Size <= len(payload); {
		if !IsSignal(payload, i) {
			i++
			continue
		}
		f := make([]byte, Size)
		copy(f, payload[i:i+Size])
		frames = append(frames, f)
		i += Size
	}
	return frames
}
