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

// Package frame provides the byte layout and checksum arithmetic of GraviTrax signal frames
package frame

// Frame layout. Every signal frame is exactly Size bytes.
const (
	Size = 7

	OffsetHeader    = 0
	OffsetStone     = 1
	OffsetStatus    = 2
	OffsetReserved  = 3
	OffsetMessageID = 4
	OffsetChecksum  = 5
	OffsetColor     = 6
)

// Header is the first byte of every signal frame (0x13).
const Header = 19
