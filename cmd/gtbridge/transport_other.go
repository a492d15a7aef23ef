//go:build !linux

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

package main

import (
	"fmt"

	gravitrax "github.com/ZaparooProject/go-gravitrax"
	"github.com/ZaparooProject/go-gravitrax/transport/bluez"
)

const defaultTransport = "bluez"

func checkTransport(name string) error {
	if gravitrax.TransportType(name) != gravitrax.TransportBlueZ {
		return fmt.Errorf("unknown transport %q, only bluez is available on this platform", name)
	}
	return nil
}

// newTransport opens the platform Bluetooth stack
func newTransport(cfg *Config, _ gravitrax.Logger) (gravitrax.Transport, error) {
	if err := checkTransport(cfg.Transport); err != nil {
		return nil, err
	}
	t, err := bluez.New(bluez.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open Bluetooth transport: %w", err)
	}
	return t, nil
}
