//go:build linux

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
	"github.com/ZaparooProject/go-gravitrax/transport/hci"
)

const defaultTransport = "bluez"

func checkTransport(name string) error {
	switch gravitrax.TransportType(name) {
	case gravitrax.TransportBlueZ, gravitrax.TransportHCI:
		return nil
	default:
		return fmt.Errorf("unknown transport %q, want bluez or hci", name)
	}
}

// newTransport opens the configured Bluetooth stack
func newTransport(cfg *Config, log gravitrax.Logger) (gravitrax.Transport, error) {
	switch gravitrax.TransportType(cfg.Transport) {
	case gravitrax.TransportHCI:
		hciConfig := hci.DefaultConfig()
		hciConfig.DeviceID = cfg.HCIDevice
		hciConfig.Logger = log.WithFields(map[string]any{"stack": "hci"})
		t, err := hci.New(hciConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to open HCI transport: %w", err)
		}
		return t, nil
	case gravitrax.TransportBlueZ:
		t, err := bluez.New(bluez.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to open BlueZ transport: %w", err)
		}
		return t, nil
	default:
		return nil, checkTransport(cfg.Transport)
	}
}
