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

/*
Package gravitrax is a client library for the GraviTrax Connect Bluetooth LE
bridge.

The bridge relays 7 byte signal frames between a host and the power stones
of a marble track. This package encodes and decodes those frames, connects
to a bridge, sends signals with the repeated writes the stones expect, and
delivers received signals to an observer.

Features:
  - Signal frame encoding with the send and receive checksum rules
  - Connection by advertised name or address with optional reconnect
  - Exactly once disconnect callbacks, including disconnect timeouts
  - Repeated and periodic sends with cancellation through an ErrorEvent
  - Ordered, deduplicated notification delivery on one goroutine
  - Battery and firmware queries
  - Two transports: BlueZ through tinygo bluetooth and raw HCI on Linux

Basic Usage:

	import (
	    "github.com/ZaparooProject/go-gravitrax"
	    "github.com/ZaparooProject/go-gravitrax/transport/bluez"
	)

	transport, err := bluez.New(nil)
	if err != nil {
	    log.Fatal(err)
	}
	defer transport.Close()

	bridge, err := gravitrax.New(transport)
	if err != nil {
	    log.Fatal(err)
	}
	defer bridge.Close()

	ctx := context.Background()
	if err := bridge.Connect(ctx, gravitrax.BridgeName); err != nil {
	    log.Fatal(err)
	}

	// Every stone reacts to a red signal sent as the bridge
	if err := bridge.SendSignal(ctx, gravitrax.StatusAll, gravitrax.ColorRed); err != nil {
	    log.Print(err)
	}

	err = bridge.EnableNotifications(ctx, func(_ *gravitrax.Bridge, ev gravitrax.Event) {
	    if ev.IsSignal() {
	        fmt.Println(ev.Signal)
	    }
	})

Transport Layers:

Transport opens links, Link carries GATT reads, writes and notifications.
transport/bluez works on Linux, macOS and Windows. transport/hci talks to
the adapter directly on Linux and does not need bluetoothd.

Testing:

MockTransport and MockLink simulate a bridge so code built on this package
can be tested without hardware.

Related packages:
  - sequence: step programs, if/then triggers and JSON presets
  - timing: start to finish race timer
  - gpio: Raspberry Pi buttons and indicator outputs
  - zaplog: zap adapter for Logger
*/
package gravitrax
