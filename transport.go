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
	"context"
)

// Transport defines the BLE capabilities the bridge needs.
// Implemented by the hci (rigado/ble) and bluez (tinygo bluetooth) backends.
type Transport interface {
	// Scan reports advertisements to handler until ctx is done or handler
	// returns false
	Scan(ctx context.Context, handler func(ScanResult) bool) error

	// Connect opens a link to the peripheral with the given address
	Connect(ctx context.Context, address string) (Link, error)

	// Type returns the transport type
	Type() TransportType

	// Close releases the adapter
	Close() error
}

// Link is one established connection to a bridge. A reconnect produces a
// new Link; holders must not keep a Link across reconnects.
type Link interface {
	// Write writes data to the characteristic identified by uuid
	Write(ctx context.Context, uuid string, data []byte) error

	// Read reads the value of the characteristic identified by uuid
	Read(ctx context.Context, uuid string) ([]byte, error)

	// Subscribe enables notifications on uuid. handler is called once per
	// notification, in arrival order.
	Subscribe(ctx context.Context, uuid string, handler func([]byte)) error

	// Unsubscribe disables notifications on uuid
	Unsubscribe(ctx context.Context, uuid string) error

	// Services lists the discovered GATT services
	Services(ctx context.Context) ([]Service, error)

	// Disconnect requests link teardown. Completion is signalled by the
	// Disconnected channel, which may close after Disconnect returns.
	Disconnect() error

	// IsConnected returns true while the link is up
	IsConnected() bool

	// Disconnected returns a channel closed when the link goes down for
	// any reason
	Disconnected() <-chan struct{}

	// Address returns the peer address
	Address() string

	// Name returns the advertised peer name, if known
	Name() string
}

// ScanResult is one advertisement seen during a scan
type ScanResult struct {
	Address string
	Name    string
	RSSI    int
}

// Service describes a GATT service
type Service struct {
	UUID            string
	Characteristics []Characteristic
}

// Characteristic describes a GATT characteristic
type Characteristic struct {
	UUID        string
	Properties  []string
	Descriptors []string
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportHCI talks to a raw HCI socket or H4 UART (Linux)
	TransportHCI TransportType = "hci"
	// TransportBlueZ uses the operating system BLE stack
	TransportBlueZ TransportType = "bluez"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)
