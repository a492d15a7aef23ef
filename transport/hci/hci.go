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

// Package hci implements a gravitrax.Transport on a raw Linux HCI socket
// using github.com/rigado/ble. It does not need BlueZ but requires
// CAP_NET_ADMIN and an adapter that is not claimed by bluetoothd.
package hci

import (
	"context"
	"strings"
	"sync"
	"time"

	gravitrax "github.com/ZaparooProject/go-gravitrax"
	"github.com/ZaparooProject/go-gravitrax/internal/transport"
	"github.com/pkg/errors"
	"github.com/rigado/ble"
	"github.com/rigado/ble/linux"
)

// Config configures the HCI transport
type Config struct {
	// DeviceID is the hci index, 0 for hci0
	DeviceID int
	// DialTimeout bounds the LE create connection command
	DialTimeout time.Duration
	// Logger receives the stack's own logging when set
	Logger gravitrax.Logger
	// DiscoverRetries is how often profile discovery is retried
	DiscoverRetries int
}

// DefaultConfig returns the default HCI configuration
func DefaultConfig() *Config {
	return &Config{
		DeviceID:        0,
		DialTimeout:     10 * time.Second,
		DiscoverRetries: 2,
	}
}

// Transport talks to bridges through a local HCI adapter
type Transport struct {
	device *linux.Device
	config *Config
	mu     sync.Mutex
	closed bool
}

// New opens the HCI adapter and makes it the default rigado/ble device
func New(config *Config) (*Transport, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger != nil {
		ble.SetLogger(newStackLogger(config.Logger))
	}

	d, err := linux.NewDeviceWithNameAndHandler("", nil,
		ble.OptDeviceID(config.DeviceID),
		ble.OptDialerTimeout(config.DialTimeout),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "open hci%d", config.DeviceID)
	}
	ble.SetDefaultDevice(d)

	return &Transport{device: d, config: config}, nil
}

// Scan implements gravitrax.Transport
func (t *Transport) Scan(ctx context.Context, handler func(gravitrax.ScanResult) bool) error {
	if t.isClosed() {
		return gravitrax.ErrBridgeClosed
	}

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var once sync.Once
	err := ble.Scan(scanCtx, false, func(a ble.Advertisement) {
		result, ok := scanResult(a)
		if !ok {
			return
		}
		if !handler(result) {
			once.Do(cancel)
		}
	}, nil)

	switch errors.Cause(err) {
	case nil:
		return nil
	case context.Canceled, context.DeadlineExceeded:
		return ctx.Err()
	default:
		return errors.Wrap(err, "hci scan")
	}
}

func scanResult(a ble.Advertisement) (gravitrax.ScanResult, bool) {
	addr, err := a.Addr()
	if err != nil || addr == nil {
		return gravitrax.ScanResult{}, false
	}
	name, _ := a.LocalName()
	rssi, _ := a.RSSI()
	return gravitrax.ScanResult{
		Address: strings.ToUpper(addr.String()),
		Name:    name,
		RSSI:    rssi,
	}, true
}

// Connect implements gravitrax.Transport
func (t *Transport) Connect(ctx context.Context, address string) (gravitrax.Link, error) {
	if t.isClosed() {
		return nil, gravitrax.ErrBridgeClosed
	}

	want := strings.ToUpper(address)
	client, err := ble.Connect(ctx, func(a ble.Advertisement) bool {
		addr, err := a.Addr()
		return err == nil && addr != nil && strings.ToUpper(addr.String()) == want
	})
	if err != nil {
		return nil, errors.Wrapf(err, "hci connect %s", address)
	}

	profile, err := transport.WithRetry(ctx, transport.RetryConfig{
		Description: "discover profile",
		Address:     address,
		MaxRetries:  t.config.DiscoverRetries,
		RetryDelay:  200 * time.Millisecond,
	}, func(context.Context) (*ble.Profile, bool, error) {
		p, err := client.DiscoverProfile(true)
		if err != nil {
			return nil, true, errors.Wrap(err, "discover profile")
		}
		return p, false, nil
	})
	if err != nil {
		_ = client.CancelConnection()
		return nil, err
	}

	return newLink(client, profile, want), nil
}

// Type implements gravitrax.Transport
func (*Transport) Type() gravitrax.TransportType {
	return gravitrax.TransportHCI
}

// Close releases the HCI socket
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return errors.Wrap(t.device.HCI.Close(), "close hci")
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// link is one GATT client connection
type link struct {
	client  ble.Client
	profile *ble.Profile
	address string
	mu      sync.Mutex
	subs    map[string]*ble.Characteristic
}

func newLink(client ble.Client, profile *ble.Profile, address string) *link {
	return &link{
		client:  client,
		profile: profile,
		address: address,
		subs:    make(map[string]*ble.Characteristic),
	}
}

func (l *link) characteristic(uuid string) (*ble.Characteristic, error) {
	want, err := ble.Parse(uuid)
	if err != nil {
		return nil, errors.Wrapf(err, "parse uuid %s", uuid)
	}
	for _, s := range l.profile.Services {
		for _, c := range s.Characteristics {
			if c.UUID.Equal(want) {
				return c, nil
			}
		}
	}
	return nil, errors.Errorf("characteristic %s not found", uuid)
}

// Write implements gravitrax.Link. GraviTrax bridges accept write requests,
// so the response is awaited.
func (l *link) Write(ctx context.Context, uuid string, data []byte) error {
	c, err := l.characteristic(uuid)
	if err != nil {
		return err
	}
	_, err = transport.Call(ctx, func() (struct{}, error) {
		return struct{}{}, l.client.WriteCharacteristic(c, data, false)
	})
	return errors.Wrapf(err, "write %s", uuid)
}

// Read implements gravitrax.Link
func (l *link) Read(ctx context.Context, uuid string) ([]byte, error) {
	c, err := l.characteristic(uuid)
	if err != nil {
		return nil, err
	}
	data, err := transport.Call(ctx, func() ([]byte, error) {
		return l.client.ReadCharacteristic(c)
	})
	return data, errors.Wrapf(err, "read %s", uuid)
}

// Subscribe implements gravitrax.Link
func (l *link) Subscribe(ctx context.Context, uuid string, handler func([]byte)) error {
	c, err := l.characteristic(uuid)
	if err != nil {
		return err
	}
	_, err = transport.Call(ctx, func() (struct{}, error) {
		return struct{}{}, l.client.Subscribe(c, false, func(_ uint, req []byte) {
			handler(req)
		})
	})
	if err != nil {
		return errors.Wrapf(err, "subscribe %s", uuid)
	}

	l.mu.Lock()
	l.subs[uuid] = c
	l.mu.Unlock()
	return nil
}

// Unsubscribe implements gravitrax.Link
func (l *link) Unsubscribe(ctx context.Context, uuid string) error {
	l.mu.Lock()
	c, ok := l.subs[uuid]
	delete(l.subs, uuid)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	_, err := transport.Call(ctx, func() (struct{}, error) {
		return struct{}{}, l.client.Unsubscribe(c, false)
	})
	return errors.Wrapf(err, "unsubscribe %s", uuid)
}

// Services implements gravitrax.Link
func (l *link) Services(context.Context) ([]gravitrax.Service, error) {
	services := make([]gravitrax.Service, 0, len(l.profile.Services))
	for _, s := range l.profile.Services {
		svc := gravitrax.Service{UUID: s.UUID.String()}
		for _, c := range s.Characteristics {
			ch := gravitrax.Characteristic{
				UUID:       c.UUID.String(),
				Properties: properties(c.Property),
			}
			for _, d := range c.Descriptors {
				ch.Descriptors = append(ch.Descriptors, d.UUID.String())
			}
			svc.Characteristics = append(svc.Characteristics, ch)
		}
		services = append(services, svc)
	}
	return services, nil
}

var propertyNames = []struct {
	name string
	prop ble.Property
}{
	{"broadcast", ble.CharBroadcast},
	{"read", ble.CharRead},
	{"write-without-response", ble.CharWriteNR},
	{"write", ble.CharWrite},
	{"notify", ble.CharNotify},
	{"indicate", ble.CharIndicate},
	{"signed-write", ble.CharSignedWrite},
	{"extended", ble.CharExtended},
}

func properties(p ble.Property) []string {
	var out []string
	for _, pn := range propertyNames {
		if p&pn.prop != 0 {
			out = append(out, pn.name)
		}
	}
	return out
}

// Disconnect implements gravitrax.Link
func (l *link) Disconnect() error {
	return errors.Wrap(l.client.CancelConnection(), "cancel connection")
}

// IsConnected implements gravitrax.Link
func (l *link) IsConnected() bool {
	select {
	case <-l.client.Disconnected():
		return false
	default:
		return true
	}
}

// Disconnected implements gravitrax.Link
func (l *link) Disconnected() <-chan struct{} {
	return l.client.Disconnected()
}

// Address implements gravitrax.Link
func (l *link) Address() string {
	return l.address
}

// Name implements gravitrax.Link
func (l *link) Name() string {
	return l.client.Name()
}
