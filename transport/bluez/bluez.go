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

// Package bluez implements a gravitrax.Transport on tinygo.org/x/bluetooth,
// which talks to BlueZ over D-Bus on Linux and to the native stacks on
// macOS and Windows.
package bluez

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	gravitrax "github.com/ZaparooProject/go-gravitrax"
	"github.com/ZaparooProject/go-gravitrax/internal/transport"
	"tinygo.org/x/bluetooth"
)

// Config configures the BlueZ transport
type Config struct {
	// DiscoverRetries is how often service discovery is retried
	DiscoverRetries int
	// RetryDelay is the pause between discovery attempts
	RetryDelay time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DiscoverRetries: 2,
		RetryDelay:      250 * time.Millisecond,
	}
}

// Transport uses the default bluetooth adapter
type Transport struct {
	adapter *bluetooth.Adapter
	config  *Config
	links   map[string]*link
	scanMu  sync.Mutex
	mu      sync.Mutex
	closed  bool
}

// New enables the default adapter
func New(config *Config) (*Transport, error) {
	if config == nil {
		config = DefaultConfig()
	}

	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable adapter: %w", err)
	}

	t := &Transport{
		adapter: adapter,
		config:  config,
		links:   make(map[string]*link),
	}
	adapter.SetConnectHandler(t.onConnectionChange)
	return t, nil
}

func (t *Transport) onConnectionChange(device bluetooth.Device, connected bool) {
	if connected {
		return
	}
	address := strings.ToUpper(device.Address.String())

	t.mu.Lock()
	l, ok := t.links[address]
	delete(t.links, address)
	t.mu.Unlock()

	if ok {
		l.markDisconnected()
	}
}

// Scan implements gravitrax.Transport. Only one scan runs at a time.
func (t *Transport) Scan(ctx context.Context, handler func(gravitrax.ScanResult) bool) error {
	_, err := t.scan(ctx, func(r bluetooth.ScanResult) bool {
		return handler(gravitrax.ScanResult{
			Address: strings.ToUpper(r.Address.String()),
			Name:    r.LocalName(),
			RSSI:    int(r.RSSI),
		})
	})
	return err
}

// scan runs the adapter scan until handler returns false or ctx ends. It
// returns the result handler stopped on.
func (t *Transport) scan(ctx context.Context, handler func(bluetooth.ScanResult) bool) (bluetooth.ScanResult, error) {
	if t.isClosed() {
		return bluetooth.ScanResult{}, gravitrax.ErrBridgeClosed
	}

	t.scanMu.Lock()
	defer t.scanMu.Unlock()

	var (
		hit     bluetooth.ScanResult
		stopped bool
		mu      sync.Mutex
	)
	stop := func() {
		mu.Lock()
		defer mu.Unlock()
		if !stopped {
			stopped = true
			_ = t.adapter.StopScan()
		}
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()

	found := false
	err := t.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		if found {
			return
		}
		if !handler(r) {
			found = true
			hit = r
			stop()
		}
	})
	if found {
		return hit, nil
	}
	if ctx.Err() != nil {
		return bluetooth.ScanResult{}, ctx.Err()
	}
	if err != nil {
		return bluetooth.ScanResult{}, fmt.Errorf("scan: %w", err)
	}
	return bluetooth.ScanResult{}, nil
}

// Connect implements gravitrax.Transport. The address is resolved through
// a scan so the adapter knows the address type.
func (t *Transport) Connect(ctx context.Context, address string) (gravitrax.Link, error) {
	want := strings.ToUpper(address)
	result, err := t.scan(ctx, func(r bluetooth.ScanResult) bool {
		return strings.ToUpper(r.Address.String()) != want
	})
	if err != nil {
		return nil, err
	}
	if strings.ToUpper(result.Address.String()) != want {
		return nil, fmt.Errorf("device %s not found", address)
	}

	device, err := transport.Call(ctx, func() (bluetooth.Device, error) {
		return t.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", address, err)
	}

	l := &link{
		device:       device,
		address:      want,
		name:         result.LocalName(),
		chars:        make(map[string]bluetooth.DeviceCharacteristic),
		disconnected: make(chan struct{}),
	}

	err = l.discover(ctx, t.config)
	if err != nil {
		_ = device.Disconnect()
		return nil, err
	}

	t.mu.Lock()
	t.links[want] = l
	t.mu.Unlock()
	return l, nil
}

// Type implements gravitrax.Transport
func (*Transport) Type() gravitrax.TransportType {
	return gravitrax.TransportBlueZ
}

// Close disconnects every open link
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	links := make([]*link, 0, len(t.links))
	for _, l := range t.links {
		links = append(links, l)
	}
	t.mu.Unlock()

	for _, l := range links {
		_ = l.Disconnect()
	}
	return nil
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type service struct {
	uuid  string
	chars []bluetooth.DeviceCharacteristic
}

type link struct {
	device       bluetooth.Device
	chars        map[string]bluetooth.DeviceCharacteristic
	disconnected chan struct{}
	address      string
	name         string
	services     []service
	mu           sync.Mutex
	once         sync.Once
}

func (l *link) discover(ctx context.Context, config *Config) error {
	services, err := transport.WithRetry(ctx, transport.RetryConfig{
		Description: "discover services",
		Address:     l.address,
		MaxRetries:  config.DiscoverRetries,
		RetryDelay:  config.RetryDelay,
	}, func(context.Context) ([]bluetooth.DeviceService, bool, error) {
		s, err := l.device.DiscoverServices(nil)
		if err != nil {
			return nil, true, err
		}
		return s, false, nil
	})
	if err != nil {
		return err
	}

	for _, s := range services {
		chars, err := s.DiscoverCharacteristics(nil)
		if err != nil {
			return fmt.Errorf("discover characteristics of %s: %w", s.UUID().String(), err)
		}
		l.services = append(l.services, service{uuid: s.UUID().String(), chars: chars})
		for _, c := range chars {
			l.chars[strings.ToLower(c.UUID().String())] = c
		}
	}
	return nil
}

func (l *link) characteristic(uuid string) (bluetooth.DeviceCharacteristic, error) {
	parsed, err := bluetooth.ParseUUID(uuid)
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("parse uuid %s: %w", uuid, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.chars[strings.ToLower(parsed.String())]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("characteristic %s not found", uuid)
	}
	return c, nil
}

// Write implements gravitrax.Link
func (l *link) Write(ctx context.Context, uuid string, data []byte) error {
	c, err := l.characteristic(uuid)
	if err != nil {
		return err
	}
	_, err = transport.Call(ctx, func() (int, error) {
		return c.Write(data)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", uuid, err)
	}
	return nil
}

// Read implements gravitrax.Link
func (l *link) Read(ctx context.Context, uuid string) ([]byte, error) {
	c, err := l.characteristic(uuid)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 64)
	n, err := transport.Call(ctx, func() (int, error) {
		return c.Read(buf)
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uuid, err)
	}
	return buf[:n], nil
}

// Subscribe implements gravitrax.Link
func (l *link) Subscribe(ctx context.Context, uuid string, handler func([]byte)) error {
	c, err := l.characteristic(uuid)
	if err != nil {
		return err
	}
	_, err = transport.Call(ctx, func() (struct{}, error) {
		return struct{}{}, c.EnableNotifications(handler)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", uuid, err)
	}
	return nil
}

// Unsubscribe implements gravitrax.Link
func (l *link) Unsubscribe(ctx context.Context, uuid string) error {
	c, err := l.characteristic(uuid)
	if err != nil {
		return err
	}
	_, err = transport.Call(ctx, func() (struct{}, error) {
		return struct{}{}, c.EnableNotifications(nil)
	})
	if err != nil {
		return fmt.Errorf("unsubscribe %s: %w", uuid, err)
	}
	return nil
}

// Services implements gravitrax.Link. tinygo does not expose properties or
// descriptors, so only UUIDs are listed.
func (l *link) Services(context.Context) ([]gravitrax.Service, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]gravitrax.Service, 0, len(l.services))
	for _, s := range l.services {
		svc := gravitrax.Service{UUID: s.uuid}
		for _, c := range s.chars {
			svc.Characteristics = append(svc.Characteristics, gravitrax.Characteristic{UUID: c.UUID().String()})
		}
		out = append(out, svc)
	}
	return out, nil
}

// Disconnect implements gravitrax.Link
func (l *link) Disconnect() error {
	if err := l.device.Disconnect(); err != nil {
		return fmt.Errorf("disconnect %s: %w", l.address, err)
	}
	return nil
}

func (l *link) markDisconnected() {
	l.once.Do(func() { close(l.disconnected) })
}

// IsConnected implements gravitrax.Link
func (l *link) IsConnected() bool {
	select {
	case <-l.disconnected:
		return false
	default:
		return true
	}
}

// Disconnected implements gravitrax.Link
func (l *link) Disconnected() <-chan struct{} {
	return l.disconnected
}

// Address implements gravitrax.Link
func (l *link) Address() string {
	return l.address
}

// Name implements gravitrax.Link
func (l *link) Name() string {
	return l.name
}
