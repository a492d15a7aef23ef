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
	"errors"
	"sync"
	"time"

	testutil "github.com/ZaparooProject/go-gravitrax/internal/testing"
)

// ErrMockLinkDown is returned by MockLink operations after the link dropped
var ErrMockLinkDown = errors.New("mock link down")

// MockWrite is one recorded write
type MockWrite struct {
	UUID string
	Data []byte
}

// MockTransport is an in-memory Transport. Scan reports the configured
// devices and then keeps scanning until the context ends. Connect accepts
// any address and returns a MockLink backed by a VirtualBridge.
type MockTransport struct {
	connectErr   error
	scanErr      error
	OnConnect    func(link *MockLink)
	devices      []ScanResult
	links        []*MockLink
	connectCalls []string
	scanDelay    time.Duration
	connectDelay time.Duration
	mu           sync.Mutex
	closed       bool
}

// NewMockTransport creates a mock transport advertising devices
func NewMockTransport(devices ...ScanResult) *MockTransport {
	return &MockTransport{devices: devices}
}

// Scan implements Transport
func (m *MockTransport) Scan(ctx context.Context, handler func(ScanResult) bool) error {
	m.mu.Lock()
	devices := append([]ScanResult(nil), m.devices...)
	delay := m.scanDelay
	scanErr := m.scanErr
	m.mu.Unlock()

	if scanErr != nil {
		return scanErr
	}

	for _, d := range devices {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if !handler(d) {
			return nil
		}
	}

	<-ctx.Done()
	return ctx.Err()
}

// Connect implements Transport
func (m *MockTransport) Connect(ctx context.Context, address string) (Link, error) {
	m.mu.Lock()
	m.connectCalls = append(m.connectCalls, address)
	connectErr := m.connectErr
	delay := m.connectDelay
	name := ""
	for _, d := range m.devices {
		if d.Address == address {
			name = d.Name
			break
		}
	}
	onConnect := m.OnConnect
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if connectErr != nil {
		return nil, connectErr
	}

	link := NewMockLink(address, name)
	if onConnect != nil {
		onConnect(link)
	}

	m.mu.Lock()
	m.links = append(m.links, link)
	m.mu.Unlock()
	return link, nil
}

// Type implements Transport
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SetDevices replaces the advertised devices
func (m *MockTransport) SetDevices(devices ...ScanResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = devices
}

// SetScanDelay delays each scan result
func (m *MockTransport) SetScanDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanDelay = d
}

// SetScanError makes Scan fail immediately
func (m *MockTransport) SetScanError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanErr = err
}

// SetConnectError makes Connect fail; nil restores success
func (m *MockTransport) SetConnectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

// SetConnectDelay delays Connect
func (m *MockTransport) SetConnectDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectDelay = d
}

// ConnectCalls returns every address Connect was called with
func (m *MockTransport) ConnectCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.connectCalls...)
}

// Links returns every link handed out
func (m *MockTransport) Links() []*MockLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockLink(nil), m.links...)
}

// LastLink returns the most recent link or nil
func (m *MockTransport) LastLink() *MockLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.links) == 0 {
		return nil
	}
	return m.links[len(m.links)-1]
}

// IsClosed reports whether Close was called
func (m *MockTransport) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockLink is an in-memory Link. Reads and writes go to Device.
type MockLink struct {
	subscribeErr    error
	unsubscribeErr  error
	disconnectErr   error
	Device          *testutil.VirtualBridge
	writeErr        func(call int) error
	subscribers     map[string]func([]byte)
	disconnected    chan struct{}
	hold            chan struct{}
	address         string
	name            string
	writes          []MockWrite
	services        []Service
	disconnectDelay time.Duration
	disconnectCalls int
	mu              sync.Mutex
	dropOnce        sync.Once
}

// NewMockLink creates a connected link
func NewMockLink(address, name string) *MockLink {
	return &MockLink{
		address:      address,
		name:         name,
		Device:       testutil.NewVirtualBridge(),
		subscribers:  make(map[string]func([]byte)),
		disconnected: make(chan struct{}),
		services: []Service{{
			UUID: "0000ff00-0000-1000-8000-00805f9b34fb",
			Characteristics: []Characteristic{
				{UUID: UUIDWrite, Properties: []string{"read", "write"}},
				{UUID: UUIDNotify, Properties: []string{"notify"}, Descriptors: []string{"00002902-0000-1000-8000-00805f9b34fb"}},
			},
		}},
	}
}

// Write implements Link
func (l *MockLink) Write(ctx context.Context, uuid string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !l.IsConnected() {
		return ErrMockLinkDown
	}

	l.mu.Lock()
	l.writes = append(l.writes, MockWrite{UUID: uuid, Data: append([]byte(nil), data...)})
	call := len(l.writes)
	writeErr := l.writeErr
	l.mu.Unlock()

	if writeErr != nil {
		if err := writeErr(call); err != nil {
			return err
		}
	}
	return l.Device.Write(uuid, data)
}

// Read implements Link
func (l *MockLink) Read(ctx context.Context, uuid string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !l.IsConnected() {
		return nil, ErrMockLinkDown
	}
	return l.Device.Read(uuid)
}

// Subscribe implements Link
func (l *MockLink) Subscribe(_ context.Context, uuid string, handler func([]byte)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.subscribeErr != nil {
		return l.subscribeErr
	}
	l.subscribers[uuid] = handler
	return nil
}

// Unsubscribe implements Link
func (l *MockLink) Unsubscribe(_ context.Context, uuid string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unsubscribeErr != nil {
		return l.unsubscribeErr
	}
	delete(l.subscribers, uuid)
	return nil
}

// Services implements Link
func (l *MockLink) Services(context.Context) ([]Service, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Service(nil), l.services...), nil
}

// Disconnect implements Link. The link goes down immediately unless a
// delay or hold is configured.
func (l *MockLink) Disconnect() error {
	l.mu.Lock()
	l.disconnectCalls++
	err := l.disconnectErr
	delay := l.disconnectDelay
	hold := l.hold
	l.mu.Unlock()

	if err != nil {
		return err
	}

	switch {
	case hold != nil:
		go func() {
			<-hold
			l.Drop()
		}()
	case delay > 0:
		time.AfterFunc(delay, l.Drop)
	default:
		l.Drop()
	}
	return nil
}

// IsConnected implements Link
func (l *MockLink) IsConnected() bool {
	select {
	case <-l.disconnected:
		return false
	default:
		return true
	}
}

// Disconnected implements Link
func (l *MockLink) Disconnected() <-chan struct{} {
	return l.disconnected
}

// Address implements Link
func (l *MockLink) Address() string {
	return l.address
}

// Name implements Link
func (l *MockLink) Name() string {
	return l.name
}

// Drop simulates the bridge going away
func (l *MockLink) Drop() {
	l.dropOnce.Do(func() {
		l.mu.Lock()
		l.subscribers = make(map[string]func([]byte))
		l.mu.Unlock()
		close(l.disconnected)
	})
}

// Notify delivers payload to the subscriber of uuid. It returns false if
// nothing is subscribed.
func (l *MockLink) Notify(uuid string, payload []byte) bool {
	l.mu.Lock()
	handler, ok := l.subscribers[uuid]
	l.mu.Unlock()
	if !ok {
		return false
	}
	handler(payload)
	return true
}

// IsSubscribed reports whether uuid has a subscriber
func (l *MockLink) IsSubscribed(uuid string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.subscribers[uuid]
	return ok
}

// Writes returns every recorded write
func (l *MockLink) Writes() []MockWrite {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]MockWrite(nil), l.writes...)
}

// WriteCount returns the number of write calls
func (l *MockLink) WriteCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.writes)
}

// DisconnectCalls returns the number of Disconnect calls
func (l *MockLink) DisconnectCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.disconnectCalls
}

// SetWriteError installs fn to decide the result of each write. call
// counts from 1.
func (l *MockLink) SetWriteError(fn func(call int) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeErr = fn
}

// SetSubscribeError makes Subscribe fail
func (l *MockLink) SetSubscribeError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribeErr = err
}

// SetUnsubscribeError makes Unsubscribe fail
func (l *MockLink) SetUnsubscribeError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unsubscribeErr = err
}

// SetDisconnectError makes the Disconnect request fail
func (l *MockLink) SetDisconnectError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnectErr = err
}

// SetDisconnectDelay makes the link go down d after Disconnect
func (l *MockLink) SetDisconnectDelay(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnectDelay = d
}

// HoldDisconnect keeps the link up after Disconnect until release is
// called
func (l *MockLink) HoldDisconnect() (release func()) {
	hold := make(chan struct{})
	var once sync.Once

	l.mu.Lock()
	l.hold = hold
	l.mu.Unlock()

	return func() { once.Do(func() { close(hold) }) }
}

// BlockingMockLink is a MockLink whose writes block until Unblock is called
// or the link closes. It is used for deadlock and cancellation tests.
type BlockingMockLink struct {
	*MockLink
	blockChan chan struct{}
	blockMu   sync.Mutex
}

// NewBlockingMockLink creates a blocking link
func NewBlockingMockLink(address, name string) *BlockingMockLink {
	return &BlockingMockLink{
		MockLink:  NewMockLink(address, name),
		blockChan: make(chan struct{}),
	}
}

// Write blocks until Unblock, context cancellation or link loss
func (b *BlockingMockLink) Write(ctx context.Context, uuid string, data []byte) error {
	b.blockMu.Lock()
	blockChan := b.blockChan
	b.blockMu.Unlock()

	select {
	case <-blockChan:
	case <-ctx.Done():
		return ctx.Err()
	case <-b.Disconnected():
		return ErrMockLinkDown
	}
	return b.MockLink.Write(ctx, uuid, data)
}

// Unblock releases every blocked write
func (b *BlockingMockLink) Unblock() {
	b.blockMu.Lock()
	defer b.blockMu.Unlock()
	close(b.blockChan)
	b.blockChan = make(chan struct{})
}

// BlockingMockTransport hands out BlockingMockLinks
type BlockingMockTransport struct {
	*MockTransport
	blockingLinks []*BlockingMockLink
	mu            sync.Mutex
}

// NewBlockingMockTransport creates a transport whose links block writes
func NewBlockingMockTransport(devices ...ScanResult) *BlockingMockTransport {
	return &BlockingMockTransport{MockTransport: NewMockTransport(devices...)}
}

// Connect implements Transport
func (t *BlockingMockTransport) Connect(ctx context.Context, address string) (Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	link := NewBlockingMockLink(address, "")
	t.mu.Lock()
	t.blockingLinks = append(t.blockingLinks, link)
	t.mu.Unlock()
	return link, nil
}

// LastBlockingLink returns the most recent link or nil
func (t *BlockingMockTransport) LastBlockingLink() *BlockingMockLink {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.blockingLinks) == 0 {
		return nil
	}
	return t.blockingLinks[len(t.blockingLinks)-1]
}
