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
	"fmt"
	"strings"
	"sync"
	"time"
)

// closeTimeout bounds the disconnect issued by Close
const closeTimeout = 5 * time.Second

// session is one established link. It is replaced on every connect.
type session struct {
	link    Link
	handled chan struct{} // closed after the link loss was processed

	// guarded by Bridge.mu
	user              bool
	timedOut          bool
	callbackOnTimeout bool
}

// Bridge is a host-side handle to one GraviTrax Connect bridge.
//
// Thread Safety: Bridge is safe for concurrent use. Connect, Disconnect and
// the notification toggles are serialized. Writes are serialized per link
// so resends from concurrent sends interleave frame by frame.
type Bridge struct {
	transport Transport
	config    *BridgeConfig
	ctx       context.Context
	cancel    context.CancelFunc
	metrics   *notifyMetrics

	// opMu serializes connect, disconnect and notification toggles
	opMu sync.Mutex
	// writeMu serializes physical writes
	writeMu sync.Mutex

	mu         sync.Mutex
	log        Logger
	session    *session
	connCfg    *ConnectConfig
	target     string
	info       BridgeInfo
	observer   Observer
	dispatcher *dispatcher
	state      ConnectionState
	groupID    int
	nextID     byte
	notifying  bool
	closed     bool

	wg sync.WaitGroup
}

// New creates a Bridge that connects through transport
func New(transport Transport, opts ...Option) (*Bridge, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}

	config := DefaultBridgeConfig()
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		transport: transport,
		config:    config,
		ctx:       ctx,
		cancel:    cancel,
		log:       config.Logger,
		metrics:   &notifyMetrics{},
	}, nil
}

// Transport returns the underlying transport
func (b *Bridge) Transport() Transport {
	return b.transport
}

// Connect establishes a link to a bridge. By default nameOrAddr is matched
// case-insensitively against advertised names; use ByAddress to dial an
// address directly.
func (b *Bridge) Connect(ctx context.Context, nameOrAddr string, opts ...ConnectOption) error {
	cfg := DefaultConnectConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("%w: connect timeout must be positive", ErrInvalidParameter)
	}
	return b.connect(ctx, nameOrAddr, cfg)
}

func (b *Bridge) connect(ctx context.Context, target string, cfg *ConnectConfig) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBridgeClosed
	}
	if b.session != nil {
		b.mu.Unlock()
		return ErrAlreadyConnected
	}
	b.state = StateConnecting
	b.mu.Unlock()

	link, err := b.dial(ctx, target, cfg)
	if err != nil {
		b.setState(StateDisconnected)
		b.config.Logger.Errorf("could not connect to bridge %q: %v", target, err)
		return err
	}

	name := link.Name()
	if name == "" && cfg.ByName {
		name = target
	}

	s := &session{link: link, handled: make(chan struct{})}
	b.mu.Lock()
	if b.closed {
		b.state = StateDisconnected
		b.mu.Unlock()
		if err := link.Disconnect(); err != nil {
			b.config.Logger.Warnf("could not drop link opened during close: %v", err)
		}
		return ErrBridgeClosed
	}
	b.session = s
	b.connCfg = cfg
	b.target = target
	b.state = StateConnected
	b.info = BridgeInfo{Address: link.Address(), Name: name}
	b.log = b.config.Logger.WithFields(map[string]any{"bridge": link.Address()})
	log := b.log
	b.mu.Unlock()

	b.wg.Add(1)
	go b.watch(s)

	log.Infof("connected to bridge %s", name)

	infoCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if _, err := b.RequestBridgeInfo(infoCtx); err != nil {
		log.Warnf("could not read bridge info: %v", err)
	}
	if _, err := b.RequestBattery(infoCtx); err != nil {
		log.Warnf("could not read battery level: %v", err)
	}
	return nil
}

// dial resolves target and opens the link, each step bounded by cfg.Timeout
func (b *Bridge) dial(ctx context.Context, target string, cfg *ConnectConfig) (Link, error) {
	address := target
	if cfg.ByName {
		found, err := b.findByName(ctx, target, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		address = found
	}

	connCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	link, err := b.transport.Connect(connCtx, address)
	if err != nil {
		if errors.Is(connCtx.Err(), context.DeadlineExceeded) {
			return nil, NewTimeoutError("connect", address)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		return nil, NewTransportError("connect", address, err, ErrorTypeTransient)
	}
	return link, nil
}

func (b *Bridge) findByName(ctx context.Context, name string, timeout time.Duration) (string, error) {
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu    sync.Mutex
		found string
	)
	err := b.transport.Scan(scanCtx, func(r ScanResult) bool {
		if !strings.EqualFold(r.Name, name) {
			return true
		}
		mu.Lock()
		defer mu.Unlock()
		if found == "" {
			found = r.Address
		}
		return false
	})

	mu.Lock()
	defer mu.Unlock()
	if found != "" {
		return found, nil
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
	if err != nil && scanCtx.Err() == nil {
		return "", NewTransportError("scan", "", fmt.Errorf("%w: %w", ErrScan, err), ErrorTypeTransient)
	}
	return "", fmt.Errorf("%w: %q", ErrNoBridgeFound, name)
}

// watch waits for the link to go down and tears the session down
func (b *Bridge) watch(s *session) {
	defer b.wg.Done()
	<-s.link.Disconnected()
	b.handleLinkLoss(s)
}

func (b *Bridge) handleLinkLoss(s *session) {
	defer close(s.handled)

	b.mu.Lock()
	if b.session != s {
		b.mu.Unlock()
		return
	}
	ev := DisconnectEvent{
		UserDisconnected: s.user,
		ByTimeout:        s.timedOut && s.callbackOnTimeout,
	}
	b.session = nil
	b.state = StateDisconnected
	cfg := b.connCfg
	target := b.target
	observer := b.observer
	restart := b.notifying
	b.notifying = false
	if s.user {
		b.observer = nil
	}
	d := b.dispatcher
	b.dispatcher = nil
	closed := b.closed
	log := b.log
	b.mu.Unlock()

	d.stop()

	log.Infof("bridge disconnected (by user: %v)", ev.UserDisconnected)
	b.fireDisconnect(cfg, ev)

	if !ev.UserDisconnected && !closed && cfg != nil && cfg.TryReconnect {
		b.wg.Add(1)
		go b.reconnect(target, cfg, observer, restart)
	}
}

// reconnect makes one attempt to restore a dropped link
func (b *Bridge) reconnect(target string, cfg *ConnectConfig, observer Observer, restart bool) {
	defer b.wg.Done()

	ctx, cancel := context.WithTimeout(b.ctx, b.config.ReconnectTimeout)
	defer cancel()

	b.config.Logger.Infof("trying to reconnect to bridge %q", target)
	if err := b.connect(ctx, target, cfg); err != nil {
		b.config.Logger.Warnf("could not reconnect to bridge: %v", err)
		b.fireDisconnect(cfg, DisconnectEvent{ByTimeout: true})
		return
	}
	b.logger().Infof("reconnected to bridge")

	if restart && cfg.RestartNotifications && observer != nil {
		if err := b.EnableNotifications(ctx, observer); err != nil {
			b.logger().Errorf("could not restart notifications: %v", err)
		}
	}
}

func (b *Bridge) fireDisconnect(cfg *ConnectConfig, ev DisconnectEvent) {
	if cfg == nil || cfg.DisconnectCallback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger().Errorf("disconnect callback panicked: %v", r)
		}
	}()
	cfg.DisconnectCallback(b, ev)
}

// Disconnect tears the link down and waits for it to go away.
//
// With no link, the disconnect callback of the last connect is called with
// UserDisconnected set and ErrNotConnected is returned. When the wait
// expires ErrDisconnectTimeout is returned; the callback still fires once
// the link eventually drops.
func (b *Bridge) Disconnect(ctx context.Context, opts ...DisconnectOption) error {
	cfg := DefaultDisconnectConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return b.disconnect(ctx, cfg, true)
}

// disconnect with user false reports the teardown as unexpected
func (b *Bridge) disconnect(ctx context.Context, cfg *DisconnectConfig, user bool) error {
	b.opMu.Lock()
	b.mu.Lock()
	s := b.session
	if s == nil {
		connCfg := b.connCfg
		b.mu.Unlock()
		b.opMu.Unlock()
		b.logger().Errorf("disconnect: no bridge connected")
		b.fireDisconnect(connCfg, DisconnectEvent{UserDisconnected: true})
		return ErrNotConnected
	}
	s.user = user
	s.callbackOnTimeout = cfg.CallbackOnTimeout
	b.state = StateDisconnecting
	address := s.link.Address()
	log := b.log
	b.mu.Unlock()
	b.opMu.Unlock()

	log.Debugf("disconnecting")

	errCh := make(chan error, 1)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		errCh <- s.link.Disconnect()
	}()

	timer := time.NewTimer(cfg.Timeout)
	defer timer.Stop()

	done := ctx.Done()
	for {
		select {
		case <-s.handled:
			return nil
		case err := <-errCh:
			errCh = nil
			if err != nil {
				log.Errorf("disconnect request failed: %v", err)
				b.restoreConnected(s)
				return NewTransportError("disconnect", address, err, ErrorTypeTransient)
			}
		case <-timer.C:
			done = nil
			if b.markTimedOut(s) {
				log.Warnf("disconnect did not complete within %s", cfg.Timeout)
				return ErrDisconnectTimeout
			}
		case <-done:
			done = nil
			if b.markTimedOut(s) {
				return fmt.Errorf("%w: %w", ErrDisconnectTimeout, ctx.Err())
			}
		}
	}
}

// markTimedOut flags s as abandoned by its waiter. It returns false if the
// link loss is already being processed, in which case handled closes soon.
func (b *Bridge) markTimedOut(s *session) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != s {
		return false
	}
	s.timedOut = true
	return true
}

func (b *Bridge) restoreConnected(s *session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == s && s.link.IsConnected() {
		s.user = false
		b.state = StateConnected
	}
}

// Close disconnects, stops background work and waits for it to exit.
// The Bridge cannot be reused.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	connected := b.session != nil
	b.mu.Unlock()

	b.cancel()

	var err error
	if connected {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		derr := b.Disconnect(ctx, WithDisconnectTimeout(closeTimeout))
		cancel()
		if derr != nil && !errors.Is(derr, ErrNotConnected) {
			err = derr
		}
	}

	b.mu.Lock()
	d := b.dispatcher
	b.dispatcher = nil
	b.observer = nil
	b.notifying = false
	b.mu.Unlock()
	d.stop()

	b.wg.Wait()
	return err
}

// IsConnected reports whether a link is established
func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session != nil && b.state == StateConnected
}

// State returns the connection state
func (b *Bridge) State() ConnectionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Address returns the address of the connected bridge, or of the last one
func (b *Bridge) Address() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.info.Address
}

// Name returns the name of the connected bridge, or of the last one
func (b *Bridge) Name() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.info.Name
}

// GroupID returns the caller-assigned group tag
func (b *Bridge) GroupID() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.groupID
}

// SetGroupID tags the bridge so callers can tell several bridges apart
func (b *Bridge) SetGroupID(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.groupID = id
}

func (b *Bridge) setState(state ConnectionState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = state
}

func (b *Bridge) logger() Logger {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.log
}

// currentLink returns the established link or ErrNotConnected
func (b *Bridge) currentLink() (Link, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil, ErrNotConnected
	}
	return b.session.link, nil
}
