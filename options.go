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
	"fmt"
	"time"
)

// Defaults applied by the Default*Config constructors
const (
	DefaultConnectTimeout    = 25 * time.Second
	DefaultDisconnectTimeout = 20 * time.Second
	DefaultReconnectTimeout  = 15 * time.Second
	DefaultScanTimeout       = 10 * time.Second
	DefaultResends           = 12
	DefaultDedupWindow       = 12
	DefaultQueueSize         = 64
)

// BridgeConfig holds the settings fixed for the lifetime of a Bridge
type BridgeConfig struct {
	Logger           Logger
	WriteUUID        string
	NotifyUUID       string
	BatteryUUID      string
	ReconnectTimeout time.Duration
	// DedupWindow is how many recent signal frames are remembered to drop
	// repeats. Zero disables deduplication.
	DedupWindow int
	// QueueSize bounds pending notifications. Payloads arriving while the
	// queue is full are dropped.
	QueueSize int
}

// DefaultBridgeConfig returns the default bridge configuration
func DefaultBridgeConfig() *BridgeConfig {
	return &BridgeConfig{
		Logger:           NopLogger(),
		WriteUUID:        UUIDWrite,
		NotifyUUID:       UUIDNotify,
		BatteryUUID:      UUIDBattery,
		ReconnectTimeout: DefaultReconnectTimeout,
		DedupWindow:      DefaultDedupWindow,
		QueueSize:        DefaultQueueSize,
	}
}

// Option is a functional option for configuring a Bridge
type Option func(*BridgeConfig) error

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l Logger) Option {
	return func(c *BridgeConfig) error {
		if l == nil {
			l = NopLogger()
		}
		c.Logger = l
		return nil
	}
}

// WithWriteUUID overrides the characteristic signals are written to
func WithWriteUUID(uuid string) Option {
	return func(c *BridgeConfig) error {
		if uuid == "" {
			return fmt.Errorf("%w: empty write uuid", ErrInvalidParameter)
		}
		c.WriteUUID = uuid
		return nil
	}
}

// WithNotifyUUID overrides the characteristic notifications arrive on
func WithNotifyUUID(uuid string) Option {
	return func(c *BridgeConfig) error {
		if uuid == "" {
			return fmt.Errorf("%w: empty notify uuid", ErrInvalidParameter)
		}
		c.NotifyUUID = uuid
		return nil
	}
}

// WithBatteryUUID overrides the battery level characteristic
func WithBatteryUUID(uuid string) Option {
	return func(c *BridgeConfig) error {
		if uuid == "" {
			return fmt.Errorf("%w: empty battery uuid", ErrInvalidParameter)
		}
		c.BatteryUUID = uuid
		return nil
	}
}

// WithReconnectTimeout bounds the automatic reconnect attempt
func WithReconnectTimeout(d time.Duration) Option {
	return func(c *BridgeConfig) error {
		if d <= 0 {
			return fmt.Errorf("%w: reconnect timeout must be positive", ErrInvalidParameter)
		}
		c.ReconnectTimeout = d
		return nil
	}
}

// WithDedupWindow sets the duplicate notification window
func WithDedupWindow(n int) Option {
	return func(c *BridgeConfig) error {
		if n < 0 {
			return fmt.Errorf("%w: negative dedup window", ErrInvalidParameter)
		}
		c.DedupWindow = n
		return nil
	}
}

// WithQueueSize sets the notification queue capacity
func WithQueueSize(n int) Option {
	return func(c *BridgeConfig) error {
		if n < 1 {
			return fmt.Errorf("%w: queue size must be at least 1", ErrInvalidParameter)
		}
		c.QueueSize = n
		return nil
	}
}

// ConnectConfig controls a single Connect call
type ConnectConfig struct {
	DisconnectCallback DisconnectCallback
	Timeout            time.Duration
	// ByName scans for a bridge advertising the given name instead of
	// dialing an address directly
	ByName bool
	// TryReconnect makes one reconnect attempt after an unexpected drop
	TryReconnect bool
	// RestartNotifications re-enables notifications after a reconnect if
	// they were enabled before the drop
	RestartNotifications bool
}

// DefaultConnectConfig returns the default connect configuration
func DefaultConnectConfig() *ConnectConfig {
	return &ConnectConfig{
		Timeout:              DefaultConnectTimeout,
		ByName:               true,
		RestartNotifications: true,
	}
}

// ConnectOption configures a Connect call
type ConnectOption func(*ConnectConfig)

// ByAddress treats the connect target as a device address
func ByAddress() ConnectOption {
	return func(c *ConnectConfig) {
		c.ByName = false
	}
}

// WithConnectTimeout bounds scanning and connecting separately
func WithConnectTimeout(d time.Duration) ConnectOption {
	return func(c *ConnectConfig) {
		c.Timeout = d
	}
}

// WithDisconnectCallback registers fn for link teardown
func WithDisconnectCallback(fn DisconnectCallback) ConnectOption {
	return func(c *ConnectConfig) {
		c.DisconnectCallback = fn
	}
}

// WithReconnect enables the automatic reconnect after an unexpected drop
func WithReconnect(enabled bool) ConnectOption {
	return func(c *ConnectConfig) {
		c.TryReconnect = enabled
	}
}

// WithRestartNotifications controls whether notifications come back after
// a reconnect
func WithRestartNotifications(enabled bool) ConnectOption {
	return func(c *ConnectConfig) {
		c.RestartNotifications = enabled
	}
}

// DisconnectConfig controls a single Disconnect call
type DisconnectConfig struct {
	Timeout time.Duration
	// CallbackOnTimeout marks the eventual teardown callback with ByTimeout
	// when the wait expired
	CallbackOnTimeout bool
}

// DefaultDisconnectConfig returns the default disconnect configuration
func DefaultDisconnectConfig() *DisconnectConfig {
	return &DisconnectConfig{
		Timeout: DefaultDisconnectTimeout,
	}
}

// DisconnectOption configures a Disconnect call
type DisconnectOption func(*DisconnectConfig)

// WithDisconnectTimeout bounds the wait for the link to go down
func WithDisconnectTimeout(d time.Duration) DisconnectOption {
	return func(c *DisconnectConfig) {
		c.Timeout = d
	}
}

// WithCallbackOnTimeout flags a timed out disconnect in the callback
func WithCallbackOnTimeout() DisconnectOption {
	return func(c *DisconnectConfig) {
		c.CallbackOnTimeout = true
	}
}

// SendConfig controls how a signal is written
type SendConfig struct {
	ErrorEvent *ErrorEvent
	// UUID overrides the bridge write characteristic when set
	UUID string
	// Resends is the number of identical writes; values below 1 mean 1
	Resends   int
	ResendGap time.Duration
	Stone     Stone
	Header    byte
	RandomID  bool
	// StopOnFailure ends a periodic send at the first failed signal
	StopOnFailure bool
}

// DefaultSendConfig returns the default send configuration
func DefaultSendConfig() *SendConfig {
	return &SendConfig{
		Resends:       DefaultResends,
		Stone:         StoneBridge,
		Header:        DefaultHeader,
		StopOnFailure: true,
	}
}

// SendOption configures a send
type SendOption func(*SendConfig)

// WithResends sets how many times each frame is written
func WithResends(n int) SendOption {
	return func(c *SendConfig) {
		c.Resends = n
	}
}

// WithResendGap sets the pause between identical writes
func WithResendGap(d time.Duration) SendOption {
	return func(c *SendConfig) {
		c.ResendGap = d
	}
}

// WithStone sets the sender stone of the frame
func WithStone(s Stone) SendOption {
	return func(c *SendConfig) {
		c.Stone = s
	}
}

// WithHeader sets the frame header byte
func WithHeader(h byte) SendOption {
	return func(c *SendConfig) {
		c.Header = h
	}
}

// WithUUID writes to a different characteristic
func WithUUID(uuid string) SendOption {
	return func(c *SendConfig) {
		c.UUID = uuid
	}
}

// WithRandomID picks a random message id instead of the next in sequence
func WithRandomID(enabled bool) SendOption {
	return func(c *SendConfig) {
		c.RandomID = enabled
	}
}

// WithStopOnFailure controls whether a periodic send ends on failure
func WithStopOnFailure(enabled bool) SendOption {
	return func(c *SendConfig) {
		c.StopOnFailure = enabled
	}
}

// WithErrorEvent shares ev with the send. Setting ev skips remaining writes
// and a failed write sets it.
func WithErrorEvent(ev *ErrorEvent) SendOption {
	return func(c *SendConfig) {
		c.ErrorEvent = ev
	}
}

// ScanConfig controls discovery
type ScanConfig struct {
	Timeout time.Duration
	// StopOnHit ends the scan at the first matching bridge
	StopOnHit bool
}

// DefaultScanConfig returns the default scan configuration
func DefaultScanConfig() *ScanConfig {
	return &ScanConfig{
		Timeout: DefaultScanTimeout,
	}
}

// ScanOption configures a scan
type ScanOption func(*ScanConfig)

// WithScanTimeout sets how long the scan runs
func WithScanTimeout(d time.Duration) ScanOption {
	return func(c *ScanConfig) {
		c.Timeout = d
	}
}

// WithStopOnHit ends the scan at the first match
func WithStopOnHit() ScanOption {
	return func(c *ScanConfig) {
		c.StopOnHit = true
	}
}
