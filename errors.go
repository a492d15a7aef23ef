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
	"errors"
	"fmt"
)

// Protocol errors
var (
	ErrInvalidFrameLength = errors.New("invalid frame length")
	ErrChecksumMismatch   = errors.New("checksum mismatch")
)

// Connection errors
var (
	ErrNotConnected      = errors.New("bridge not connected")
	ErrAlreadyConnected  = errors.New("bridge already connected")
	ErrNoBridgeFound     = errors.New("no bridge found")
	ErrTimeout           = errors.New("operation timeout")
	ErrDisconnectTimeout = fmt.Errorf("disconnect did not complete: %w", ErrTimeout)
	ErrBridgeClosed      = errors.New("bridge closed")
)

// Transport errors
var (
	ErrTransportWrite = errors.New("transport write failed")
	ErrTransportRead  = errors.New("transport read failed")
	ErrSubscribe      = errors.New("notification subscription failed")
	ErrScan           = errors.New("scan failed")
)

// Operation errors
var (
	ErrCancelled           = errors.New("operation cancelled")
	ErrUnknownBatteryValue = errors.New("unknown battery value")
	ErrInvalidParameter    = errors.New("invalid parameter")
)

// ErrorType categorizes errors for retry decisions
type ErrorType int

const (
	// ErrorTypePermanent errors should not be retried
	ErrorTypePermanent ErrorType = iota
	// ErrorTypeTransient errors may succeed on retry
	ErrorTypeTransient
	// ErrorTypeTimeout errors are bounded waits that expired
	ErrorTypeTimeout
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return "permanent"
	}
}

// TransportError wraps a failure reported by the BLE transport
type TransportError struct {
	Err       error
	Op        string
	Addr      string
	Type      ErrorType
	Retryable bool
}

func (e *TransportError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new transport error
func NewTransportError(op, addr string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Type:      errType,
		Retryable: errType != ErrorTypePermanent,
	}
}

// NewTimeoutError creates a timeout error for a bounded wait
func NewTimeoutError(op, addr string) *TransportError {
	return &TransportError{
		Op:        op,
		Addr:      addr,
		Err:       ErrTimeout,
		Type:      ErrorTypeTimeout,
		Retryable: true,
	}
}

// IsRetryable reports whether err is worth retrying
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	switch {
	case errors.Is(err, ErrTimeout),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrSubscribe),
		errors.Is(err, ErrScan),
		errors.Is(err, ErrChecksumMismatch):
		return true
	default:
		return false
	}
}

// GetErrorType returns the category of err
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Type
	}

	switch {
	case errors.Is(err, ErrTimeout):
		return ErrorTypeTimeout
	case errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrSubscribe),
		errors.Is(err, ErrScan),
		errors.Is(err, ErrChecksumMismatch):
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}

// SendError reports a send whose resends did not all succeed
type SendError struct {
	Err      error
	Attempts int
	Failed   int
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%d of %d writes failed: %v", e.Failed, e.Attempts, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
