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

// Package transport provides helpers shared by the BLE transports
package transport

import (
	"context"
	"fmt"
	"time"

	gravitrax "github.com/ZaparooProject/go-gravitrax"
)

// RetryOperation represents a function that can be retried
// Returns: data, shouldRetry, error
// - data: the result if successful
// - shouldRetry: true if the operation should be retried
// - error: with shouldRetry false a permanent error that stops retries,
//   otherwise the cause of this failed attempt
type RetryOperation[T any] func(ctx context.Context) (T, bool, error)

// RetryConfig configures retry behavior
type RetryConfig struct {
	OnRetry     func(attempt int)
	Description string
	Address     string
	MaxRetries  int
	RetryDelay  time.Duration
}

// WithRetry runs operation until it succeeds, fails permanently, runs out
// of retries or ctx ends
func WithRetry[T any](ctx context.Context, config RetryConfig, operation RetryOperation[T]) (T, error) {
	var (
		zero    T
		lastErr error
	)

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s: %w", config.Description, err)
		}

		result, shouldRetry, err := operation(ctx)
		if !shouldRetry {
			if err != nil {
				return zero, err
			}
			return result, nil
		}
		if err != nil {
			lastErr = err
		}
		if attempt >= config.MaxRetries {
			break
		}

		if config.OnRetry != nil {
			config.OnRetry(attempt + 1)
		}
		if err := sleep(ctx, config.RetryDelay); err != nil {
			return zero, fmt.Errorf("%s: %w", config.Description, err)
		}
	}

	cause := fmt.Errorf("%w: gave up after %d attempts", gravitrax.ErrTimeout, config.MaxRetries+1)
	if lastErr != nil {
		cause = fmt.Errorf("%w: gave up after %d attempts: %w", gravitrax.ErrTimeout, config.MaxRetries+1, lastErr)
	}
	return zero, gravitrax.NewTransportError(config.Description, config.Address, cause, gravitrax.ErrorTypeTransient)
}

// Call runs fn in a goroutine so a blocking stack call can be abandoned
// when ctx ends. fn keeps running in the background after abandonment.
func Call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
