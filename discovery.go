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
	"sync"
)

// Scan discovers advertising devices and returns their addresses in the
// order first seen, without duplicates. An empty name matches every
// device; otherwise the advertised name must match exactly.
//
// Running out the scan timeout is not an error.
func Scan(ctx context.Context, transport Transport, name string, opts ...ScanOption) ([]string, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}

	cfg := DefaultScanConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("%w: scan timeout must be positive", ErrInvalidParameter)
	}

	scanCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var (
		mu        sync.Mutex
		addresses []string
		seen      = make(map[string]struct{})
	)
	err := transport.Scan(scanCtx, func(r ScanResult) bool {
		if name != "" && r.Name != name {
			return true
		}

		mu.Lock()
		defer mu.Unlock()
		if _, ok := seen[r.Address]; !ok {
			seen[r.Address] = struct{}{}
			addresses = append(addresses, r.Address)
		}
		return !cfg.StopOnHit
	})

	mu.Lock()
	defer mu.Unlock()
	found := append([]string(nil), addresses...)

	if ctx.Err() != nil {
		return found, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return found, NewTransportError("scan", "", fmt.Errorf("%w: %w", ErrScan, err), ErrorTypeTransient)
	}
	return found, nil
}

// ScanBridges scans for devices advertising BridgeName
func ScanBridges(ctx context.Context, transport Transport, opts ...ScanOption) ([]string, error) {
	return Scan(ctx, transport, BridgeName, opts...)
}
