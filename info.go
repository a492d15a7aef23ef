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
	"fmt"
)

// BridgeInfo is the cached identity of the last connected bridge
type BridgeInfo struct {
	Address  string
	Name     string
	Firmware int
	Hardware int
	// Battery is the voltage of the last battery read, 0 if unknown
	Battery float64
}

// BatteryLevel buckets a battery voltage
type BatteryLevel int

const (
	BatteryUnknown BatteryLevel = iota
	BatteryEmpty
	BatteryLow
	BatteryMedium
	BatteryHigh
	BatteryFull
)

func (l BatteryLevel) String() string {
	switch l {
	case BatteryEmpty:
		return "empty"
	case BatteryLow:
		return "low"
	case BatteryMedium:
		return "medium"
	case BatteryHigh:
		return "high"
	case BatteryFull:
		return "full"
	default:
		return "unknown"
	}
}

// Description returns a sentence describing the level
func (l BatteryLevel) Description() string {
	switch l {
	case BatteryEmpty:
		return "Battery is empty."
	case BatteryLow:
		return "Battery level is low"
	case BatteryMedium:
		return "Battery level is medium"
	case BatteryHigh:
		return "Battery level is high"
	case BatteryFull:
		return "Battery is full"
	default:
		return "Battery level is unknown"
	}
}

// batteryVoltages maps the raw battery characteristic to volts
var batteryVoltages = map[byte]float64{
	64:  2.0,
	96:  2.5,
	128: 2.9,
	160: 3.0,
	100: 3.1,
}

// BatteryVoltage converts a raw battery byte to volts
func BatteryVoltage(raw byte) (float64, error) {
	v, ok := batteryVoltages[raw]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownBatteryValue, raw)
	}
	return v, nil
}

// BatteryLevelFor buckets a voltage
func BatteryLevelFor(volts float64) BatteryLevel {
	switch {
	case volts <= 0:
		return BatteryUnknown
	case volts >= 3.1:
		return BatteryFull
	case volts >= 3.0:
		return BatteryHigh
	case volts >= 2.9:
		return BatteryMedium
	case volts >= 2.5:
		return BatteryLow
	default:
		return BatteryEmpty
	}
}

// Info returns the cached bridge identity
func (b *Bridge) Info() BridgeInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.info
}

// RequestBridgeInfo reads firmware and hardware versions from the bridge
// and updates the cache.
func (b *Bridge) RequestBridgeInfo(ctx context.Context) (BridgeInfo, error) {
	data, err := b.read(ctx, b.config.WriteUUID)
	if err != nil {
		return b.Info(), err
	}
	if len(data) < 3 {
		return b.Info(), fmt.Errorf("%w: info response has %d bytes", ErrTransportRead, len(data))
	}

	b.mu.Lock()
	b.info.Firmware = int(data[1])
	b.info.Hardware = int(data[2])
	info := b.info
	log := b.log
	b.mu.Unlock()

	log.Debugf("bridge firmware %d hardware %d", info.Firmware, info.Hardware)
	return info, nil
}

// RequestBattery reads the battery voltage and updates the cache
func (b *Bridge) RequestBattery(ctx context.Context) (float64, error) {
	data, err := b.read(ctx, b.config.BatteryUUID)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty battery response", ErrTransportRead)
	}

	volts, err := BatteryVoltage(data[0])
	if err != nil {
		b.logger().Warnf("battery: %v", err)
		return 0, err
	}

	b.mu.Lock()
	b.info.Battery = volts
	b.mu.Unlock()
	return volts, nil
}

// RequestBatteryString reads the battery and describes its level
func (b *Bridge) RequestBatteryString(ctx context.Context) (string, error) {
	volts, err := b.RequestBattery(ctx)
	if err != nil {
		return "", err
	}
	return BatteryLevelFor(volts).Description(), nil
}

// Services lists the GATT services of the connected bridge
func (b *Bridge) Services(ctx context.Context) ([]Service, error) {
	link, err := b.currentLink()
	if err != nil {
		return nil, err
	}
	services, err := link.Services(ctx)
	if err != nil {
		return nil, NewTransportError("services", link.Address(), err, ErrorTypeTransient)
	}
	return services, nil
}

func (b *Bridge) read(ctx context.Context, uuid string) ([]byte, error) {
	link, err := b.currentLink()
	if err != nil {
		return nil, err
	}
	data, err := link.Read(ctx, uuid)
	if err != nil {
		return nil, NewTransportError("read", link.Address(), fmt.Errorf("%w: %w", ErrTransportRead, err), ErrorTypeTransient)
	}
	return data, nil
}
