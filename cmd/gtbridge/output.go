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

package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	gravitrax "github.com/ZaparooProject/go-gravitrax"
	"github.com/ZaparooProject/go-gravitrax/timing"
)

// Output handles consistent formatting of messages
type Output struct {
	w       io.Writer
	mu      sync.Mutex
	count   int
	verbose bool
}

// NewOutput creates a new output handler
func NewOutput(w io.Writer, verbose bool) *Output {
	return &Output{w: w, verbose: verbose}
}

func (o *Output) printf(format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, _ = fmt.Fprintf(o.w, format, args...)
}

// Devices prints scan results
func (o *Output) Devices(addresses []string) {
	if len(addresses) == 0 {
		o.Warning("no bridge found")
		return
	}
	for _, a := range addresses {
		o.printf("FOUND: %s\n", a)
	}
}

// BridgeInfo prints the bridge identification and battery state
func (o *Output) BridgeInfo(info gravitrax.BridgeInfo) {
	o.printf("Bridge:   %s (%s)\n", info.Name, info.Address)
	o.printf("Firmware: %d\n", info.Firmware)
	o.printf("Hardware: %d\n", info.Hardware)
	if info.Battery > 0 {
		level := gravitrax.BatteryLevelFor(info.Battery)
		o.printf("Battery:  %.1fV (%s)\n", info.Battery, level.Description())
	}
}

// Services prints the GATT table
func (o *Output) Services(services []gravitrax.Service) {
	for _, s := range services {
		o.printf("Service %s\n", s.UUID)
		for _, c := range s.Characteristics {
			if len(c.Properties) > 0 {
				o.printf("  Characteristic %s [%s]\n", c.UUID, strings.Join(c.Properties, ", "))
			} else {
				o.printf("  Characteristic %s\n", c.UUID)
			}
			if o.verbose {
				for _, d := range c.Descriptors {
					o.printf("    Descriptor %s\n", d)
				}
			}
		}
	}
}

// Notification prints one received notification
func (o *Output) Notification(ev gravitrax.Event) {
	o.mu.Lock()
	o.count++
	n := o.count
	o.mu.Unlock()

	if !ev.IsSignal() {
		o.printf("DATA: %X (%d notifications received)\n", ev.Raw, n)
		return
	}
	sig := ev.Signal
	suffix := ""
	if !ev.ChecksumValid {
		suffix = " [bad checksum]"
	}
	o.printf("SIGNAL: %-5s detected from stone %s with status %s (%d notifications received)%s\n",
		sig.Color, sig.Stone, sig.Status, n, suffix)
	if o.verbose {
		o.printf("  frame: %X\n", gravitrax.Encode(*sig))
	}
}

// RaceResult prints one measured run
func (o *Output) RaceResult(r timing.Result) {
	o.printf("TIME: %s between start and finish\n", r.Elapsed.Round(time.Millisecond))
}

// Disconnected prints the reason for a disconnect
func (o *Output) Disconnected(ev gravitrax.DisconnectEvent) {
	switch {
	case ev.ByTimeout:
		o.Warning("disconnect timed out")
	case ev.UserDisconnected:
		o.OK("disconnected")
	default:
		o.Warning("connection to bridge was interrupted")
	}
}

// Error prints an error message
func (o *Output) Error(format string, args ...any) {
	o.printf("ERROR: "+format+"\n", args...)
}

// Warning prints a warning message
func (o *Output) Warning(format string, args ...any) {
	o.printf("WARNING: "+format+"\n", args...)
}

// Info prints an info message
func (o *Output) Info(format string, args ...any) {
	o.printf("INFO: "+format+"\n", args...)
}

// OK prints a success message
func (o *Output) OK(format string, args ...any) {
	o.printf("OK: "+format+"\n", args...)
}

// Verbose prints only if verbose mode is enabled
func (o *Output) Verbose(format string, args ...any) {
	if o.verbose {
		o.printf(format+"\n", args...)
	}
}
