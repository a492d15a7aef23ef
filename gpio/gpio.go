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

// Package gpio connects Raspberry Pi style GPIO pins to a bridge.
//
// Pulling one of the red, green or blue input pins to ground sends a
// signal of that colour. The output pins show the colour of the last sent
// or received signal.
package gpio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	gravitrax "github.com/ZaparooProject/go-gravitrax"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// InputPin is the part of gpio.PinIO used for buttons
type InputPin interface {
	Name() string
	In(pull gpio.Pull, edge gpio.Edge) error
	WaitForEdge(timeout time.Duration) bool
	Read() gpio.Level
}

// OutputPin is the part of gpio.PinIO used for indicator outputs
type OutputPin interface {
	Name() string
	Out(l gpio.Level) error
}

// Sender sends single signals. *gravitrax.Bridge implements it.
type Sender interface {
	SendSignal(ctx context.Context, status gravitrax.Status, color gravitrax.Color, opts ...gravitrax.SendOption) error
}

// Config holds BCM pin numbers and signal parameters
type Config struct {
	Logger gravitrax.Logger
	// InputPins and OutputPins map a colour to a BCM GPIO number
	InputPins  map[gravitrax.Color]int
	OutputPins map[gravitrax.Color]int
	// Debounce ignores edges that follow an accepted edge this closely
	Debounce time.Duration
	// EdgeTimeout bounds each WaitForEdge call so cancellation is noticed
	EdgeTimeout time.Duration
	Status      gravitrax.Status
	Stone       gravitrax.Stone
}

// DefaultConfig returns the wiring used by the GraviTrax Raspberry Pi
// example: inputs on 13, 6 and 5, outputs on 22, 27 and 17
func DefaultConfig() *Config {
	return &Config{
		InputPins: map[gravitrax.Color]int{
			gravitrax.ColorRed:   13,
			gravitrax.ColorGreen: 6,
			gravitrax.ColorBlue:  5,
		},
		OutputPins: map[gravitrax.Color]int{
			gravitrax.ColorRed:   22,
			gravitrax.ColorGreen: 27,
			gravitrax.ColorBlue:  17,
		},
		Debounce:    150 * time.Millisecond,
		EdgeTimeout: 100 * time.Millisecond,
		Status:      gravitrax.StatusAll,
		Stone:       gravitrax.StoneBridge,
	}
}

// Metrics counts pin activity
type Metrics struct {
	Edges      int64
	Bounces    int64
	Sent       int64
	SendErrors int64
	Received   int64
}

// PinBridge forwards button presses to a Sender and mirrors signals on
// output pins
type PinBridge struct {
	sender  Sender
	config  *Config
	log     gravitrax.Logger
	inputs  map[gravitrax.Color]InputPin
	outputs map[gravitrax.Color]OutputPin
	outMu   sync.Mutex

	edges      int64
	bounces    int64
	sent       int64
	sendErrors int64
	received   int64
}

// Open initialises the periph.io host drivers and resolves the configured
// pins by name
func Open(sender Sender, config *Config) (*PinBridge, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	inputs := make(map[gravitrax.Color]InputPin, len(config.InputPins))
	for color, num := range config.InputPins {
		p, err := resolvePin(num)
		if err != nil {
			return nil, err
		}
		inputs[color] = p
	}
	outputs := make(map[gravitrax.Color]OutputPin, len(config.OutputPins))
	for color, num := range config.OutputPins {
		p, err := resolvePin(num)
		if err != nil {
			return nil, err
		}
		outputs[color] = p
	}
	return New(sender, inputs, outputs, config)
}

func resolvePin(num int) (gpio.PinIO, error) {
	name := fmt.Sprintf("GPIO%d", num)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("pin %d (%s) not found in hardware", num, name)
	}
	return p, nil
}

// New creates a PinBridge on already resolved pins. Inputs are configured
// with pull-up and falling edge detection and outputs are driven low.
func New(
	sender Sender, inputs map[gravitrax.Color]InputPin, outputs map[gravitrax.Color]OutputPin, config *Config,
) (*PinBridge, error) {
	if sender == nil {
		return nil, fmt.Errorf("%w: nil sender", gravitrax.ErrInvalidParameter)
	}
	if config == nil {
		config = DefaultConfig()
	}
	log := config.Logger
	if log == nil {
		log = gravitrax.NopLogger()
	}
	if config.EdgeTimeout <= 0 {
		config.EdgeTimeout = DefaultConfig().EdgeTimeout
	}

	for color, p := range inputs {
		if err := p.In(gpio.PullUp, gpio.FallingEdge); err != nil {
			return nil, fmt.Errorf("set %s pin %s to input: %w", color, p.Name(), err)
		}
	}
	for color, p := range outputs {
		if err := p.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("set %s pin %s to output: %w", color, p.Name(), err)
		}
	}

	return &PinBridge{
		sender:  sender,
		config:  config,
		log:     log,
		inputs:  inputs,
		outputs: outputs,
	}, nil
}

// Run watches every input pin until ctx ends
func (p *PinBridge) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for color, pin := range p.inputs {
		wg.Add(1)
		go func(color gravitrax.Color, pin InputPin) {
			defer wg.Done()
			p.watch(ctx, color, pin)
		}(color, pin)
	}
	p.log.Infof("watching %d input pins", len(p.inputs))
	wg.Wait()
	return ctx.Err()
}

func (p *PinBridge) watch(ctx context.Context, color gravitrax.Color, pin InputPin) {
	var last time.Time
	for ctx.Err() == nil {
		if !pin.WaitForEdge(p.config.EdgeTimeout) {
			continue
		}
		atomic.AddInt64(&p.edges, 1)

		now := time.Now()
		if !last.IsZero() && now.Sub(last) < p.config.Debounce {
			atomic.AddInt64(&p.bounces, 1)
			continue
		}
		last = now

		p.Press(ctx, color)
	}
}

// Press sends a signal of color and shows it on the outputs
func (p *PinBridge) Press(ctx context.Context, color gravitrax.Color) {
	if err := p.SetOutput(color); err != nil {
		p.log.Warnf("set output: %v", err)
	}
	err := p.sender.SendSignal(ctx, p.config.Status, color, gravitrax.WithStone(p.config.Stone))
	if err != nil {
		atomic.AddInt64(&p.sendErrors, 1)
		p.log.Errorf("sending %s failed: %v", color, err)
		return
	}
	atomic.AddInt64(&p.sent, 1)
	p.log.Debugf("%s pressed", color)
}

// Observe is a gravitrax.Observer that shows received colours
func (p *PinBridge) Observe(_ *gravitrax.Bridge, ev gravitrax.Event) {
	if !ev.IsSignal() {
		return
	}
	color := ev.Signal.Color
	if color < gravitrax.ColorRed || color > gravitrax.ColorBlue {
		return
	}
	atomic.AddInt64(&p.received, 1)
	if err := p.SetOutput(color); err != nil {
		p.log.Warnf("set output: %v", err)
	}
	p.log.Infof("%s detected from stone %s", color, ev.Signal.Stone)
}

// SetOutput drives the output of color high and every other output low
func (p *PinBridge) SetOutput(color gravitrax.Color) error {
	p.outMu.Lock()
	defer p.outMu.Unlock()

	var firstErr error
	for c, pin := range p.outputs {
		level := gpio.Low
		if c == color {
			level = gpio.High
		}
		if err := pin.Out(level); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("pin %s: %w", pin.Name(), err)
		}
	}
	return firstErr
}

// Metrics returns the pin counters
func (p *PinBridge) Metrics() Metrics {
	return Metrics{
		Edges:      atomic.LoadInt64(&p.edges),
		Bounces:    atomic.LoadInt64(&p.bounces),
		Sent:       atomic.LoadInt64(&p.sent),
		SendErrors: atomic.LoadInt64(&p.sendErrors),
		Received:   atomic.LoadInt64(&p.received),
	}
}
