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
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	gravitrax "github.com/ZaparooProject/go-gravitrax"
	"github.com/ZaparooProject/go-gravitrax/gpio"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// PinConfig holds BCM pin numbers for the red, green and blue channels
type PinConfig struct {
	Red   int `yaml:"red"`
	Green int `yaml:"green"`
	Blue  int `yaml:"blue"`
}

func (p PinConfig) colors() map[gravitrax.Color]int {
	return map[gravitrax.Color]int{
		gravitrax.ColorRed:   p.Red,
		gravitrax.ColorGreen: p.Green,
		gravitrax.ColorBlue:  p.Blue,
	}
}

// GPIOConfig is the gpio section of the config file
type GPIOConfig struct {
	Inputs   PinConfig     `yaml:"inputs"`
	Outputs  PinConfig     `yaml:"outputs"`
	Debounce time.Duration `yaml:"debounce"`
}

// Config holds application configuration
type Config struct {
	Name           string        `yaml:"name"`
	Address        string        `yaml:"address"`
	Transport      string        `yaml:"transport"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	GPIO           GPIOConfig    `yaml:"gpio"`
	HCIDevice      int           `yaml:"hci_device"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Resends        int           `yaml:"resends"`
	Reconnect      bool          `yaml:"reconnect"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	pins := gpio.DefaultConfig()
	return &Config{
		Name:           gravitrax.BridgeName,
		Transport:      defaultTransport,
		LogLevel:       "info",
		LogFormat:      "text",
		ConnectTimeout: gravitrax.DefaultConnectTimeout,
		Resends:        gravitrax.DefaultResends,
		Reconnect:      true,
		GPIO: GPIOConfig{
			Inputs: PinConfig{
				Red:   pins.InputPins[gravitrax.ColorRed],
				Green: pins.InputPins[gravitrax.ColorGreen],
				Blue:  pins.InputPins[gravitrax.ColorBlue],
			},
			Outputs: PinConfig{
				Red:   pins.OutputPins[gravitrax.ColorRed],
				Green: pins.OutputPins[gravitrax.ColorGreen],
				Blue:  pins.OutputPins[gravitrax.ColorBlue],
			},
			Debounce: pins.Debounce,
		},
	}
}

// LoadConfig reads a YAML config file on top of the defaults. An empty
// path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // user supplied config path
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	var errs []error
	if c.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("connect_timeout must be positive"))
	}
	if c.Resends < 1 || c.Resends > 12 {
		errs = append(errs, fmt.Errorf("resends %d outside 1-12", c.Resends))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "zap":
	default:
		errs = append(errs, fmt.Errorf("unknown log_format %q", c.LogFormat))
	}
	if err := checkTransport(c.Transport); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Target returns the address when set and the name otherwise
func (c *Config) Target() (string, bool) {
	if c.Address != "" {
		return c.Address, true
	}
	return c.Name, false
}

// PinBridgeConfig converts the gpio section
func (c *Config) PinBridgeConfig(log gravitrax.Logger) *gpio.Config {
	pins := gpio.DefaultConfig()
	pins.Logger = log
	pins.InputPins = c.GPIO.Inputs.colors()
	pins.OutputPins = c.GPIO.Outputs.colors()
	if c.GPIO.Debounce > 0 {
		pins.Debounce = c.GPIO.Debounce
	}
	return pins
}
