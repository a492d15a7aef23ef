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

package sequence

import (
	"fmt"
	"io"
	"os"
	"sort"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Presets maps a name to saved step parameters
type Presets map[string]Step

// Names returns the preset names in sorted order
func (p Presets) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReadPresets decodes presets from r
func ReadPresets(r io.Reader) (Presets, error) {
	var p Presets
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode presets: %w", err)
	}
	if p == nil {
		p = Presets{}
	}
	for name, step := range p {
		if err := step.Validate(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", name, err)
		}
	}
	return p, nil
}

// Write encodes the presets to w
func (p Presets) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("encode presets: %w", err)
	}
	return nil
}

// LoadPresets reads a preset file. A missing file yields empty presets.
func LoadPresets(path string) (Presets, error) {
	f, err := os.Open(path) //nolint:gosec // user supplied preset path
	if os.IsNotExist(err) {
		return Presets{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open presets: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadPresets(f)
}

// SavePresets writes the presets to path, replacing the file
func SavePresets(path string, p Presets) error {
	f, err := os.Create(path) //nolint:gosec // user supplied preset path
	if err != nil {
		return fmt.Errorf("create presets: %w", err)
	}
	if err := p.Write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close presets: %w", err)
	}
	return nil
}

// Program is the content of a sequence file
type Program struct {
	Presets   Presets    `json:"presets,omitempty"`
	Sequences []Sequence `json:"sequences"`
	Triggers  []Trigger  `json:"triggers,omitempty"`
}

// Sequence returns the sequence with the given name
func (p *Program) Sequence(name string) (Sequence, bool) {
	for _, s := range p.Sequences {
		if s.Name == name {
			return s, true
		}
	}
	return Sequence{}, false
}

// Validate checks every sequence, trigger and preset
func (p *Program) Validate() error {
	for _, s := range p.Sequences {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	for _, t := range p.Triggers {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	for name, step := range p.Presets {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("preset %q: %w", name, err)
		}
	}
	return nil
}

// ReadProgram decodes and validates a program from r
func ReadProgram(r io.Reader) (*Program, error) {
	var p Program
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadProgram reads a program file
func LoadProgram(path string) (*Program, error) {
	f, err := os.Open(path) //nolint:gosec // user supplied program path
	if err != nil {
		return nil, fmt.Errorf("open program: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadProgram(f)
}
