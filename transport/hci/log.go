//go:build linux

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

package hci

import (
	"fmt"

	gravitrax "github.com/ZaparooProject/go-gravitrax"
	"github.com/rigado/ble"
)

// stackLogger routes rigado/ble logging into a gravitrax.Logger
type stackLogger struct {
	log gravitrax.Logger
}

func newStackLogger(l gravitrax.Logger) ble.Logger {
	return &stackLogger{log: l.WithFields(map[string]any{"stack": "hci"})}
}

func (s *stackLogger) Info(args ...any)  { s.log.Infof("%s", fmt.Sprint(args...)) }
func (s *stackLogger) Debug(args ...any) { s.log.Debugf("%s", fmt.Sprint(args...)) }
func (s *stackLogger) Error(args ...any) { s.log.Errorf("%s", fmt.Sprint(args...)) }
func (s *stackLogger) Warn(args ...any)  { s.log.Warnf("%s", fmt.Sprint(args...)) }

func (s *stackLogger) Infof(format string, args ...any)  { s.log.Infof(format, args...) }
func (s *stackLogger) Debugf(format string, args ...any) { s.log.Debugf(format, args...) }
func (s *stackLogger) Errorf(format string, args ...any) { s.log.Errorf(format, args...) }
func (s *stackLogger) Warnf(format string, args ...any)  { s.log.Warnf(format, args...) }

func (s *stackLogger) ChildLogger(tags map[string]any) ble.Logger {
	return &stackLogger{log: s.log.WithFields(tags)}
}
