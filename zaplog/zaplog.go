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

// Package zaplog adapts a zap logger to gravitrax.Logger
package zaplog

import (
	"fmt"

	gravitrax "github.com/ZaparooProject/go-gravitrax"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type logger struct {
	log *zap.Logger
}

// New wraps l. A nil l yields a no-op logger.
func New(l *zap.Logger) gravitrax.Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &logger{log: l}
}

// NewProduction builds a JSON logger at the given level
func NewProduction(level zapcore.Level) (gravitrax.Logger, *zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	l, err := cfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build zap logger: %w", err)
	}
	return New(l), l, nil
}

func (l *logger) Debugf(format string, args ...any) { l.emit(zapcore.DebugLevel, format, args) }
func (l *logger) Infof(format string, args ...any)  { l.emit(zapcore.InfoLevel, format, args) }
func (l *logger) Warnf(format string, args ...any)  { l.emit(zapcore.WarnLevel, format, args) }
func (l *logger) Errorf(format string, args ...any) { l.emit(zapcore.ErrorLevel, format, args) }

// emit skips formatting for disabled levels
func (l *logger) emit(level zapcore.Level, format string, args []any) {
	if !l.log.Core().Enabled(level) {
		return
	}
	if ce := l.log.Check(level, fmt.Sprintf(format, args...)); ce != nil {
		ce.Write()
	}
}

func (l *logger) WithFields(fields map[string]any) gravitrax.Logger {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	return &logger{log: l.log.With(zf...)}
}
