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
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gravitrax "github.com/ZaparooProject/go-gravitrax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		step    Step
		wantErr bool
	}{
		{name: "signal", step: Step{Color: gravitrax.ColorRed, Count: 1}},
		{name: "pause without color", step: Step{Count: 0, Pause: Seconds(time.Second)}},
		{name: "max resends", step: Step{Color: gravitrax.ColorBlue, Count: 2, Resends: MaxResends}},
		{name: "negative count", step: Step{Color: gravitrax.ColorRed, Count: -1}, wantErr: true},
		{name: "too many resends", step: Step{Color: gravitrax.ColorRed, Count: 1, Resends: 13}, wantErr: true},
		{name: "negative resends", step: Step{Color: gravitrax.ColorRed, Count: 1, Resends: -1}, wantErr: true},
		{name: "invalid color", step: Step{Color: 7, Count: 1}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.step.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, gravitrax.ErrInvalidParameter)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestStepSendOptionsDefaults(t *testing.T) {
	t.Parallel()

	cfg := gravitrax.DefaultSendConfig()
	for _, opt := range (Step{Color: gravitrax.ColorGreen, Count: 1}).sendOptions() {
		opt(cfg)
	}
	assert.Equal(t, gravitrax.StoneBridge, cfg.Stone)
	assert.Equal(t, gravitrax.DefaultResends, cfg.Resends)
	assert.Zero(t, cfg.ResendGap)

	cfg = gravitrax.DefaultSendConfig()
	step := Step{
		Color:     gravitrax.ColorGreen,
		Count:     1,
		Stone:     gravitrax.StoneStarter,
		Resends:   3,
		ResendGap: Seconds(20 * time.Millisecond),
	}
	for _, opt := range step.sendOptions() {
		opt(cfg)
	}
	assert.Equal(t, gravitrax.StoneStarter, cfg.Stone)
	assert.Equal(t, 3, cfg.Resends)
	assert.Equal(t, 20*time.Millisecond, cfg.ResendGap)
}

func TestSecondsJSON(t *testing.T) {
	t.Parallel()

	var step Step
	require.NoError(t, json.Unmarshal([]byte(`{"status":0,"color":2,"count":3,"pause":0.25,"resend_gap":1}`), &step))
	assert.Equal(t, 250*time.Millisecond, step.Pause.Duration())
	assert.Equal(t, time.Second, step.ResendGap.Duration())
	assert.Equal(t, gravitrax.ColorGreen, step.Color)
	assert.Equal(t, 3, step.Count)

	out, err := json.Marshal(Seconds(1500 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, "1.5", string(out))

	err = json.Unmarshal([]byte(`{"pause":-1}`), &step)
	require.Error(t, err)
	err = json.Unmarshal([]byte(`{"pause":"soon"}`), &step)
	require.Error(t, err)
}

func TestMatch(t *testing.T) {
	t.Parallel()

	m := Match{Status: gravitrax.StatusAll, Stone: gravitrax.StoneFinish, Color: gravitrax.ColorGreen}
	assert.True(t, m.Matches(gravitrax.Signal{Status: gravitrax.StatusAll, Stone: gravitrax.StoneFinish, Color: gravitrax.ColorGreen}))
	assert.False(t, m.Matches(gravitrax.Signal{Status: gravitrax.StatusAll, Stone: gravitrax.StoneFinish, Color: gravitrax.ColorRed}))
	assert.False(t, m.Matches(gravitrax.Signal{Status: gravitrax.StatusAll, Stone: gravitrax.StoneTrigger, Color: gravitrax.ColorGreen}))
	assert.False(t, m.Matches(gravitrax.Signal{Status: gravitrax.StatusSwitch, Stone: gravitrax.StoneFinish, Color: gravitrax.ColorGreen}))
}

func TestPresets(t *testing.T) {
	t.Parallel()

	t.Run("WriteAndRead", func(t *testing.T) {
		t.Parallel()
		presets := Presets{
			"fast red": {Color: gravitrax.ColorRed, Count: 5, Pause: Seconds(100 * time.Millisecond)},
			"blue":     {Color: gravitrax.ColorBlue, Count: 1, Stone: gravitrax.StoneTrigger, Resends: 4},
		}

		var buf bytes.Buffer
		require.NoError(t, presets.Write(&buf))

		got, err := ReadPresets(&buf)
		require.NoError(t, err)
		assert.Equal(t, presets, got)
		assert.Equal(t, []string{"blue", "fast red"}, got.Names())
	})

	t.Run("RejectsInvalidStep", func(t *testing.T) {
		t.Parallel()
		_, err := ReadPresets(strings.NewReader(`{"bad":{"color":1,"count":-2}}`))
		require.ErrorIs(t, err, gravitrax.ErrInvalidParameter)
	})

	t.Run("RejectsWrongShape", func(t *testing.T) {
		t.Parallel()
		_, err := ReadPresets(strings.NewReader(`[1,2,3]`))
		require.Error(t, err)
	})

	t.Run("NullIsEmpty", func(t *testing.T) {
		t.Parallel()
		got, err := ReadPresets(strings.NewReader(`null`))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("File", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "presets.json")

		missing, err := LoadPresets(path)
		require.NoError(t, err)
		assert.Empty(t, missing)

		presets := Presets{"one": {Color: gravitrax.ColorGreen, Count: 1}}
		require.NoError(t, SavePresets(path, presets))

		got, err := LoadPresets(path)
		require.NoError(t, err)
		assert.Equal(t, presets, got)
	})
}

func TestReadProgram(t *testing.T) {
	t.Parallel()

	const doc = `{
  "sequences": [
    {"name": "warmup", "steps": [
      {"status": 0, "color": 1, "count": 2, "pause": 0.5},
      {"count": 0, "pause": 1},
      {"status": 2, "stone": 1, "color": 3, "count": 1, "resends": 6}
    ]}
  ],
  "triggers": [
    {"when": {"status": 0, "stone": 2, "color": 2}, "actions": [{"color": 1, "count": 1}]}
  ],
  "presets": {"red": {"color": 1, "count": 1}}
}`

	p, err := ReadProgram(strings.NewReader(doc))
	require.NoError(t, err)

	seq, ok := p.Sequence("warmup")
	require.True(t, ok)
	require.Len(t, seq.Steps, 3)
	assert.True(t, seq.Steps[1].IsPause())
	assert.Equal(t, time.Second, seq.Steps[1].Pause.Duration())
	assert.Equal(t, gravitrax.StoneTrigger, seq.Steps[2].Stone)
	assert.Equal(t, 6, seq.Steps[2].Resends)

	_, ok = p.Sequence("missing")
	assert.False(t, ok)

	require.Len(t, p.Triggers, 1)
	assert.Equal(t, Match{Stone: gravitrax.StoneFinish, Color: gravitrax.ColorGreen}, p.Triggers[0].When)
	assert.Contains(t, p.Presets, "red")

	_, err = ReadProgram(strings.NewReader(`{"sequences":[{"name":"x","steps":[{"color":9,"count":1}]}]}`))
	require.ErrorIs(t, err, gravitrax.ErrInvalidParameter)
	assert.Contains(t, err.Error(), `sequence "x" step 1`)
}
