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
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	gravitrax "github.com/ZaparooProject/go-gravitrax"
	"github.com/ZaparooProject/go-gravitrax/gpio"
	"github.com/ZaparooProject/go-gravitrax/sequence"
	"github.com/ZaparooProject/go-gravitrax/timing"
	"github.com/ZaparooProject/go-gravitrax/zaplog"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultGap = 500 * time.Millisecond

// env carries the state shared by every command
type env struct {
	ctx       context.Context
	cfg       *Config
	out       *Output
	log       gravitrax.Logger
	zapLogger *zap.Logger
	transport gravitrax.Transport
	bridge    *gravitrax.Bridge
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "YAML config file"},
		cli.StringFlag{Name: "name", Usage: "advertised bridge name (default \"" + gravitrax.BridgeName + "\")"},
		cli.StringFlag{Name: "address, a", Usage: "connect to this address instead of scanning by name"},
		cli.StringFlag{Name: "transport", Usage: "bluetooth stack: bluez or hci (linux only)"},
		cli.IntFlag{Name: "hci-device", Usage: "hci index for the hci transport"},
		cli.DurationFlag{Name: "connect-timeout", Usage: "connection timeout"},
		cli.IntFlag{Name: "resends", Usage: "writes per signal"},
		cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		cli.StringFlag{Name: "log-format", Usage: "text or zap"},
		cli.BoolFlag{Name: "verbose, v", Usage: "enable verbose output"},
	}
}

func timeoutFlag(usage string) cli.Flag {
	return cli.DurationFlag{Name: "timeout", Value: gravitrax.DefaultScanTimeout, Usage: usage}
}

func signalFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{Name: "status", Value: "ALL", Usage: "status name or value 0-255"},
		cli.StringFlag{Name: "stone", Value: "bridge", Usage: "stone name or value 0-255"},
		cli.DurationFlag{Name: "resend-gap", Usage: "pause between repeated writes"},
		cli.BoolFlag{Name: "random-id", Usage: "use a random message id"},
	}
}

func periodicFlags() []cli.Flag {
	return append(signalFlags(),
		cli.IntFlag{Name: "count, n", Value: 1, Usage: "number of signals, 0 only waits --gap"},
		cli.DurationFlag{Name: "gap", Value: defaultGap, Usage: "pause between signals"},
	)
}

// setup loads the config, applies flag overrides and builds the logger
func (e *env) setup(c *cli.Context) error {
	cfg, err := LoadConfig(c.GlobalString("config"))
	if err != nil {
		return err
	}
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg = cfg
	e.out = NewOutput(os.Stdout, c.GlobalBool("verbose"))

	log, zl, err := newLogger(cfg)
	if err != nil {
		return err
	}
	e.log, e.zapLogger = log, zl
	return nil
}

func applyFlags(c *cli.Context, cfg *Config) {
	if c.GlobalIsSet("name") {
		cfg.Name = c.GlobalString("name")
	}
	if c.GlobalIsSet("address") {
		cfg.Address = c.GlobalString("address")
	}
	if c.GlobalIsSet("transport") {
		cfg.Transport = c.GlobalString("transport")
	}
	if c.GlobalIsSet("hci-device") {
		cfg.HCIDevice = c.GlobalInt("hci-device")
	}
	if c.GlobalIsSet("connect-timeout") {
		cfg.ConnectTimeout = c.GlobalDuration("connect-timeout")
	}
	if c.GlobalIsSet("resends") {
		cfg.Resends = c.GlobalInt("resends")
	}
	if c.GlobalIsSet("log-level") {
		cfg.LogLevel = c.GlobalString("log-level")
	}
	if c.GlobalIsSet("log-format") {
		cfg.LogFormat = c.GlobalString("log-format")
	}
}

func newLogger(cfg *Config) (gravitrax.Logger, *zap.Logger, error) {
	if strings.EqualFold(cfg.LogFormat, "zap") {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, nil, fmt.Errorf("log level: %w", err)
		}
		return zaplog.NewProduction(level)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}
	return gravitrax.NewLogrusLogger(gravitrax.DefaultLogrus(os.Stderr, level)), nil, nil
}

func (e *env) teardown(*cli.Context) error {
	if e.bridge != nil {
		_ = e.bridge.Close()
	}
	if e.transport != nil {
		_ = e.transport.Close()
	}
	if e.zapLogger != nil {
		_ = e.zapLogger.Sync()
	}
	return nil
}

func (e *env) openTransport() (gravitrax.Transport, error) {
	if e.transport != nil {
		return e.transport, nil
	}
	t, err := newTransport(e.cfg, e.log)
	if err != nil {
		return nil, err
	}
	e.transport = t
	return t, nil
}

// connect opens the transport and connects to the configured bridge
func (e *env) connect() (*gravitrax.Bridge, error) {
	t, err := e.openTransport()
	if err != nil {
		return nil, err
	}
	b, err := gravitrax.New(t, gravitrax.WithLogger(e.log))
	if err != nil {
		return nil, err
	}
	e.bridge = b

	target, byAddress := e.cfg.Target()
	opts := []gravitrax.ConnectOption{
		gravitrax.WithConnectTimeout(e.cfg.ConnectTimeout),
		gravitrax.WithReconnect(e.cfg.Reconnect),
		gravitrax.WithDisconnectCallback(func(_ *gravitrax.Bridge, ev gravitrax.DisconnectEvent) {
			e.out.Disconnected(ev)
		}),
	}
	if byAddress {
		opts = append(opts, gravitrax.ByAddress())
	}

	e.out.Info("searching for bridge %s", target)
	if err := b.Connect(e.ctx, target, opts...); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", target, err)
	}
	e.out.OK("connected to %s (%s)", b.Name(), b.Address())
	return b, nil
}

// disconnect ends the session unless the link is already gone
func (e *env) disconnect(b *gravitrax.Bridge) error {
	if !b.IsConnected() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), gravitrax.DefaultDisconnectTimeout)
	defer cancel()
	err := b.Disconnect(ctx, gravitrax.WithCallbackOnTimeout())
	if errors.Is(err, gravitrax.ErrNotConnected) {
		return nil
	}
	return err
}

// wait blocks until the command is interrupted
func (e *env) wait() error {
	<-e.ctx.Done()
	return nil
}

func (e *env) scan(c *cli.Context) error {
	t, err := e.openTransport()
	if err != nil {
		return err
	}
	name := e.cfg.Name
	if c.Bool("all") {
		name = ""
	}
	e.out.Info("scanning for %s", c.Duration("timeout"))
	found, err := gravitrax.Scan(e.ctx, t, name, gravitrax.WithScanTimeout(c.Duration("timeout")))
	if err != nil && !errors.Is(err, gravitrax.ErrCancelled) {
		return err
	}
	e.out.Devices(found)
	return nil
}

func (e *env) info(*cli.Context) error {
	b, err := e.connect()
	if err != nil {
		return err
	}
	if _, err := b.RequestBridgeInfo(e.ctx); err != nil {
		e.out.Warning("bridge info: %v", err)
	}
	if _, err := b.RequestBattery(e.ctx); err != nil {
		e.out.Warning("battery: %v", err)
	}
	e.out.BridgeInfo(b.Info())
	return e.disconnect(b)
}

func (e *env) services(*cli.Context) error {
	b, err := e.connect()
	if err != nil {
		return err
	}
	services, err := b.Services(e.ctx)
	if err != nil {
		return err
	}
	e.out.Services(services)
	return e.disconnect(b)
}

// sendOptions converts the signal flags
func (e *env) sendOptions(c *cli.Context) ([]gravitrax.SendOption, gravitrax.Status, error) {
	status, err := gravitrax.ParseStatus(c.String("status"))
	if err != nil {
		return nil, 0, err
	}
	stone, err := gravitrax.ParseStone(c.String("stone"))
	if err != nil {
		return nil, 0, err
	}
	return []gravitrax.SendOption{
		gravitrax.WithStone(stone),
		gravitrax.WithResends(e.cfg.Resends),
		gravitrax.WithResendGap(c.Duration("resend-gap")),
		gravitrax.WithRandomID(c.Bool("random-id")),
	}, status, nil
}

func colorArg(c *cli.Context) (gravitrax.Color, error) {
	if c.NArg() != 1 {
		return 0, fmt.Errorf("%w: expected exactly one colour argument", gravitrax.ErrInvalidParameter)
	}
	return gravitrax.ParseColor(c.Args().First())
}

func (e *env) send(c *cli.Context) error {
	color, err := colorArg(c)
	if err != nil {
		return err
	}
	opts, status, err := e.sendOptions(c)
	if err != nil {
		return err
	}
	b, err := e.connect()
	if err != nil {
		return err
	}
	if err := b.SendSignal(e.ctx, status, color, opts...); err != nil {
		return err
	}
	e.out.OK("sent %s with status %s", color, status)
	return e.disconnect(b)
}

func (e *env) periodic(c *cli.Context) error {
	color, err := colorArg(c)
	if err != nil {
		return err
	}
	opts, status, err := e.sendOptions(c)
	if err != nil {
		return err
	}
	b, err := e.connect()
	if err != nil {
		return err
	}
	count := c.Int("count")
	e.out.Info("sending %d x %s", count, color)
	if err := b.SendPeriodic(e.ctx, status, color, count, c.Duration("gap"), opts...); err != nil {
		return err
	}
	e.out.OK("sent %d signals", count)
	return e.disconnect(b)
}

func (e *env) listen(*cli.Context) error {
	b, err := e.connect()
	if err != nil {
		return err
	}
	err = b.EnableNotifications(e.ctx, func(_ *gravitrax.Bridge, ev gravitrax.Event) {
		e.out.Notification(ev)
	})
	if err != nil {
		return err
	}
	e.out.Info("listening, press Ctrl+C to stop")
	_ = e.wait()
	return e.disconnect(b)
}

func (e *env) lock(*cli.Context) error {
	b, err := e.connect()
	if err != nil {
		return err
	}
	if err := b.StartBridgeMode(e.ctx, gravitrax.WithResends(e.cfg.Resends)); err != nil {
		return err
	}
	e.out.OK("bridge mode started")
	return e.disconnect(b)
}

func (e *env) unlock(*cli.Context) error {
	b, err := e.connect()
	if err != nil {
		return err
	}
	if err := b.StopBridgeMode(e.ctx, gravitrax.WithResends(e.cfg.Resends)); err != nil {
		return err
	}
	e.out.OK("bridge mode stopped")
	return e.disconnect(b)
}

func (e *env) run(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("%w: expected a sequence file", gravitrax.ErrInvalidParameter)
	}
	program, err := sequence.LoadProgram(c.Args().First())
	if err != nil {
		return err
	}

	var seq *sequence.Sequence
	if name := c.String("sequence"); name != "" {
		s, ok := program.Sequence(name)
		if !ok {
			return fmt.Errorf("%w: no sequence named %q", gravitrax.ErrInvalidParameter, name)
		}
		seq = &s
	} else if len(program.Sequences) > 0 {
		seq = &program.Sequences[0]
	}
	triggers := c.Bool("triggers")
	if seq == nil && !triggers {
		return fmt.Errorf("%w: file has no sequences", gravitrax.ErrInvalidParameter)
	}

	b, err := e.connect()
	if err != nil {
		return err
	}
	runner := sequence.NewRunner(b, sequence.WithRunnerLogger(e.log))
	defer runner.Close()

	if triggers {
		for _, t := range program.Triggers {
			if err := runner.AddTrigger(t); err != nil {
				return err
			}
			e.out.Info("trigger: %s", t.When)
		}
		if err := b.EnableNotifications(e.ctx, runner.Observe); err != nil {
			return err
		}
	}

	if seq != nil {
		if err := runner.Run(e.ctx, *seq); err != nil {
			return err
		}
		e.out.OK("sequence %q finished", seq.Name)
	}

	if triggers {
		e.out.Info("waiting for trigger signals, press Ctrl+C to stop")
		if err := runner.Serve(e.ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return e.disconnect(b)
}

func (e *env) timer(c *cli.Context) error {
	start, err := gravitrax.ParseColor(c.String("start"))
	if err != nil {
		return err
	}
	finish, err := gravitrax.ParseColor(c.String("finish"))
	if err != nil {
		return err
	}

	config := timing.DefaultConfig()
	config.Start = timing.StartOn(start)
	config.Finish = timing.FinishOn(finish)
	config.Timeout = c.Duration("timeout")
	config.Callbacks.OnFinish = e.out.RaceResult
	config.Callbacks.OnTimeout = func(started time.Time) {
		e.out.Warning("run started at %s never finished", started.Format("15:04:05.000"))
	}
	rt := timing.New(config)
	defer rt.Reset()

	b, err := e.connect()
	if err != nil {
		return err
	}
	err = b.EnableNotifications(e.ctx, func(br *gravitrax.Bridge, ev gravitrax.Event) {
		e.out.Verbose("notification: %X", ev.Raw)
		rt.Observe(br, ev)
	})
	if err != nil {
		return err
	}
	e.out.Info("timer ready: start on %s, finish on %s", start, finish)
	_ = e.wait()

	m := rt.Metrics()
	if m.Finishes > 0 {
		e.out.OK("%d runs, best %s", m.Finishes, m.Best.Round(time.Millisecond))
	}
	return e.disconnect(b)
}

func (e *env) gpio(*cli.Context) error {
	b, err := e.connect()
	if err != nil {
		return err
	}
	pins, err := gpio.Open(b, e.cfg.PinBridgeConfig(e.log))
	if err != nil {
		return err
	}
	if err := b.EnableNotifications(e.ctx, pins.Observe); err != nil {
		return err
	}
	e.out.Info("GPIO bridge running, press Ctrl+C to stop")
	if err := pins.Run(e.ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return e.disconnect(b)
}
