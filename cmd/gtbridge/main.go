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

// Command gtbridge drives a GraviTrax Connect bridge from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newApp(ctx).Run(os.Args); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		cancel()
		os.Exit(1) //nolint:gocritic // cancel already called
	}
}

func newApp(ctx context.Context) *cli.App {
	env := &env{ctx: ctx}

	app := cli.NewApp()
	app.Name = "gtbridge"
	app.Usage = "control a GraviTrax Connect bridge over Bluetooth LE"
	app.Version = version
	app.Flags = globalFlags()
	app.Before = env.setup
	app.After = env.teardown
	app.Commands = []cli.Command{
		{
			Name:   "scan",
			Usage:  "list advertising bridges",
			Flags:  []cli.Flag{timeoutFlag("scan duration"), cli.BoolFlag{Name: "all", Usage: "list every BLE device"}},
			Action: env.scan,
		},
		{
			Name:   "info",
			Usage:  "show firmware, hardware and battery state",
			Action: env.info,
		},
		{
			Name:   "services",
			Usage:  "list the GATT services of the bridge",
			Action: env.services,
		},
		{
			Name:      "send",
			Usage:     "send one signal",
			ArgsUsage: "<red|green|blue>",
			Flags:     signalFlags(),
			Action:    env.send,
		},
		{
			Name:      "periodic",
			Usage:     "send a signal several times",
			ArgsUsage: "<red|green|blue>",
			Flags:     periodicFlags(),
			Action:    env.periodic,
		},
		{
			Name:   "listen",
			Usage:  "print received notifications until interrupted",
			Action: env.listen,
		},
		{
			Name:   "lock",
			Usage:  "start bridge mode",
			Action: env.lock,
		},
		{
			Name:   "unlock",
			Usage:  "stop bridge mode",
			Action: env.unlock,
		},
		{
			Name:      "run",
			Usage:     "run a sequence file",
			ArgsUsage: "<file>",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "sequence, s", Usage: "sequence to run, default is the first"},
				cli.BoolFlag{Name: "triggers, t", Usage: "keep running and answer trigger signals"},
			},
			Action: env.run,
		},
		{
			Name:  "timer",
			Usage: "measure the time between start and finish signals",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "start", Value: "blue", Usage: "colour that starts a run"},
				cli.StringFlag{Name: "finish", Value: "green", Usage: "colour of the finish stone"},
				timeoutFlag("drop runs without finish after this long"),
			},
			Action: env.timer,
		},
		{
			Name:   "gpio",
			Usage:  "mirror GPIO buttons and outputs to the bridge",
			Action: env.gpio,
		},
	}
	return app
}
