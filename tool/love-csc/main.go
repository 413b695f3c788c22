/*
 * ts-love-csc
 * Copyright (C) 2026  LSST Project, https://www.lsst.org
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/gravitational/trace"

	lovecsc "github.com/lsst-ts/ts-love-csc"
	"github.com/lsst-ts/ts-love-csc/lib/config"
	"github.com/lsst-ts/ts-love-csc/lib/csc"
	"github.com/lsst-ts/ts-love-csc/lib/logutils"
)

const appName = "love-csc"

func main() {
	logutils.Init()

	app := kingpin.New(appName, "LOVE CSC: manages the auth lists of observatory components.")
	app.Command("version", "Print the version and exit.")

	startCmd := app.Command("start", "Start the LOVE CSC daemon.")
	configPath := startCmd.Flag("config", "Path to the configuration file.").
		Short('c').
		Default("/etc/love-csc.yaml").
		String()
	debug := startCmd.Flag("debug", "Enable verbose logging to stderr.").
		Short('d').
		Bool()

	selectedCmd, err := app.Parse(os.Args[1:])
	if err != nil {
		bail(err)
	}

	switch selectedCmd {
	case "version":
		fmt.Printf("%s v%s\n", appName, lovecsc.Version)
	case "start":
		if err := run(*configPath, *debug); err != nil {
			bail(err)
		}
		slog.InfoContext(context.Background(), "Successfully shut down.")
	}
}

func run(configPath string, debug bool) error {
	cfg, err := config.ReadFromFile(configPath)
	if err != nil {
		return trace.Wrap(err)
	}
	if debug {
		cfg.Log.Severity = slog.LevelDebug.String()
	}
	if _, err := logutils.Initialize(cfg.Log); err != nil {
		return trace.Wrap(err)
	}

	service, err := csc.New(cfg)
	if err != nil {
		return trace.Wrap(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return trace.Wrap(service.Run(ctx))
}

func bail(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", trace.UserMessage(err))
	os.Exit(1)
}
