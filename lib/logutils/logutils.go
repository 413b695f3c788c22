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

// Package logutils configures the process-wide slog logger for the
// LOVE CSC daemon.
package logutils

import (
	"log/slog"
	"os"

	"github.com/gravitational/trace"
)

// Config is the logging section of the configuration file.
type Config struct {
	// Severity is the minimum level to emit: DEBUG, INFO, WARN or
	// ERROR. Defaults to INFO.
	Severity string `yaml:"severity"`
	// Format selects the handler: "text" (default) or "json".
	Format string `yaml:"format"`
}

// Init sets up a plain INFO text logger for the window between process
// start and configuration parsing.
func Init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

// Initialize builds a logger from the configuration, installs it as the
// slog default and returns it.
func Initialize(cfg Config) (*slog.Logger, error) {
	level := slog.LevelInfo
	if cfg.Severity != "" {
		if err := level.UnmarshalText([]byte(cfg.Severity)); err != nil {
			return nil, trace.BadParameter("unsupported log severity %q", cfg.Severity)
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.Format {
	case "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return nil, trace.BadParameter("unsupported log format %q, expected \"text\" or \"json\"", cfg.Format)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
