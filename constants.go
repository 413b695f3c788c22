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

// Package lovecsc holds constants shared across the LOVE CSC binaries
// and libraries.
package lovecsc

import "time"

// Version is the semantic version of the LOVE CSC release.
const Version = "1.2.0"

const (
	// ComponentName is the SAL name of this CSC. The LOVE CSC manages
	// the auth lists of every other component but never its own.
	ComponentName = "LOVE"

	// ComponentCSC identifies the orchestration service in log output.
	ComponentCSC = "love:csc"

	// ComponentSAL identifies the SAL proxy client in log output.
	ComponentSAL = "love:sal"

	// DefaultRequestTimeout bounds the processing of a whole
	// requestAuthorization command.
	DefaultRequestTimeout = 60 * time.Second

	// DefaultCommandTimeout bounds a single setAuthList push or
	// authList poll against one remote component.
	DefaultCommandTimeout = 5 * time.Second
)
