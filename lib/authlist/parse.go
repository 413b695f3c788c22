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

package authlist

import (
	"slices"
	"strings"

	"github.com/gravitational/trace"
)

// ParseDelta parses an incremental auth-list change expression into the
// set of items to add and the set of items to remove.
//
// The expression is a comma separated list of entries, each prefixed
// with "+" (add) or "-" (remove), e.g. "+user1@node,-user2@node". An
// empty expression is a no-op and yields two empty sets. Repeated
// identical entries collapse.
//
// ParseDelta returns a trace.BadParameter error naming every offending
// entry when any entry lacks a prefix, or when the same item is both
// added and removed in one expression.
func ParseDelta(expr string) (toAdd, toRemove Set, err error) {
	toAdd, toRemove = NewSet(), NewSet()
	if len(expr) == 0 {
		return toAdd, toRemove, nil
	}

	var bad []string
	for _, entry := range strings.Split(expr, ",") {
		switch {
		case strings.HasPrefix(entry, "+"):
			toAdd[entry[1:]] = struct{}{}
		case strings.HasPrefix(entry, "-"):
			toRemove[entry[1:]] = struct{}{}
		default:
			bad = append(bad, entry)
		}
	}
	for item := range toAdd {
		if toRemove.Contains(item) {
			bad = append(bad, "+"+item, "-"+item)
		}
	}
	if len(bad) > 0 {
		slices.Sort(bad)
		bad = slices.Compact(bad)
		return nil, nil, trace.BadParameter(
			"bad auth-list change request %q: every entry must be prefixed with + or - to indicate whether it is added to or removed from the auth list, and no item may be both added and removed; invalid entries: %s",
			expr, strings.Join(bad, ", "))
	}
	return toAdd, toRemove, nil
}
