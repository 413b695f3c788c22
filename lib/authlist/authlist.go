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

// Package authlist implements the authorization model of the LOVE CSC:
// a mirror of every managed component's auth list (authorized users and
// non-authorized CSCs), the grammar of incremental auth-list change
// requests, and the pure computation that turns a request into the
// desired auth list for a component.
//
// The model deliberately keeps two sources of truth apart. Desired
// state is computed locally and pushed to the component that owns the
// list; the mirror is only ever updated from authList events reported
// back by the components themselves. See [Store].
package authlist

import (
	"maps"
	"slices"
	"strings"
)

// Set is an unordered collection of identity strings (user identities
// or CSC names). The zero value is not usable; use NewSet.
type Set map[string]struct{}

// NewSet returns a Set holding the given items.
func NewSet(items ...string) Set {
	s := make(Set, len(items))
	for _, item := range items {
		s[item] = struct{}{}
	}
	return s
}

// Contains reports whether item is in the set.
func (s Set) Contains(item string) bool {
	_, ok := s[item]
	return ok
}

// Clone returns an independent copy of the set.
func (s Set) Clone() Set {
	return maps.Clone(s)
}

// Union returns a new set with the elements of both s and other.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	maps.Copy(out, s)
	maps.Copy(out, other)
	return out
}

// Diff returns a new set with the elements of s not present in other.
func (s Set) Diff(other Set) Set {
	out := make(Set, len(s))
	for item := range s {
		if !other.Contains(item) {
			out[item] = struct{}{}
		}
	}
	return out
}

// Equal reports whether s and other hold the same elements.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for item := range s {
		if !other.Contains(item) {
			return false
		}
	}
	return true
}

// Sorted returns the elements in lexicographic order.
func (s Set) Sorted() []string {
	return slices.Sorted(maps.Keys(s))
}

// Join renders the elements in lexicographic order separated by sep,
// the representation the setAuthList command payload carries.
func (s Set) Join(sep string) string {
	return strings.Join(s.Sorted(), sep)
}

// SplitList parses a comma separated auth-list field from the wire into
// a Set, dropping empty items. Components report an empty list as an
// empty string, which splits into a single empty item.
func SplitList(list string) Set {
	s := NewSet(strings.Split(list, ",")...)
	delete(s, "")
	return s
}

// ComponentAuthorization is the auth list of a single component: the
// users allowed to command it and the CSCs barred from commanding it.
type ComponentAuthorization struct {
	// AuthorizedUsers are identities permitted to command the component.
	AuthorizedUsers Set
	// NonAuthorizedCSCs are peer CSCs disallowed from commanding the
	// component.
	NonAuthorizedCSCs Set
}

func emptyAuthorization() ComponentAuthorization {
	return ComponentAuthorization{
		AuthorizedUsers:   NewSet(),
		NonAuthorizedCSCs: NewSet(),
	}
}

// Clone returns a deep copy.
func (a ComponentAuthorization) Clone() ComponentAuthorization {
	return ComponentAuthorization{
		AuthorizedUsers:   a.AuthorizedUsers.Clone(),
		NonAuthorizedCSCs: a.NonAuthorizedCSCs.Clone(),
	}
}

// IsEmpty reports whether both sets are empty, the condition under
// which the component is removed from the store.
func (a ComponentAuthorization) IsEmpty() bool {
	return len(a.AuthorizedUsers) == 0 && len(a.NonAuthorizedCSCs) == 0
}

// Equal reports whether both auth lists hold the same elements.
func (a ComponentAuthorization) Equal(other ComponentAuthorization) bool {
	return a.AuthorizedUsers.Equal(other.AuthorizedUsers) &&
		a.NonAuthorizedCSCs.Equal(other.NonAuthorizedCSCs)
}
