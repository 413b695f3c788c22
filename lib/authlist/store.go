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
	"context"
	"iter"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/gravitational/trace"
)

// Result is one element of the sequence produced by
// [Store.ProcessRequest]: the desired auth list for a single target
// component.
type Result struct {
	// Component is the target component identity, as given in the
	// request targets.
	Component string
	// Authorization is the desired auth list for the component.
	Authorization ComponentAuthorization
}

// Store mirrors the auth lists of the managed components and computes
// the effect of incremental change requests against that mirror.
//
// A component is present in the store only while at least one of its
// two sets is non-empty; an absent component is equivalent to a pair of
// empty sets. Commit is the only operation that mutates an entry and is
// meant to be driven exclusively by authList events reported by the
// components themselves, never by locally computed desired state.
//
// All operations are safe for concurrent use: the authList event feed
// and the requestAuthorization command path run on separate goroutines.
type Store struct {
	log *slog.Logger

	mu         sync.RWMutex
	entries    map[string]ComponentAuthorization
	autoAccept bool
}

// NewStore returns an empty store. Requests are accepted automatically
// until SetAutoAccept is called with false.
func NewStore(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		log:        log,
		entries:    make(map[string]ComponentAuthorization),
		autoAccept: true,
	}
}

// Current returns a copy of the mirrored auth list for the component,
// or a pair of empty sets if the component has none. It never creates
// an entry.
func (s *Store) Current(component string) ComponentAuthorization {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current(component)
}

func (s *Store) current(component string) ComponentAuthorization {
	if entry, ok := s.entries[component]; ok {
		return entry.Clone()
	}
	return emptyAuthorization()
}

// DesiredState computes the auth list the component would end up with
// after applying the two change expressions (one for authorized users,
// one for non-authorized CSCs, see [ParseDelta]) to its currently
// mirrored state. It does not modify the store: the result is meant to
// be pushed to the component, whose echoed authList event is what
// eventually reaches Commit.
func (s *Store) DesiredState(component, authorizedUsers, nonAuthorizedCSCs string) (ComponentAuthorization, error) {
	usersToAdd, usersToRemove, err := ParseDelta(authorizedUsers)
	if err != nil {
		return ComponentAuthorization{}, trace.Wrap(err)
	}
	cscsToAdd, cscsToRemove, err := ParseDelta(nonAuthorizedCSCs)
	if err != nil {
		return ComponentAuthorization{}, trace.Wrap(err)
	}

	current := s.Current(component)
	return ComponentAuthorization{
		AuthorizedUsers:   current.AuthorizedUsers.Union(usersToAdd).Diff(usersToRemove),
		NonAuthorizedCSCs: current.NonAuthorizedCSCs.Union(cscsToAdd).Diff(cscsToRemove),
	}, nil
}

// Commit overwrites the mirrored auth list of the component with the
// given sets. When both sets are empty the component is removed from
// the store instead, so the store only ever holds components with
// active restrictions.
func (s *Store) Commit(component string, authorizedUsers, nonAuthorizedCSCs Set) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := ComponentAuthorization{
		AuthorizedUsers:   authorizedUsers.Clone(),
		NonAuthorizedCSCs: nonAuthorizedCSCs.Clone(),
	}
	if entry.IsEmpty() {
		delete(s.entries, component)
		return
	}
	s.entries[component] = entry
}

// SetAutoAccept switches between automatic acceptance of auth-list
// change requests and the (unimplemented) operator approval flow.
func (s *Store) SetAutoAccept(auto bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoAccept = auto
}

// Components returns the identities currently holding an entry, sorted.
func (s *Store) Components() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.entries))
}

// ProcessRequest handles an auth-list change request for the given
// target components. It returns a lazy sequence yielding, for each
// target in order (duplicates included), the desired auth list computed
// against the target's currently mirrored state, or the validation
// error for that target. The sequence is single use and commits
// nothing; the caller pushes each result to the component that owns the
// list.
//
// When automatic acceptance is off, ProcessRequest fails immediately
// with a trace.NotImplemented error before any target is examined:
// the operator approval flow does not exist yet and silently dropping
// the request would hide that.
func (s *Store) ProcessRequest(ctx context.Context, targets []string, authorizedUsers, nonAuthorizedCSCs string) (iter.Seq2[Result, error], error) {
	s.mu.RLock()
	autoAccept := s.autoAccept
	s.mu.RUnlock()
	if !autoAccept {
		return nil, trace.NotImplemented("non-automatic authorization mode is not implemented yet")
	}

	return func(yield func(Result, error) bool) {
		for _, target := range targets {
			authorization, err := s.DesiredState(target, authorizedUsers, nonAuthorizedCSCs)
			if err != nil {
				if !yield(Result{Component: target}, trace.Wrap(err)) {
					return
				}
				continue
			}
			s.log.DebugContext(ctx, "Computed desired auth list.",
				"component", target,
				"authorized_users", authorization.AuthorizedUsers.Sorted(),
				"non_authorized_cscs", authorization.NonAuthorizedCSCs.Sorted(),
			)
			if !yield(Result{Component: target, Authorization: authorization}, nil) {
				return
			}
		}
	}, nil
}
