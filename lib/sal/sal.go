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

// Package sal is the boundary between the LOVE CSC and the components
// it manages: component identities, the setAuthList/authList wire
// payloads, and the websocket client that carries them to and from the
// SAL proxy.
package sal

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/gravitational/trace"
)

// ComponentID identifies a remotely commandable component: a SAL name
// plus an optional positive index for components with multiple
// instances, e.g. "MTHexapod:1".
type ComponentID struct {
	// Name is the SAL component name, e.g. "MTRotator".
	Name string
	// Index distinguishes instances of indexed components. Zero for
	// non-indexed components.
	Index int
}

// ParseComponentID parses "Name" or "Name:index" into a ComponentID.
func ParseComponentID(s string) (ComponentID, error) {
	name, indexStr, indexed := strings.Cut(s, ":")
	if name == "" {
		return ComponentID{}, trace.BadParameter("empty component name in %q", s)
	}
	if !indexed {
		return ComponentID{Name: name}, nil
	}
	index, err := strconv.Atoi(indexStr)
	if err != nil || index < 0 {
		return ComponentID{}, trace.BadParameter("bad index %q in component %q, expected a non-negative integer", indexStr, s)
	}
	return ComponentID{Name: name, Index: index}, nil
}

// String renders the identity in the "Name:index" form, omitting the
// suffix for non-indexed components.
func (id ComponentID) String() string {
	if id.Index > 0 {
		return fmt.Sprintf("%s:%d", id.Name, id.Index)
	}
	return id.Name
}

// AuthList is the payload of the setAuthList command: both lists comma
// joined, the representation SAL topics carry.
type AuthList struct {
	AuthorizedUsers   string `json:"authorizedUsers"`
	NonAuthorizedCSCs string `json:"nonAuthorizedCSCs"`
}

// Snapshot is a component's own report of its auth list currently in
// effect, carried by the authList event. It is the only input that the
// CSC's mirror is updated from.
type Snapshot struct {
	Component ComponentID
	AuthList  AuthList
}

// SnapshotHandler consumes authList events as they arrive. Handlers are
// invoked from the client's read loop, one event at a time.
type SnapshotHandler func(Snapshot)

// Remote is the command surface of a single component.
type Remote interface {
	// SetAuthList pushes a new auth list to the component and waits for
	// the command acknowledgment.
	SetAuthList(ctx context.Context, list AuthList) error
	// AuthListSnapshot polls the component's current auth list. It
	// fails if the component has never published one.
	AuthListSnapshot(ctx context.Context) (Snapshot, error)
}

// Registry maps component identities to their remotes. The set of
// components is fixed by configuration at startup; identities the CSC
// was not told about are not looked up dynamically.
type Registry struct {
	mu      sync.RWMutex
	remotes map[string]Remote
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{remotes: make(map[string]Remote)}
}

// Add registers the remote for the component, replacing any previous
// registration.
func (r *Registry) Add(id ComponentID, remote Remote) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remotes[id.String()] = remote
}

// Remote returns the remote for the component, or a trace.NotFound
// error if the component was never configured.
func (r *Registry) Remote(id ComponentID) (Remote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	remote, ok := r.remotes[id.String()]
	if !ok {
		return nil, trace.NotFound("no remote configured for component %q", id)
	}
	return remote, nil
}

// Components returns the configured component identities, sorted.
func (r *Registry) Components() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.remotes))
}
