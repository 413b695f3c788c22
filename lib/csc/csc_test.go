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

package csc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/require"

	"github.com/lsst-ts/ts-love-csc/lib/authlist"
	"github.com/lsst-ts/ts-love-csc/lib/config"
	"github.com/lsst-ts/ts-love-csc/lib/sal"
)

// pushRecord is one observed setAuthList push.
type pushRecord struct {
	Component string
	List      sal.AuthList
}

// pushLog records pushes across all fake remotes to make the push order
// observable.
type pushLog struct {
	mu      sync.Mutex
	records []pushRecord
}

func (l *pushLog) add(record pushRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, record)
}

func (l *pushLog) all() []pushRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]pushRecord(nil), l.records...)
}

// fakeRemote is an in-memory sal.Remote.
type fakeRemote struct {
	id  sal.ComponentID
	log *pushLog

	// snapshot, when set, is returned by AuthListSnapshot.
	snapshot *sal.AuthList
	// block makes SetAuthList hang until the context expires.
	block bool
}

func (r *fakeRemote) SetAuthList(ctx context.Context, list sal.AuthList) error {
	if r.block {
		<-ctx.Done()
		return trace.Wrap(ctx.Err())
	}
	r.log.add(pushRecord{Component: r.id.String(), List: list})
	return nil
}

func (r *fakeRemote) AuthListSnapshot(ctx context.Context) (sal.Snapshot, error) {
	if r.snapshot == nil {
		return sal.Snapshot{}, trace.NotFound("component %q has not published an auth list", r.id)
	}
	return sal.Snapshot{Component: r.id, AuthList: *r.snapshot}, nil
}

// fakeSource records the subscribed snapshot handler.
type fakeSource struct {
	mu      sync.Mutex
	handler sal.SnapshotHandler
}

func (s *fakeSource) Subscribe(handler sal.SnapshotHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

func (s *fakeSource) current() sal.SnapshotHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}

// newTestCSC builds a CSC over fake remotes for the given components.
func newTestCSC(t *testing.T, components []string, mutate func(*config.Config), opts ...Option) (*CSC, map[string]*fakeRemote, *pushLog) {
	t.Helper()

	cfg := &config.Config{
		SALProxyURL: "ws://sal-proxy:8046/sal",
		Components:  components,
	}
	if mutate != nil {
		mutate(cfg)
	}

	log := &pushLog{}
	registry := sal.NewRegistry()
	remotes := make(map[string]*fakeRemote, len(components))
	for _, component := range components {
		id, err := sal.ParseComponentID(component)
		require.NoError(t, err)
		remote := &fakeRemote{id: id, log: log}
		registry.Add(id, remote)
		remotes[id.String()] = remote
	}

	c, err := New(cfg, append([]Option{WithRegistry(registry)}, opts...)...)
	require.NoError(t, err)
	return c, remotes, log
}

func TestRequestAuthorizationPushesInOrder(t *testing.T) {
	t.Parallel()
	c, _, log := newTestCSC(t, []string{"MTHexapod:1", "MTHexapod:2"}, nil)

	// MTHexapod:1 already restricts commanding; MTHexapod:2 starts
	// from empty sets.
	c.Store().Commit("MTHexapod:1", authlist.NewSet("user1@node1"), authlist.NewSet())

	require.NoError(t, c.RequestAuthorization(context.Background(), Request{
		CSCsToChange:      "MTHexapod:1,MTHexapod:2",
		AuthorizedUsers:   "+user2@node2",
		NonAuthorizedCSCs: "+MTDome",
	}))

	require.Equal(t, []pushRecord{
		{
			Component: "MTHexapod:1",
			List: sal.AuthList{
				AuthorizedUsers:   "user1@node1,user2@node2",
				NonAuthorizedCSCs: "MTDome",
			},
		},
		{
			Component: "MTHexapod:2",
			List: sal.AuthList{
				AuthorizedUsers:   "user2@node2",
				NonAuthorizedCSCs: "MTDome",
			},
		},
	}, log.all())

	// Pushing never commits; the mirror still holds the pre-request
	// state until the components echo.
	require.Equal(t, []string{"MTHexapod:1"}, c.Store().Components())
	require.True(t, c.Store().Current("MTHexapod:1").AuthorizedUsers.Equal(authlist.NewSet("user1@node1")))
}

func TestRequestAuthorizationUnknownTarget(t *testing.T) {
	t.Parallel()
	c, _, log := newTestCSC(t, []string{"MTRotator"}, nil)

	err := c.RequestAuthorization(context.Background(), Request{
		CSCsToChange:    "MTDome,MTRotator",
		AuthorizedUsers: "+user1@node1",
	})
	require.Error(t, err)
	require.True(t, trace.IsNotFound(err), "expected NotFound, got %v", err)

	// The unknown target does not stop the valid one.
	records := log.all()
	require.Len(t, records, 1)
	require.Equal(t, "MTRotator", records[0].Component)
}

func TestRequestAuthorizationBadExpression(t *testing.T) {
	t.Parallel()
	c, _, log := newTestCSC(t, []string{"MTRotator"}, nil)

	err := c.RequestAuthorization(context.Background(), Request{
		CSCsToChange:    "MTRotator",
		AuthorizedUsers: "user1@node1",
	})
	require.True(t, trace.IsBadParameter(err), "expected BadParameter, got %v", err)
	require.Empty(t, log.all(), "validation failures must not reach the push path")
	require.Empty(t, c.Store().Components())
}

func TestRequestAuthorizationManualMode(t *testing.T) {
	t.Parallel()
	c, _, log := newTestCSC(t, []string{"MTRotator"}, func(cfg *config.Config) {
		auto := false
		cfg.AutoAuthorization = &auto
	})

	err := c.RequestAuthorization(context.Background(), Request{
		CSCsToChange:    "MTRotator",
		AuthorizedUsers: "+user1@node1",
	})
	require.True(t, trace.IsNotImplemented(err), "expected NotImplemented, got %v", err)
	require.Empty(t, log.all())
	require.Empty(t, c.Store().Components())
}

func TestRequestAuthorizationPushTimeout(t *testing.T) {
	t.Parallel()
	c, remotes, log := newTestCSC(t, []string{"MTHexapod:1", "MTRotator"}, func(cfg *config.Config) {
		cfg.TimeoutCommand = config.Duration(10 * time.Millisecond)
	})
	remotes["MTHexapod:1"].block = true

	err := c.RequestAuthorization(context.Background(), Request{
		CSCsToChange:    "MTHexapod:1,MTRotator",
		AuthorizedUsers: "+user1@node1",
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The timed out target does not stop the remaining one.
	records := log.all()
	require.Len(t, records, 1)
	require.Equal(t, "MTRotator", records[0].Component)
}

func TestRequestAuthorizationRequestTimeout(t *testing.T) {
	t.Parallel()
	c, remotes, log := newTestCSC(t, []string{"MTHexapod:1", "MTRotator"}, func(cfg *config.Config) {
		cfg.TimeoutRequestAuthorization = config.Duration(20 * time.Millisecond)
		cfg.TimeoutCommand = config.Duration(time.Second)
	})
	remotes["MTHexapod:1"].block = true

	err := c.RequestAuthorization(context.Background(), Request{
		CSCsToChange:    "MTHexapod:1,MTRotator",
		AuthorizedUsers: "+user1@node1",
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Unlike a single timed out push, an exhausted request budget stops
	// the whole target sequence: MTRotator is never pushed.
	require.Empty(t, log.all())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()
	source := &fakeSource{}
	c, _, _ := newTestCSC(t, []string{"MTRotator"}, nil, WithSnapshotSource(source))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// With an injected registry there is no proxy connection to lose,
	// so cancellation is a clean shutdown, never a connection error.
	require.NoError(t, c.Run(ctx))
}

func TestHandleSnapshot(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestCSC(t, []string{"MTHexapod:1"}, nil)

	c.HandleSnapshot(sal.Snapshot{
		Component: sal.ComponentID{Name: "MTHexapod", Index: 1},
		AuthList: sal.AuthList{
			AuthorizedUsers:   "user1@node1,user2@node2",
			NonAuthorizedCSCs: "",
		},
	})
	require.Equal(t, []string{"MTHexapod:1"}, c.Store().Components())
	require.True(t, c.Store().Current("MTHexapod:1").AuthorizedUsers.Equal(
		authlist.NewSet("user1@node1", "user2@node2")))

	// An all-empty echo prunes the entry.
	c.HandleSnapshot(sal.Snapshot{
		Component: sal.ComponentID{Name: "MTHexapod", Index: 1},
	})
	require.Empty(t, c.Store().Components())
}

func TestDiagnosticsHandler(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestCSC(t, []string{"MTRotator"}, nil)
	c.Store().Commit("MTRotator", authlist.NewSet("user1@node1"), authlist.NewSet())

	server := httptest.NewServer(c.diagHandler())
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/authlist")
	require.NoError(t, err)
	defer resp.Body.Close()
	var lists map[string]componentAuthList
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lists))
	require.Equal(t, map[string]componentAuthList{
		"MTRotator": {
			AuthorizedUsers: []string{"user1@node1"},
		},
	}, lists)
}

func TestEnableSeedsMirrorAndSubscribes(t *testing.T) {
	t.Parallel()
	source := &fakeSource{}
	c, remotes, _ := newTestCSC(t, []string{"MTRotator", "MTDome"}, nil, WithSnapshotSource(source))

	// Only MTRotator has ever published an auth list; MTDome's poll
	// fails and is skipped.
	remotes["MTRotator"].snapshot = &sal.AuthList{AuthorizedUsers: "user1@node1"}

	require.NoError(t, c.Enable(context.Background()))
	require.Equal(t, []string{"MTRotator"}, c.Store().Components())
	require.NotNil(t, source.current(), "Enable must subscribe the snapshot handler")

	// Events arriving after Enable keep the mirror in sync.
	source.current()(sal.Snapshot{
		Component: sal.ComponentID{Name: "MTDome"},
		AuthList:  sal.AuthList{NonAuthorizedCSCs: "MTMount"},
	})
	require.Equal(t, []string{"MTDome", "MTRotator"}, c.Store().Components())

	c.Disable()
	require.Nil(t, source.current())
}
