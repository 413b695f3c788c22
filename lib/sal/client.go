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

package sal

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/gravitational/trace"
)

// Frame types exchanged with the SAL proxy.
const (
	frameTypeCmd   = "cmd"
	frameTypeAck   = "ack"
	frameTypeEvent = "event"

	cmdSetAuthList = "setAuthList"
	cmdGetAuthList = "getAuthList"
	evtAuthList    = "authList"
)

// frame is one JSON message on the proxy websocket.
type frame struct {
	Type      string         `json:"type"`
	Name      string         `json:"name"`
	Component string         `json:"component"`
	Seq       uint64         `json:"seq,omitempty"`
	Error     string         `json:"error,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Client is a connection to the SAL proxy. Commands go out as "cmd"
// frames and block until the matching "ack" frame arrives; "event"
// frames carrying authList topics are dispatched to the subscribed
// snapshot handler from a single read loop.
type Client struct {
	log  *slog.Logger
	conn *websocket.Conn

	// writeMu serializes frame writes; gorilla websocket connections
	// support one concurrent writer.
	writeMu sync.Mutex

	mu      sync.Mutex
	seq     uint64
	pending map[uint64]chan frame
	handler SnapshotHandler

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the SAL proxy at the given websocket URL and starts
// the read loop.
func Dial(ctx context.Context, url string, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, trace.ConnectionProblem(err, "failed to connect to SAL proxy at %s", url)
	}
	c := &Client{
		log:     log,
		conn:    conn,
		pending: make(map[uint64]chan frame),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Subscribe installs the handler invoked for every incoming authList
// event. Must be called before events of interest arrive; a nil handler
// drops events.
func (c *Client) Subscribe(handler SnapshotHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Remote returns the command surface for one component, backed by this
// client.
func (c *Client) Remote(id ComponentID) Remote {
	return &clientRemote{client: c, id: id}
}

// Close tears down the connection and fails all in-flight commands.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return trace.Wrap(err)
}

// Done is closed when the connection is gone, either via Close or a
// read failure.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) readLoop() {
	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			select {
			case <-c.done:
				// Local Close, not a transport failure.
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.WarnContext(context.Background(), "SAL proxy connection closed.", "error", err)
				}
			}
			c.Close()
			return
		}
		switch f.Type {
		case frameTypeAck:
			c.deliverAck(f)
		case frameTypeEvent:
			if f.Name == evtAuthList {
				c.dispatchSnapshot(f)
			}
		default:
			c.log.DebugContext(context.Background(), "Dropping unexpected frame.", "type", f.Type, "name", f.Name)
		}
	}
}

func (c *Client) deliverAck(f frame) {
	c.mu.Lock()
	ch, ok := c.pending[f.Seq]
	c.mu.Unlock()
	if !ok {
		c.log.DebugContext(context.Background(), "Dropping ack with no waiter.", "seq", f.Seq)
		return
	}
	select {
	case ch <- f:
	default:
	}
}

func (c *Client) dispatchSnapshot(f frame) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler == nil {
		return
	}
	snapshot, err := snapshotFromFrame(f)
	if err != nil {
		c.log.WarnContext(context.Background(), "Dropping malformed authList event.", "component", f.Component, "error", err)
		return
	}
	handler(snapshot)
}

// call sends a command frame and waits for its ack. A context that is
// already done never puts the frame on the wire.
func (c *Client) call(ctx context.Context, f frame) (frame, error) {
	if err := ctx.Err(); err != nil {
		return frame{}, trace.Wrap(err, "sending %s command for component %q", f.Name, f.Component)
	}
	c.mu.Lock()
	c.seq++
	f.Seq = c.seq
	ch := make(chan frame, 1)
	c.pending[f.Seq] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, f.Seq)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(f)
	c.writeMu.Unlock()
	if err != nil {
		return frame{}, trace.ConnectionProblem(err, "failed to send %s command for component %q", f.Name, f.Component)
	}

	select {
	case ack := <-ch:
		if ack.Error != "" {
			return frame{}, trace.Errorf("%s command for component %q failed: %s", f.Name, f.Component, ack.Error)
		}
		return ack, nil
	case <-ctx.Done():
		return frame{}, trace.Wrap(ctx.Err(), "waiting for %s ack from component %q", f.Name, f.Component)
	case <-c.done:
		return frame{}, trace.ConnectionProblem(nil, "connection to SAL proxy closed")
	}
}

type clientRemote struct {
	client *Client
	id     ComponentID
}

func (r *clientRemote) SetAuthList(ctx context.Context, list AuthList) error {
	data := map[string]any{
		"authorizedUsers":   list.AuthorizedUsers,
		"nonAuthorizedCSCs": list.NonAuthorizedCSCs,
	}
	// Indexed components carry their instance in a "<Name>ID" field of
	// the command payload.
	if r.id.Index > 0 {
		data[r.id.Name+"ID"] = r.id.Index
	}
	_, err := r.client.call(ctx, frame{
		Type:      frameTypeCmd,
		Name:      cmdSetAuthList,
		Component: r.id.Name,
		Data:      data,
	})
	return trace.Wrap(err)
}

func (r *clientRemote) AuthListSnapshot(ctx context.Context) (Snapshot, error) {
	data := map[string]any{}
	if r.id.Index > 0 {
		data[r.id.Name+"ID"] = r.id.Index
	}
	ack, err := r.client.call(ctx, frame{
		Type:      frameTypeCmd,
		Name:      cmdGetAuthList,
		Component: r.id.Name,
		Data:      data,
	})
	if err != nil {
		return Snapshot{}, trace.Wrap(err)
	}
	ack.Component = r.id.Name
	snapshot, err := snapshotFromFrame(ack)
	if err != nil {
		return Snapshot{}, trace.Wrap(err)
	}
	// The remote already knows which instance it polled; do not depend
	// on the proxy echoing the index field back.
	snapshot.Component = r.id
	return snapshot, nil
}

// snapshotFromFrame decodes the authList payload of an event or ack
// frame. The component index, when present, is carried in a "<Name>ID"
// data field the same way setAuthList carries it.
func snapshotFromFrame(f frame) (Snapshot, error) {
	id, err := ParseComponentID(f.Component)
	if err != nil {
		return Snapshot{}, trace.Wrap(err)
	}
	if index, ok := numberField(f.Data, id.Name+"ID"); ok && id.Index == 0 {
		id.Index = index
	}
	users, ok := stringField(f.Data, "authorizedUsers")
	if !ok {
		return Snapshot{}, trace.BadParameter("authList payload for %q has no authorizedUsers field", id)
	}
	cscs, ok := stringField(f.Data, "nonAuthorizedCSCs")
	if !ok {
		return Snapshot{}, trace.BadParameter("authList payload for %q has no nonAuthorizedCSCs field", id)
	}
	return Snapshot{
		Component: id,
		AuthList: AuthList{
			AuthorizedUsers:   users,
			NonAuthorizedCSCs: cscs,
		},
	}, nil
}

func stringField(data map[string]any, key string) (string, bool) {
	value, ok := data[key].(string)
	return value, ok
}

func numberField(data map[string]any, key string) (int, bool) {
	// JSON numbers decode as float64.
	value, ok := data[key].(float64)
	return int(value), ok
}
