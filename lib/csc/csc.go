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

// Package csc wires the authorization model to the SAL proxy: it
// consumes requestAuthorization commands, pushes the computed auth
// lists to the target components, and keeps the local mirror in sync
// with the authList events the components publish.
package csc

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	lovecsc "github.com/lsst-ts/ts-love-csc"
	"github.com/lsst-ts/ts-love-csc/lib/authlist"
	"github.com/lsst-ts/ts-love-csc/lib/config"
	"github.com/lsst-ts/ts-love-csc/lib/sal"
)

// Request is the payload of the requestAuthorization command:
// comma-joined target component identities plus the two change
// expressions, mirroring the SAL topic fields.
type Request struct {
	CSCsToChange      string
	AuthorizedUsers   string
	NonAuthorizedCSCs string
}

// SnapshotSource delivers authList events to a subscribed handler.
// *sal.Client implements it; tests substitute their own.
type SnapshotSource interface {
	Subscribe(sal.SnapshotHandler)
}

// CSC is the LOVE CSC service.
type CSC struct {
	cfg      *config.Config
	log      *slog.Logger
	clock    clockwork.Clock
	store    *authlist.Store
	metrics  *metrics
	registry *sal.Registry
	source   SnapshotSource
}

// Option customizes a CSC, mostly for tests.
type Option func(*CSC)

// WithClock substitutes the clock.
func WithClock(clock clockwork.Clock) Option {
	return func(c *CSC) { c.clock = clock }
}

// WithLogger substitutes the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *CSC) { c.log = log }
}

// WithRegistry injects a pre-built remote registry. Run then skips
// dialing the SAL proxy.
func WithRegistry(registry *sal.Registry) Option {
	return func(c *CSC) { c.registry = registry }
}

// WithSnapshotSource injects the authList event source used alongside
// an injected registry.
func WithSnapshotSource(source SnapshotSource) Option {
	return func(c *CSC) { c.source = source }
}

// New validates the configuration and builds the service.
func New(cfg *config.Config, opts ...Option) (*CSC, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}

	c := &CSC{
		cfg:   cfg,
		log:   slog.Default().With("component", lovecsc.ComponentCSC),
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.store = authlist.NewStore(c.log)
	c.store.SetAutoAccept(*cfg.AutoAuthorization)
	c.metrics = newMetrics()
	return c, nil
}

// Store exposes the auth-list mirror.
func (c *CSC) Store() *authlist.Store {
	return c.store
}

// Run connects to the SAL proxy, enables auth-list mirroring, serves
// the diagnostics endpoint and blocks until the context is cancelled or
// the proxy connection is lost.
func (c *CSC) Run(ctx context.Context) error {
	// done stays nil when a registry was injected: there is no proxy
	// connection to lose, so only context cancellation stops Run.
	var done <-chan struct{}
	if c.registry == nil {
		client, err := sal.Dial(ctx, c.cfg.SALProxyURL, slog.Default().With("component", lovecsc.ComponentSAL))
		if err != nil {
			return trace.Wrap(err)
		}
		defer client.Close()

		registry := sal.NewRegistry()
		for _, id := range c.cfg.ComponentIDs() {
			registry.Add(id, client.Remote(id))
		}
		c.registry = registry
		c.source = client
		done = client.Done()
	}

	if err := c.Enable(ctx); err != nil {
		return trace.Wrap(err)
	}
	defer c.Disable()

	stopDiag, err := c.serveDiagnostics(ctx)
	if err != nil {
		return trace.Wrap(err)
	}
	defer stopDiag()

	c.log.InfoContext(ctx, "LOVE CSC running.",
		"components", len(c.cfg.Components),
		"auto_authorization", *c.cfg.AutoAuthorization,
	)

	select {
	case <-ctx.Done():
		return nil
	case <-done:
		return trace.ConnectionProblem(nil, "lost connection to SAL proxy")
	}
}

// Enable seeds the mirror by polling every configured component for its
// current auth list and then subscribes to authList events. Components
// that never published an auth list are skipped with a debug log.
func (c *CSC) Enable(ctx context.Context) error {
	for _, id := range c.cfg.ComponentIDs() {
		remote, err := c.registry.Remote(id)
		if err != nil {
			return trace.Wrap(err)
		}
		pollCtx, cancel := context.WithTimeout(ctx, c.cfg.TimeoutCommand.Duration())
		snapshot, err := remote.AuthListSnapshot(pollCtx)
		cancel()
		if err != nil {
			c.log.DebugContext(ctx, "No authList information for component.", "component", id, "error", err)
			continue
		}
		c.HandleSnapshot(snapshot)
	}
	if c.source != nil {
		c.source.Subscribe(c.HandleSnapshot)
	}
	return nil
}

// Disable stops auth-list mirroring.
func (c *CSC) Disable() {
	if c.source != nil {
		c.source.Subscribe(nil)
	}
}

// HandleSnapshot commits a component's self-reported auth list to the
// mirror. This is the only path that mutates the mirror: locally
// computed desired state is never committed directly, only the echo the
// component publishes after applying a push.
func (c *CSC) HandleSnapshot(snapshot sal.Snapshot) {
	component := snapshot.Component.String()
	users := authlist.SplitList(snapshot.AuthList.AuthorizedUsers)
	cscs := authlist.SplitList(snapshot.AuthList.NonAuthorizedCSCs)

	c.log.DebugContext(context.Background(), "Committing authList snapshot.",
		"component", component,
		"authorized_users", users.Sorted(),
		"non_authorized_cscs", cscs.Sorted(),
	)
	c.store.Commit(component, users, cscs)
	c.metrics.snapshots.Inc()
}

// RequestAuthorization processes one requestAuthorization command: for
// every target component, in order, it computes the desired auth list
// against the mirror and pushes it to the component, waiting for each
// acknowledgment before moving to the next target. Per-target failures
// (bad identity, unknown component, rejected or timed out push) do not
// stop the remaining targets; they are aggregated into the returned
// error. Nothing is committed here; the mirror catches up when the
// components echo their new lists.
func (c *CSC) RequestAuthorization(ctx context.Context, req Request) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.TimeoutRequestAuthorization.Duration())
	defer cancel()

	targets := strings.Split(req.CSCsToChange, ",")
	results, err := c.store.ProcessRequest(ctx, targets, req.AuthorizedUsers, req.NonAuthorizedCSCs)
	if err != nil {
		c.metrics.requests.WithLabelValues(resultRejected).Inc()
		return trace.Wrap(err)
	}

	var errors []error
	for result, err := range results {
		// The request budget covers the whole target sequence; once it
		// is spent, the remaining targets are not pushed.
		if ctxErr := ctx.Err(); ctxErr != nil {
			errors = append(errors, trace.Wrap(ctxErr, "request authorization deadline exceeded"))
			break
		}
		if err != nil {
			c.metrics.targets.WithLabelValues(resultInvalid).Inc()
			errors = append(errors, trace.Wrap(err))
			continue
		}
		if err := c.pushAuthList(ctx, result); err != nil {
			errors = append(errors, trace.Wrap(err))
			continue
		}
		c.metrics.targets.WithLabelValues(resultPushed).Inc()
	}

	if len(errors) > 0 {
		c.metrics.requests.WithLabelValues(resultFailed).Inc()
		return trace.NewAggregate(errors...)
	}
	c.metrics.requests.WithLabelValues(resultAccepted).Inc()
	return nil
}

func (c *CSC) pushAuthList(ctx context.Context, result authlist.Result) error {
	id, err := sal.ParseComponentID(result.Component)
	if err != nil {
		c.metrics.targets.WithLabelValues(resultInvalid).Inc()
		return trace.Wrap(err)
	}
	remote, err := c.registry.Remote(id)
	if err != nil {
		c.metrics.targets.WithLabelValues(resultUnknown).Inc()
		return trace.Wrap(err)
	}

	list := sal.AuthList{
		AuthorizedUsers:   result.Authorization.AuthorizedUsers.Join(","),
		NonAuthorizedCSCs: result.Authorization.NonAuthorizedCSCs.Join(","),
	}
	c.log.DebugContext(ctx, "Pushing auth list.",
		"component", id,
		"authorized_users", list.AuthorizedUsers,
		"non_authorized_cscs", list.NonAuthorizedCSCs,
	)

	pushCtx, cancel := context.WithTimeout(ctx, c.cfg.TimeoutCommand.Duration())
	defer cancel()
	started := c.clock.Now()
	if err := remote.SetAuthList(pushCtx, list); err != nil {
		c.metrics.targets.WithLabelValues(resultPushFailed).Inc()
		return trace.Wrap(err)
	}
	c.metrics.pushSeconds.Observe(c.clock.Since(started).Seconds())
	return nil
}
