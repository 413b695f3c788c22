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
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gravitational/trace"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// componentAuthList is the JSON rendering of one mirrored entry.
type componentAuthList struct {
	AuthorizedUsers   []string `json:"authorized_users"`
	NonAuthorizedCSCs []string `json:"non_authorized_cscs"`
}

// diagHandler serves metrics, liveness and the mirrored auth lists.
func (c *CSC) diagHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.metrics.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/authlist", func(w http.ResponseWriter, r *http.Request) {
		lists := make(map[string]componentAuthList)
		for _, component := range c.store.Components() {
			entry := c.store.Current(component)
			lists[component] = componentAuthList{
				AuthorizedUsers:   entry.AuthorizedUsers.Sorted(),
				NonAuthorizedCSCs: entry.NonAuthorizedCSCs.Sorted(),
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(lists); err != nil {
			c.log.WarnContext(r.Context(), "Failed to write auth-list dump.", "error", err)
		}
	})
	return mux
}

// serveDiagnostics starts the diagnostics listener when a port is
// configured. The returned stop function blocks until the server shuts
// down.
func (c *CSC) serveDiagnostics(ctx context.Context) (stop func(), err error) {
	if c.cfg.Port == 0 {
		return func() {}, nil
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", c.cfg.Port))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	server := &http.Server{Handler: c.diagHandler()}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.ErrorContext(ctx, "Diagnostics server failed.", "error", err)
		}
	}()
	c.log.DebugContext(ctx, "Serving diagnostics.", "addr", listener.Addr().String())

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}, nil
}
