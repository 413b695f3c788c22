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
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "love_csc"

// Request and target result labels.
const (
	resultAccepted   = "accepted"
	resultRejected   = "rejected"
	resultFailed     = "failed"
	resultPushed     = "pushed"
	resultInvalid    = "invalid"
	resultUnknown    = "unknown_component"
	resultPushFailed = "push_failed"
)

// metrics instruments one CSC instance. Every instance holds its own
// registry so tests can run several side by side.
type metrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	targets     *prometheus.CounterVec
	snapshots   prometheus.Counter
	pushSeconds prometheus.Histogram
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "requestAuthorization commands processed, by result.",
		}, []string{"result"}),
		targets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "targets_total",
			Help:      "Auth-list change targets processed, by result.",
		}, []string{"result"}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "snapshots_total",
			Help:      "authList snapshots committed to the mirror.",
		}),
		pushSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "push_seconds",
			Help:      "Latency of acknowledged setAuthList pushes.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(m.requests, m.targets, m.snapshots, m.pushSeconds)
	return m
}
