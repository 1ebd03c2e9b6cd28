// instrument.go - prometheus instrumentation.
// Copyright (C) 2024  chatterbox authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package instrument exposes the server's prometheus metrics.
package instrument

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/op/go-logging.v1"
)

var (
	connections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatterbox_connections_total",
		Help: "Number of accepted client connections",
	})
	disconnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatterbox_disconnections_total",
		Help: "Number of closed client connections",
	})
	authFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatterbox_auth_failures_total",
		Help: "Number of connections dropped during authentication",
	})
	broadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatterbox_broadcasts_total",
		Help: "Number of broadcast tasks dispatched",
	})
	fanoutSends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatterbox_fanout_sends_total",
		Help: "Number of messages enqueued to client outbound channels",
	})
	fanoutDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatterbox_fanout_drops_total",
		Help: "Number of messages dropped due to a full outbound channel",
	})
	recordFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatterbox_record_failures_total",
		Help: "Number of failed broadcast record writes",
	})
	authenticatedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatterbox_authenticated_clients",
		Help: "Number of currently authenticated clients",
	})
)

// Connection increments the accepted connection counter.
func Connection() { connections.Inc() }

// Disconnection increments the closed connection counter.
func Disconnection() { disconnections.Inc() }

// AuthFailure increments the failed authentication counter.
func AuthFailure() { authFailures.Inc() }

// Broadcast increments the dispatched broadcast counter.
func Broadcast() { broadcasts.Inc() }

// FanoutSend increments the fan-out send counter.
func FanoutSend() { fanoutSends.Inc() }

// FanoutDrop increments the fan-out drop counter.
func FanoutDrop() { fanoutDrops.Inc() }

// RecordFailure increments the failed broadcast record counter.
func RecordFailure() { recordFailures.Inc() }

// ClientRegistered increments the authenticated client gauge.
func ClientRegistered() { authenticatedClients.Inc() }

// ClientDeregistered decrements the authenticated client gauge.
func ClientDeregistered() { authenticatedClients.Dec() }

// StartMetricsListener starts the prometheus HTTP endpoint on address.
func StartMetricsListener(address string, log *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(address, mux); err != nil {
			log.Errorf("Metrics listener failure: %v", err)
		}
	}()
	log.Noticef("Metrics endpoint listening on %v", address)
}
