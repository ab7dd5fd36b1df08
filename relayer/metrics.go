// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package relayer

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/channel"
)

var routeLabels = []string{"origin", "destination", "channel"}

// Metrics of a relayer
type Metrics struct {
	deliveredCommitments *prometheus.CounterVec
	deliveredMessages    *prometheus.CounterVec
	duplicateDeliveries  *prometheus.CounterVec
	failedDeliveries     *prometheus.CounterVec
	proofAssemblyLatency *prometheus.HistogramVec
	dispatchedNonce      *prometheus.GaugeVec
	importedClaims       prometheus.Counter
	importedHeaders      prometheus.Counter
}

func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		deliveredCommitments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "delivered_commitment_count",
				Help: "Number of commitments delivered by this relayer",
			},
			routeLabels,
		),
		deliveredMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "delivered_message_count",
				Help: "Number of messages in commitments delivered by this relayer",
			},
			routeLabels,
		),
		duplicateDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "duplicate_delivery_count",
				Help: "Number of commitments already delivered by another relayer",
			},
			routeLabels,
		),
		failedDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "failed_delivery_count",
				Help: "Number of rejected delivery attempts",
			},
			append(routeLabels, "failure_kind"),
		),
		proofAssemblyLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "proof_assembly_latency_ms",
				Help:    "Latency of fetching a commitment and building its proof in milliseconds",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
			routeLabels,
		),
		dispatchedNonce: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dispatched_nonce",
				Help: "Last nonce dispatched on the destination",
			},
			routeLabels,
		),
		importedClaims: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "imported_finality_claim_count",
				Help: "Number of committee statements imported into the destination light client",
			},
		),
		importedHeaders: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "imported_header_count",
				Help: "Number of headers imported into the destination light client",
			},
		),
	}

	for _, c := range []prometheus.Collector{
		m.deliveredCommitments,
		m.deliveredMessages,
		m.duplicateDeliveries,
		m.failedDeliveries,
		m.proofAssemblyLatency,
		m.dispatchedNonce,
		m.importedClaims,
		m.importedHeaders,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (r Route) labels(origin channel.NetworkID) prometheus.Labels {
	return prometheus.Labels{
		"origin":      strconv.FormatUint(uint64(origin), 10),
		"destination": strconv.FormatUint(uint64(r.Destination), 10),
		"channel":     r.Channel.Hex(),
	}
}

func (m *Metrics) delivered(labels prometheus.Labels, messages int) {
	m.deliveredCommitments.With(labels).Inc()
	m.deliveredMessages.With(labels).Add(float64(messages))
}

func (m *Metrics) failed(labels prometheus.Labels, kind channel.Kind) {
	l := prometheus.Labels{"failure_kind": kind.String()}
	for k, v := range labels {
		l[k] = v
	}
	m.failedDeliveries.With(l).Inc()
}

func (m *Metrics) proofAssembled(labels prometheus.Labels, elapsed time.Duration) {
	m.proofAssemblyLatency.With(labels).Observe(float64(elapsed.Milliseconds()))
}
