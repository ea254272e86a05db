// Package metrics exposes Prometheus collectors for the store-size and
// truncation/purge/reject counters that matter operationally but aren't
// part of the protocol itself.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every collector this module registers. Callers Register
// it once against whatever prometheus.Registerer the node uses.
type Metrics struct {
	MainMapSize        prometheus.Gauge
	SequenceMapSize     prometheus.Gauge
	RemovedSetSize      prometheus.Gauge

	AddsAccepted   prometheus.Counter
	AddsRejected   *prometheus.CounterVec
	RemovesApplied prometheus.Counter
	RefreshesApplied prometheus.Counter
	ExpirationsSwept prometheus.Counter

	SequenceMapPurges prometheus.Counter
	SequenceMapEntriesPurged prometheus.Counter

	GetDataResponsesBuilt  prometheus.Counter
	GetDataResponsesTruncated prometheus.Counter
	AppendOnlyPayloadsAccepted prometheus.Counter
}

// New constructs every collector under the "p2pstore" namespace.
func New() *Metrics {
	const ns = "p2pstore"
	return &Metrics{
		MainMapSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "main_map_entries", Help: "Current number of live protected entries.",
		}),
		SequenceMapSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "sequence_map_entries", Help: "Current number of sequence-number-map entries.",
		}),
		RemovedSetSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "removed_set_entries", Help: "Current number of permanently retracted hashes.",
		}),
		AddsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "adds_accepted_total", Help: "Protected entries accepted by the add path.",
		}),
		AddsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "adds_rejected_total", Help: "Protected entries rejected by the add path, by reason.",
		}, []string{"reason"}),
		RemovesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "removes_applied_total", Help: "Removes that advanced the sequence-number map.",
		}),
		RefreshesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "refreshes_applied_total", Help: "TTL refreshes accepted.",
		}),
		ExpirationsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "expirations_swept_total", Help: "Entries removed by the periodic expiration sweep.",
		}),
		SequenceMapPurges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "sequence_map_purges_total", Help: "Sequence-number-map purge passes run.",
		}),
		SequenceMapEntriesPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "sequence_map_entries_purged_total", Help: "Sequence-number-map entries dropped by purge.",
		}),
		GetDataResponsesBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "get_data_responses_built_total", Help: "Get-data responses built.",
		}),
		GetDataResponsesTruncated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "get_data_responses_truncated_total", Help: "Get-data responses where either side hit its budget.",
		}),
		AppendOnlyPayloadsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "append_only_payloads_accepted_total", Help: "Append-only payloads newly ingested.",
		}),
	}
}

// MustRegister registers every collector against reg, panicking on
// duplicate registration — the same behavior prometheus.MustRegister
// already has, applied to the whole bundle at once.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.MainMapSize,
		m.SequenceMapSize,
		m.RemovedSetSize,
		m.AddsAccepted,
		m.AddsRejected,
		m.RemovesApplied,
		m.RefreshesApplied,
		m.ExpirationsSwept,
		m.SequenceMapPurges,
		m.SequenceMapEntriesPurged,
		m.GetDataResponsesBuilt,
		m.GetDataResponsesTruncated,
		m.AppendOnlyPayloadsAccepted,
	)
}
