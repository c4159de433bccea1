// Package metrics groups the Prometheus collectors the Event Engine
// updates on every tick. Metrics are observability only — the engine's
// control flow never reads them back — so every method is nil-safe and a
// nil *Metrics behaves as a no-op collector.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	labelPeer = "peer"

	nameSendsTotal        = "dsengine_sends_total"
	nameReceivesTotal     = "dsengine_receives_total"
	nameWatchdogTripTotal = "dsengine_watchdog_trips_total"
	nameCommsUp           = "dsengine_comms_up"
	nameEventQueueDepth   = "dsengine_event_queue_depth"
)

// Metrics groups the collectors this package registers. Construct with New
// and, optionally, Register with a prometheus.Registerer.
type Metrics struct {
	SendsTotal    *prometheus.CounterVec
	ReceivesTotal *prometheus.CounterVec
	WatchdogTrips *prometheus.CounterVec
	CommsUp       *prometheus.GaugeVec
	EventQueue    prometheus.Gauge
}

// New constructs collectors without registering them.
func New() *Metrics {
	return &Metrics{
		SendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: nameSendsTotal,
			Help: "Number of packets sent per peer.",
		}, []string{labelPeer}),
		ReceivesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: nameReceivesTotal,
			Help: "Number of packets successfully parsed per peer.",
		}, []string{labelPeer}),
		WatchdogTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: nameWatchdogTripTotal,
			Help: "Number of receive-watchdog expirations per peer.",
		}, []string{labelPeer}),
		CommsUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: nameCommsUp,
			Help: "1 if comms are currently up for the peer, else 0.",
		}, []string{labelPeer}),
		EventQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: nameEventQueueDepth,
			Help: "Number of events currently queued for upstream consumers.",
		}),
	}
}

// Register registers every collector with r. Safe to call with a nil
// Metrics (no-op).
func (m *Metrics) Register(r prometheus.Registerer) {
	if m == nil {
		return
	}
	r.MustRegister(m.SendsTotal, m.ReceivesTotal, m.WatchdogTrips, m.CommsUp, m.EventQueue)
}

func (m *Metrics) ObserveSend(peer string) {
	if m == nil {
		return
	}
	m.SendsTotal.WithLabelValues(peer).Inc()
}

func (m *Metrics) ObserveReceive(peer string) {
	if m == nil {
		return
	}
	m.ReceivesTotal.WithLabelValues(peer).Inc()
}

func (m *Metrics) ObserveWatchdogTrip(peer string) {
	if m == nil {
		return
	}
	m.WatchdogTrips.WithLabelValues(peer).Inc()
}

func (m *Metrics) SetCommsUp(peer string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1.0
	}
	m.CommsUp.WithLabelValues(peer).Set(v)
}

func (m *Metrics) SetEventQueueDepth(n int) {
	if m == nil {
		return
	}
	m.EventQueue.Set(float64(n))
}
