// Package metrics exposes the RSVP and check-in counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "invites"

// Collector is a prometheus.Collector for the guest-facing flows.
type Collector struct {
	checkins        *prometheus.CounterVec
	checkinDuration prometheus.Histogram
	rsvps           *prometheus.CounterVec
	stationClients  prometheus.Gauge
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		checkins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkins_total",
				Help:      "Check-in attempts by outcome.",
			}, []string{"outcome"},
		),
		checkinDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "checkin_duration_seconds",
				Help:      "Time spent resolving a check-in attempt.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		rsvps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rsvp_submissions_total",
				Help:      "Accepted RSVP submissions by answer.",
			}, []string{"attending"},
		),
		stationClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "station_clients",
				Help:      "Connected check-in station websockets on this instance.",
			},
		),
	}
}

// ObserveCheckIn records one check-in attempt.
func (c *Collector) ObserveCheckIn(outcome string, took time.Duration) {
	if c == nil {
		return
	}
	c.checkins.WithLabelValues(outcome).Inc()
	c.checkinDuration.Observe(took.Seconds())
}

// ObserveRSVP records one accepted RSVP.
func (c *Collector) ObserveRSVP(attending bool) {
	if c == nil {
		return
	}
	label := "no"
	if attending {
		label = "yes"
	}
	c.rsvps.WithLabelValues(label).Inc()
}

// SetStationClients records the number of connected stations.
func (c *Collector) SetStationClients(n int) {
	if c == nil {
		return
	}
	c.stationClients.Set(float64(n))
}

// CheckIns exposes the check-in counter for tests and dashboards.
func (c *Collector) CheckIns() *prometheus.CounterVec { return c.checkins }

// RSVPs exposes the RSVP counter for tests and dashboards.
func (c *Collector) RSVPs() *prometheus.CounterVec { return c.rsvps }

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.checkins.Describe(ch)
	c.checkinDuration.Describe(ch)
	c.rsvps.Describe(ch)
	c.stationClients.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.checkins.Collect(ch)
	c.checkinDuration.Collect(ch)
	c.rsvps.Collect(ch)
	c.stationClients.Collect(ch)
}
