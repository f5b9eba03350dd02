// Package metrics exposes the collector's own operational health as
// Prometheus metrics: device count, poll latency, bus backpressure, and
// push-client status.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fronius-io/gen24-collector/collector"
)

// Collector implements prometheus.Collector over a running
// collector.Collector, gathering fresh values on every scrape rather than
// tracking its own counters.
type Collector struct {
	target *collector.Collector

	devicesTotal   *prometheus.Desc
	isScanning     *prometheus.Desc
	subscribers    *prometheus.Desc
	droppedEvents  *prometheus.Desc
	pushEnabled    *prometheus.Desc
	pollDuration   *prometheus.Desc
}

// NewCollector wraps target for Prometheus registration.
func NewCollector(target *collector.Collector) *Collector {
	return &Collector{
		target: target,
		devicesTotal: prometheus.NewDesc(
			"fronius_collector_devices_total",
			"Number of inverters currently known to the site.",
			nil, nil,
		),
		isScanning: prometheus.NewDesc(
			"fronius_collector_scan_in_progress",
			"Whether a discovery scan is currently running (1=yes, 0=no).",
			nil, nil,
		),
		subscribers: prometheus.NewDesc(
			"fronius_collector_subscribers",
			"Number of active event bus subscribers.",
			nil, nil,
		),
		droppedEvents: prometheus.NewDesc(
			"fronius_collector_dropped_events_total",
			"Events dropped from a subscriber's queue because it fell behind.",
			[]string{"topic"}, nil,
		),
		pushEnabled: prometheus.NewDesc(
			"fronius_collector_push_enabled",
			"Whether the outbound push client is configured and enabled (1=yes, 0=no).",
			nil, nil,
		),
		pollDuration: prometheus.NewDesc(
			"fronius_collector_poll_duration_seconds",
			"Wall-clock time the most recently completed poll round took.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.devicesTotal
	ch <- c.isScanning
	ch <- c.subscribers
	ch <- c.droppedEvents
	ch <- c.pushEnabled
	ch <- c.pollDuration
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	site := c.target.Site()

	ch <- prometheus.MustNewConstMetric(c.devicesTotal, prometheus.GaugeValue, float64(site.DeviceCount()))

	scanning := 0.0
	if c.target.IsScanning() {
		scanning = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.isScanning, prometheus.GaugeValue, scanning)

	bus := c.target.Bus()
	ch <- prometheus.MustNewConstMetric(c.subscribers, prometheus.GaugeValue, float64(bus.SubscriberCount()))

	for topic, n := range bus.TotalDrops() {
		ch <- prometheus.MustNewConstMetric(c.droppedEvents, prometheus.CounterValue, float64(n), string(topic))
	}

	pushEnabled := 0.0
	if c.target.PushEnabled() {
		pushEnabled = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.pushEnabled, prometheus.GaugeValue, pushEnabled)

	ch <- prometheus.MustNewConstMetric(c.pollDuration, prometheus.GaugeValue, c.target.LastPollDuration().Seconds())
}
