package metrics

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/fronius-io/gen24-collector/collector"
	"github.com/fronius-io/gen24-collector/discovery"
	"github.com/fronius-io/gen24-collector/inverter"
	"github.com/fronius-io/gen24-collector/site"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestCollector(t *testing.T) *collector.Collector {
	t.Helper()
	client := inverter.NewClient(2 * time.Second)
	st := site.New(client)
	disc := discovery.New(testLogger())
	return collector.New(st, disc, nil, testLogger())
}

func TestCollectorExposesDeviceCountAndPushEnabled(t *testing.T) {
	target := newTestCollector(t)
	target.Site().AdoptDiscovered([]discovery.Device{
		{Serial: "111", IsMaster: true},
		{Serial: "222"},
	})

	c := NewCollector(target)
	registry := prometheus.NewRegistry()
	registry.MustRegister(c)

	if n := testutil.CollectAndCount(c); n == 0 {
		t.Fatal("expected metrics to be collected, got 0")
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	found := make(map[string]bool)
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{
		"fronius_collector_devices_total",
		"fronius_collector_scan_in_progress",
		"fronius_collector_subscribers",
		"fronius_collector_push_enabled",
		"fronius_collector_poll_duration_seconds",
	} {
		if !found[name] {
			t.Errorf("missing metric family %q", name)
		}
	}
}

func TestCollectorReportsNoBusDropsWithoutBackpressure(t *testing.T) {
	target := newTestCollector(t)
	bus := target.Bus()
	sub := bus.Subscribe()
	defer sub.Close()

	c := NewCollector(target)
	registry := prometheus.NewRegistry()
	registry.MustRegister(c)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == "fronius_collector_dropped_events_total" && len(f.GetMetric()) != 0 {
			t.Errorf("expected no drop samples with no backpressure, got %d", len(f.GetMetric()))
		}
	}
}
