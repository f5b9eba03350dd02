// Package collector is the scheduler and publisher: it drives the
// 2-second polling tick, the minutely report tick, and on-demand rescans,
// and fans out the results to the event bus.
package collector

import (
	"context"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/fronius-io/gen24-collector/discovery"
	"github.com/fronius-io/gen24-collector/push"
	"github.com/fronius-io/gen24-collector/site"
)

const (
	pollInterval        = 2 * time.Second
	minutelyInterval     = 1 * time.Minute
	minutelyOffset       = 5 * time.Second
	scanStatusInterval   = 1 * time.Second
	heartbeatOnline      = "online"
	heartbeatOffline     = "offline"
)

// InverterHeartbeat is the per-inverter online/offline event published
// after every poll.
type InverterHeartbeat struct {
	Serial    string    `json:"serial"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ScanStatus is the state of the current (or most recent) rescan.
type ScanStatus struct {
	State string `json:"state"` // "SCANNING" | "IDLE"
}

// SiteUpdate wraps a freshly adopted site snapshot, published when a scan
// completes.
type SiteUpdate struct {
	Metrics *site.SiteMetrics `json:"metrics"`
}

// InitialReplay is handed to a new subscriber immediately after it
// registers, per §4.5.
type InitialReplay struct {
	SiteUpdate      *site.SiteMetrics       `json:"siteUpdate"`
	SiteMetrics     *site.SiteMetrics       `json:"siteMetrics"`
	HiresHistory    []site.Snapshot         `json:"hiresHistory"`
	MinutelyHistory []site.MinutelyReport   `json:"minutelyHistory"`
	PushTest        *push.TestResult        `json:"pushTest"`
}

// Collector is the process-wide singleton scheduler and publisher. It
// holds a non-owning reference to Site.
type Collector struct {
	site       *site.Site
	discoverer *discovery.Discoverer
	push       *push.Client
	bus        *Bus
	logger     *log.Logger

	scanMu    sync.Mutex
	scanning  bool

	lastPushTest *push.TestResult
	pushTestMu   sync.Mutex

	lastScanMu sync.Mutex
	lastScanAt time.Time
	hasScanned bool

	pollMu          sync.Mutex
	pollRunning     bool
	lastPollElapsed time.Duration
}

// New constructs a Collector. push may be nil (no push configuration).
func New(s *site.Site, d *discovery.Discoverer, p *push.Client, logger *log.Logger) *Collector {
	return &Collector{
		site:       s,
		discoverer: d,
		push:       p,
		bus:        NewBus(defaultQueueCapacity),
		logger:     logger,
	}
}

// Bus exposes the event bus for the HTTP surface to subscribe to.
func (c *Collector) Bus() *Bus {
	return c.bus
}

// Site exposes the underlying Site for read-only HTTP handlers.
func (c *Collector) Site() *site.Site {
	return c.site
}

// PushEnabled reports whether an outbound push client is wired in and not
// disabled.
func (c *Collector) PushEnabled() bool {
	return c.push != nil && !c.push.Disabled()
}

// LastPollDuration returns how long the most recently completed poll round
// took, for the metrics surface.
func (c *Collector) LastPollDuration() time.Duration {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	return c.lastPollElapsed
}

// Run starts the collector's two tickers and an initial discovery, and
// blocks until ctx is cancelled. Call it from its own goroutine.
func (c *Collector) Run(ctx context.Context) {
	c.logger.Printf("collector: starting")

	// Yield so the HTTP surface can bind before the first scan begins.
	go func() {
		runtime.Gosched()
		c.Scan(ctx)
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.pollLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		c.minutelyLoop(ctx)
	}()
	wg.Wait()

	c.logger.Printf("collector: stopped")
}

func (c *Collector) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runPollTick(ctx)
		}
	}
}

// runPollTick runs one poll round, skipping it entirely if the previous
// round has not yet completed — latency matters more than coverage at
// this tick rate.
func (c *Collector) runPollTick(ctx context.Context) {
	c.pollMu.Lock()
	if c.pollRunning {
		c.pollMu.Unlock()
		return
	}
	c.pollRunning = true
	c.pollMu.Unlock()

	start := time.Now()
	defer func() {
		c.pollMu.Lock()
		c.pollRunning = false
		c.lastPollElapsed = time.Since(start)
		c.pollMu.Unlock()
	}()

	metrics := c.site.Poll(ctx)
	now := time.Now()
	for serial, inv := range metrics.Inverters {
		status := heartbeatOffline
		if inv.SolarW != nil || inv.GridW != nil || inv.BatteryW != nil {
			status = heartbeatOnline
		}
		c.bus.Publish(TopicInverterHeartbeat, InverterHeartbeat{Serial: serial, Status: status, Timestamp: now})
	}
	c.bus.Publish(TopicSiteMetrics, metrics)
}

func (c *Collector) minutelyLoop(ctx context.Context) {
	initialDelay := nextMinuteBoundaryDelay(time.Now()) + minutelyOffset
	timer := time.NewTimer(initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			c.runMinutelyTick()
			timer.Reset(nextMinuteBoundaryDelay(time.Now()) + minutelyOffset)
		}
	}
}

func (c *Collector) runMinutelyTick() {
	report := c.site.TickMinutely()
	if report == nil {
		return
	}
	c.bus.Publish(TopicFroniusMinutely, *report)
	if c.push != nil {
		go c.push.PushMinutely(context.Background(), *report)
	}
}

// nextMinuteBoundaryDelay returns the delay until the next wall-clock
// minute boundary, generalizing the teacher's top-of-hour alignment helper
// to a one-minute period.
func nextMinuteBoundaryDelay(now time.Time) time.Duration {
	top := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), 0, 0, now.Location())
	delay := now.Sub(top)
	for delay > 0 {
		delay -= minutelyInterval
	}
	return -delay
}

// Scan runs a rescan and returns when it has finished; Run and the HTTP
// handler call it on its own goroutine so neither waits. If a scan is
// already in flight, the call is a coalesced no-op that returns at once
// after republishing the in-progress scanStatus.
func (c *Collector) Scan(ctx context.Context) {
	c.scanMu.Lock()
	if c.scanning {
		c.scanMu.Unlock()
		c.bus.Publish(TopicScanStatus, ScanStatus{State: "SCANNING"})
		return
	}
	c.scanning = true
	c.scanMu.Unlock()

	done := make(chan struct{})
	go c.reportScanStatusWhileRunning(done)

	defer func() {
		close(done)
		c.scanMu.Lock()
		c.scanning = false
		c.scanMu.Unlock()
	}()

	devices, err := c.discoverer.Discover(ctx)
	if err != nil {
		c.logger.Printf("collector: scan failed: %v", err)
		c.bus.Publish(TopicScanStatus, ScanStatus{State: "IDLE"})
		return
	}

	c.site.AdoptDiscovered(devices)
	metrics := c.site.LastMetrics()

	c.lastScanMu.Lock()
	c.lastScanAt = time.Now()
	c.hasScanned = true
	c.lastScanMu.Unlock()

	c.bus.Publish(TopicScanStatus, ScanStatus{State: "IDLE"})
	c.bus.Publish(TopicSiteUpdate, SiteUpdate{Metrics: metrics})
}

func (c *Collector) reportScanStatusWhileRunning(done <-chan struct{}) {
	ticker := time.NewTicker(scanStatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.bus.Publish(TopicScanStatus, ScanStatus{State: "SCANNING"})
		}
	}
}

// IsScanning reports whether a rescan is currently in flight.
func (c *Collector) IsScanning() bool {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()
	return c.scanning
}

// LastScanAt returns the time the most recent scan completed, and false if
// no scan has completed yet.
func (c *Collector) LastScanAt() (time.Time, bool) {
	c.lastScanMu.Lock()
	defer c.lastScanMu.Unlock()
	return c.lastScanAt, c.hasScanned
}

// RecordPushTest stores the outcome of the Push Client's startup
// self-test so it can be replayed to new subscribers.
func (c *Collector) RecordPushTest(result push.TestResult) {
	c.pushTestMu.Lock()
	c.lastPushTest = &result
	c.pushTestMu.Unlock()
	c.bus.Publish(TopicPushTest, result)
}

// Replay builds the initial-snapshot payload a newly subscribed consumer
// receives.
func (c *Collector) Replay() InitialReplay {
	c.pushTestMu.Lock()
	pushTest := c.lastPushTest
	c.pushTestMu.Unlock()

	metrics := c.site.LastMetrics()
	return InitialReplay{
		SiteUpdate:      metrics,
		SiteMetrics:     metrics,
		HiresHistory:    c.site.History(),
		MinutelyHistory: c.site.MinutelyHistory(),
		PushTest:        pushTest,
	}
}
