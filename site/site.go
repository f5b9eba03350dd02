// Package site owns the set of discovered inverters for one premises,
// aggregates their samples into site-wide metrics, maintains the rolling
// history, and produces the once-a-minute energy-delta report.
package site

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/fronius-io/gen24-collector/discovery"
	"github.com/fronius-io/gen24-collector/inverter"
)

const (
	historyCapacity    = 300 // 10 minutes at one snapshot every 2s
	historyWindow      = 10 * time.Minute
	minutelyCapacity   = 20
	pollTimeout        = 5 * time.Second
)

// Site is the single piece of mutable shared state in the process. All
// mutation goes through AdoptDiscovered, Poll, or TickMinutely, which
// serialize on Site's own mutex (Poll takes it only after the device
// round-trips have finished); the HTTP surface takes the same mutex for
// its brief reads.
type Site struct {
	mu sync.RWMutex

	inverters map[string]*inverter.Inverter
	client    *inverter.Client

	history         []Snapshot
	minutelyHistory []MinutelyReport
	lastMetrics     *SiteMetrics

	ledger      snapshotLedger
	sessionHex  string
	sequenceNum int
}

// New returns an empty Site. client is used for every inverter's
// power-flow poll.
func New(client *inverter.Client) *Site {
	return &Site{
		inverters:  make(map[string]*inverter.Inverter),
		client:     client,
		sessionHex: newSessionHex(),
	}
}

func newSessionHex() string {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "0000"
	}
	return fmt.Sprintf("%02x%02x", b[0], b[1])
}

// AdoptDiscovered replaces the inverter set with the result of a fresh
// scan. Inverters whose serial is already known keep their integrators and
// history — only mutable fields (IP, hostname, role) are updated. Inverters
// not present in list are removed.
func (s *Site) AdoptDiscovered(list []discovery.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(list))
	for _, d := range list {
		seen[d.Serial] = true
		if existing, ok := s.inverters[d.Serial]; ok {
			existing.UpdateMutable(d.IP, d.Hostname, d.IsMaster)
			continue
		}
		s.inverters[d.Serial] = inverter.New(d.Serial, d.IP, d.IsMaster, d.Capability, d.Battery, d.Meter)
	}

	for serial := range s.inverters {
		if !seen[serial] {
			delete(s.inverters, serial)
		}
	}
}

// Poll fans FetchPowerFlow out to every inverter concurrently, waits for
// all of them to settle, builds the site aggregate, and appends it to the
// rolling history. Per-inverter transport failures do not abort the round.
func (s *Site) Poll(ctx context.Context) *SiteMetrics {
	s.mu.RLock()
	inverters := make([]*inverter.Inverter, 0, len(s.inverters))
	for _, inv := range s.inverters {
		inverters = append(inverters, inv)
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, inv := range inverters {
		wg.Add(1)
		go func(inv *inverter.Inverter) {
			defer wg.Done()
			pollCtx, cancel := context.WithTimeout(ctx, pollTimeout)
			defer cancel()
			_, _ = inv.FetchPowerFlow(pollCtx, s.client)
		}(inv)
	}
	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	metrics := s.buildSiteMetrics()
	s.appendHistory(Snapshot{Timestamp: time.Now(), Metrics: metrics})
	s.lastMetrics = &metrics
	return &metrics
}

// appendHistory pushes a snapshot and evicts anything older than the
// 10-minute window, matching the per-instance cap at historyCapacity.
func (s *Site) appendHistory(snap Snapshot) {
	s.history = append(s.history, snap)
	if len(s.history) > historyCapacity {
		s.history = s.history[len(s.history)-historyCapacity:]
	}
	cutoff := time.Now().Add(-historyWindow)
	trimmed := s.history[:0]
	for _, h := range s.history {
		if h.Timestamp.After(cutoff) {
			trimmed = append(trimmed, h)
		}
	}
	s.history = trimmed
}

// LastMetrics returns the most recently built site aggregate, or nil if
// Poll has never run.
func (s *Site) LastMetrics() *SiteMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastMetrics
}

// History returns a copy of the current rolling-history snapshot.
func (s *Site) History() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, len(s.history))
	copy(out, s.history)
	return out
}

// MinutelyHistory returns a copy of the last (up to 20) minutely reports.
func (s *Site) MinutelyHistory() []MinutelyReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MinutelyReport, len(s.minutelyHistory))
	copy(out, s.minutelyHistory)
	return out
}

// Inverters returns a snapshot slice of the currently known inverters,
// sorted by nothing in particular — callers key by serial.
func (s *Site) Inverters() []*inverter.Inverter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*inverter.Inverter, 0, len(s.inverters))
	for _, inv := range s.inverters {
		out = append(out, inv)
	}
	return out
}

// DeviceCount returns the number of currently known inverters.
func (s *Site) DeviceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.inverters)
}
