// Package inverter models one physical Fronius Gen24 device: its identity,
// discovery-time capability records, last sample, and energy integrators.
package inverter

import (
	"sync"
	"time"

	"github.com/fronius-io/gen24-collector/integrator"
)

// Capability is the discovery-time inverter capability record. Set once at
// discovery and never mutated by polling.
type Capability struct {
	Model          string
	NameplateWatts float64
	CustomName     string
}

// Battery is the discovery-time battery capability record.
type Battery struct {
	Manufacturer  string
	Model         string
	Serial        string
	NameplateWh   float64
	Enabled       bool
}

// MeterLocation classifies where a grid meter sits relative to the site.
type MeterLocation string

const (
	MeterLocationGrid      MeterLocation = "grid"
	MeterLocationLoad      MeterLocation = "load"
	MeterLocationGenerator MeterLocation = "generator"
	MeterLocationSubload   MeterLocation = "subload"
	MeterLocationEVCharger MeterLocation = "ev_charger"
	MeterLocationStorage   MeterLocation = "storage"
	MeterLocationUnknown   MeterLocation = "unknown"
)

// Meter is the discovery-time grid-meter capability record.
type Meter struct {
	Manufacturer string
	Model        string
	Serial       string
	Location     MeterLocation
	Enabled      bool
}

// Sample is a single poll's result for one inverter. Power fields use Ok
// flags rather than pointers because they are hot-path values read and
// written at 2-second cadence.
type Sample struct {
	At time.Time

	SolarW   float64
	SolarOk  bool
	BatteryW float64
	BatteryOk bool
	GridW    float64
	GridOk   bool
	LoadW    float64
	LoadOk   bool
	SOC       float64
	SOCOk     bool

	FaultCode      int
	FaultTimestamp time.Time
	HasFault       bool
}

// Inverter encapsulates one physical device: its identity, capability
// records, last sample, and its owned energy integrators.
type Inverter struct {
	mu sync.RWMutex

	Serial      string
	IP          string
	Hostname    string
	IsMaster    bool
	Capability  Capability
	HasBattery  bool
	BatteryInfo Battery
	HasMeter    bool
	MeterInfo   Meter

	last Sample

	solar    *integrator.Integrator
	battery  *integrator.Bidirectional // nil unless HasBattery
	grid     *integrator.Bidirectional // nil until the inverter is first master; kept after a demotion
}

// New constructs an Inverter. A solar integrator is always created; a
// battery integrator only if a battery record is supplied; a grid
// integrator only if the device is master.
func New(serial, ip string, isMaster bool, cap Capability, battery *Battery, meter *Meter) *Inverter {
	inv := &Inverter{
		Serial:     serial,
		IP:         ip,
		IsMaster:   isMaster,
		Capability: cap,
		solar:      integrator.New(),
	}
	if battery != nil {
		inv.HasBattery = true
		inv.BatteryInfo = *battery
		inv.battery = integrator.NewBidirectional()
	}
	if meter != nil {
		inv.HasMeter = true
		inv.MeterInfo = *meter
	}
	if isMaster {
		inv.grid = integrator.NewBidirectional()
	}
	return inv
}

// UpdateMutable applies the mutable fields a rescan may have changed (IP,
// hostname, role) while leaving integrators and history untouched — the
// same inverter instance is kept across scans so its energy counters
// survive.
func (inv *Inverter) UpdateMutable(ip, hostname string, isMaster bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	inv.IP = ip
	inv.Hostname = hostname
	if isMaster && inv.grid == nil {
		inv.grid = integrator.NewBidirectional()
	}
	inv.IsMaster = isMaster
}

// applySample integrates a freshly fetched sample into this inverter's
// accumulators and records it as the last sample.
func (inv *Inverter) applySample(s Sample) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	inv.solar.UpdatePower(s.SolarW, s.At, s.SolarOk)
	if inv.battery != nil {
		inv.battery.UpdatePower(s.BatteryW, s.At, s.BatteryOk)
	}
	if inv.grid != nil {
		inv.grid.UpdatePower(s.GridW, s.At, s.GridOk)
	}

	inv.last = s
}

// LastSample returns a copy of the most recent sample applied to this
// inverter.
func (inv *Inverter) LastSample() Sample {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.last
}

// Energy is the §4.2 energy readout: current integrator readings keyed by
// quantity and direction.
type Energy struct {
	SolarWh      float64
	BatteryInWh  float64 // charge (negative accumulator)
	BatteryOutWh float64 // discharge (positive accumulator)
	GridInWh     float64 // import (positive accumulator)
	GridOutWh    float64 // export (negative accumulator)
}

// Energy returns the current integrator readings. Battery/grid fields are
// zero when this inverter has no battery / has never been master (a demoted
// inverter keeps reporting its grid integrator), matching the
// "absent" semantics used elsewhere — callers that need to distinguish
// "zero" from "absent" should consult HasBattery/IsMaster.
func (inv *Inverter) Energy() Energy {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	e := Energy{SolarWh: inv.solar.Value()}
	if inv.battery != nil {
		e.BatteryInWh = inv.battery.NegativeWh()
		e.BatteryOutWh = inv.battery.PositiveWh()
	}
	if inv.grid != nil {
		e.GridInWh = inv.grid.PositiveWh()
		e.GridOutWh = inv.grid.NegativeWh()
	}
	return e
}
