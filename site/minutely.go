package site

import (
	"fmt"
	"math"
	"time"
)

// cumulativeSnapshot is one quantity-keyed cumulative ledger entry —
// either the "last" value advanced by rounded deltas, or the "current" raw
// reading before rounding.
type cumulativeSnapshot struct {
	solarWh      float64
	batteryInWh  float64
	batteryOutWh float64
	gridInWh     float64
	gridOutWh    float64
	loadWh       float64

	masterSolarWh float64
	slaveSolarWh  float64
}

// snapshotLedger holds the last-reported cumulative snapshot; generateMinutely
// advances it by rounded deltas so that the sum of all reported deltas
// exactly equals the reported cumulative (no drift).
type snapshotLedger struct {
	has  bool
	last cumulativeSnapshot
}

// MinutelyReport is the compact once-a-minute energy-delta record. Field
// names and casing are part of the external wire contract.
type MinutelyReport struct {
	Timestamp time.Time `json:"timestamp"`
	Sequence  string    `json:"sequence"`

	SolarW               float64 `json:"solarW"`
	SolarIntervalWh      int64   `json:"solarIntervalWh"`
	SolarLocalW          float64 `json:"solarLocalW"`
	SolarLocalIntervalWh int64   `json:"solarLocalIntervalWh"`
	SolarRemoteW         float64 `json:"solarRemoteW"`
	SolarRemoteIntervalWh int64  `json:"solarRemoteIntervalWh"`

	LoadW          float64 `json:"loadW"`
	LoadIntervalWh int64   `json:"loadIntervalWh"`

	BatteryW             float64 `json:"batteryW"`
	BatteryInIntervalWh  int64   `json:"batteryInIntervalWh"`
	BatteryOutIntervalWh int64   `json:"batteryOutIntervalWh"`

	GridW             float64 `json:"gridW"`
	GridInIntervalWh  int64   `json:"gridInIntervalWh"`
	GridOutIntervalWh int64   `json:"gridOutIntervalWh"`

	BatterySOC *float64 `json:"batterySOC"`

	FaultCode      *int       `json:"faultCode"`
	FaultTimestamp *time.Time `json:"faultTimestamp"`

	GeneratorStatus *string `json:"generatorStatus"` // always null — reserved

	SolarKwhTotal        *float64 `json:"solarKwhTotal"`
	LoadKwhTotal         *float64 `json:"loadKwhTotal"`
	BatteryInKwhTotal    *float64 `json:"batteryInKwhTotal"`
	BatteryOutKwhTotal   *float64 `json:"batteryOutKwhTotal"`
	GridInKwhTotal       *float64 `json:"gridInKwhTotal"`
	GridOutKwhTotal      *float64 `json:"gridOutKwhTotal"`
}

// TickMinutely runs generateMinutely and, if it produced a report, pushes
// it onto the 20-deep minutely history.
func (s *Site) TickMinutely() *MinutelyReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := s.generateMinutely()
	if report == nil {
		return nil
	}

	s.minutelyHistory = append(s.minutelyHistory, *report)
	if len(s.minutelyHistory) > minutelyCapacity {
		s.minutelyHistory = s.minutelyHistory[len(s.minutelyHistory)-minutelyCapacity:]
	}
	return report
}

// generateMinutely implements the drift-correcting snapshot ledger
// described in §3/§4.4. Caller must hold s.mu.
func (s *Site) generateMinutely() *MinutelyReport {
	if s.lastMetrics == nil || (s.lastMetrics.Site.Solar.PowerW == nil && s.lastMetrics.Site.Grid.PowerW == nil) {
		return nil
	}

	current := s.cumulativeNow()

	if !s.ledger.has {
		s.ledger.last = current
		s.ledger.has = true
		return nil
	}

	last := s.ledger.last
	deltaSolar := roundDelta(current.solarWh, last.solarWh)
	deltaBatteryIn := roundDelta(current.batteryInWh, last.batteryInWh)
	deltaBatteryOut := roundDelta(current.batteryOutWh, last.batteryOutWh)
	deltaGridIn := roundDelta(current.gridInWh, last.gridInWh)
	deltaGridOut := roundDelta(current.gridOutWh, last.gridOutWh)
	deltaLoad := roundDelta(current.loadWh, last.loadWh)

	next := cumulativeSnapshot{
		solarWh:      last.solarWh + float64(deltaSolar),
		batteryInWh:  last.batteryInWh + float64(deltaBatteryIn),
		batteryOutWh: last.batteryOutWh + float64(deltaBatteryOut),
		gridInWh:     last.gridInWh + float64(deltaGridIn),
		gridOutWh:    last.gridOutWh + float64(deltaGridOut),
		loadWh:       last.loadWh + float64(deltaLoad),
	}

	masterPowerW, slavePowerW := s.instantaneousSolarSplit()
	masterPart, slavePart := splitSolarDelta(deltaSolar, masterPowerW, slavePowerW)
	next.masterSolarWh = last.masterSolarWh + float64(masterPart)
	next.slaveSolarWh = last.slaveSolarWh + float64(slavePart)

	s.ledger.last = next
	s.sequenceNum++

	metrics := s.lastMetrics
	var instSolar, instBattery, instGrid, instLoad float64
	var soc *float64
	if metrics != nil {
		if metrics.Site.Solar.PowerW != nil {
			instSolar = *metrics.Site.Solar.PowerW
		}
		if metrics.Site.Battery.PowerW != nil {
			instBattery = *metrics.Site.Battery.PowerW
		}
		if metrics.Site.Grid.PowerW != nil {
			instGrid = *metrics.Site.Grid.PowerW
		}
		if metrics.Site.Load.PowerW != nil {
			instLoad = *metrics.Site.Load.PowerW
		}
		if metrics.Site.Battery.SOC != nil {
			soc = ptr(math.Round(*metrics.Site.Battery.SOC*10) / 10)
		}
	}

	var faultCode *int
	var faultTS *time.Time
	if metrics != nil && len(metrics.Site.Faults) > 0 {
		f := metrics.Site.Faults[0]
		faultCode = ptr0(f.Code)
		faultTS = &f.Timestamp
	}

	report := &MinutelyReport{
		Timestamp:             time.Now(),
		Sequence:              fmt.Sprintf("%s/%d", s.sessionHex, s.sequenceNum),
		SolarW:                instSolar,
		SolarIntervalWh:       deltaSolar,
		SolarLocalW:           masterPowerW,
		SolarLocalIntervalWh:  masterPart,
		SolarRemoteW:          slavePowerW,
		SolarRemoteIntervalWh: slavePart,
		LoadW:                 instLoad,
		LoadIntervalWh:        deltaLoad,
		BatteryW:              instBattery,
		BatteryInIntervalWh:   deltaBatteryIn,
		BatteryOutIntervalWh:  deltaBatteryOut,
		GridW:                 instGrid,
		GridInIntervalWh:      deltaGridIn,
		GridOutIntervalWh:     deltaGridOut,
		BatterySOC:            soc,
		FaultCode:             faultCode,
		FaultTimestamp:        faultTS,
		GeneratorStatus:       nil,
		SolarKwhTotal:         kwh(next.solarWh),
		LoadKwhTotal:          kwh(next.loadWh),
		BatteryInKwhTotal:     kwh(next.batteryInWh),
		BatteryOutKwhTotal:    kwh(next.batteryOutWh),
		GridInKwhTotal:        kwh(next.gridInWh),
		GridOutKwhTotal:       kwh(next.gridOutWh),
	}
	return report
}

func ptr0(i int) *int { return &i }

func kwh(wh float64) *float64 {
	v := wh / 1000
	return &v
}

func roundDelta(current, last float64) int64 {
	return int64(math.Round(current - last))
}

// cumulativeNow reads the current cumulative energy totals straight off
// the inverter set (not the ledger). Caller must hold s.mu.
func (s *Site) cumulativeNow() cumulativeSnapshot {
	var c cumulativeSnapshot
	for _, inv := range s.inverters {
		e := inv.Energy()
		c.solarWh += e.SolarWh
		c.batteryInWh += e.BatteryInWh
		c.batteryOutWh += e.BatteryOutWh
		if inv.IsMaster {
			c.gridInWh += e.GridInWh
			c.gridOutWh += e.GridOutWh
		}
	}
	c.loadWh = math.Max(0, c.solarWh+c.gridInWh+c.batteryOutWh-c.gridOutWh-c.batteryInWh)
	return c
}

// instantaneousSolarSplit sums the last applied solar sample separately for
// master and non-master inverters. Caller must hold s.mu.
func (s *Site) instantaneousSolarSplit() (masterPowerW, slavePowerW float64) {
	for _, inv := range s.inverters {
		last := inv.LastSample()
		if !last.SolarOk {
			continue
		}
		if inv.IsMaster {
			masterPowerW += last.SolarW
		} else {
			slavePowerW += last.SolarW
		}
	}
	return masterPowerW, slavePowerW
}

// splitSolarDelta apportions the minute's solar Wh delta between master
// and slave inverters in proportion to their instantaneous power, per
// §4.4's acknowledged one-minute-window approximation.
func splitSolarDelta(deltaSolar int64, masterPowerW, slavePowerW float64) (master, slave int64) {
	if deltaSolar <= 0 {
		return 0, 0
	}

	total := masterPowerW + slavePowerW
	if total <= 0 {
		return 0, 0
	}

	ratio := masterPowerW / total
	master = int64(math.Round(float64(deltaSolar) * ratio))
	slave = deltaSolar - master
	return master, slave
}
