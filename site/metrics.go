package site

import (
	"math"
	"time"
)

// Fault is one inverter's currently-set fault code.
type Fault struct {
	Serial    string    `json:"serial"`
	Code      int       `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

// PowerEnergy pairs an optional instantaneous power with a cumulative
// energy reading; nil PowerW means "no inverter contributed this tick".
type PowerEnergy struct {
	PowerW   *float64 `json:"powerW"`
	EnergyWh float64  `json:"energyWh"`
}

// BatteryBlock adds state-of-charge to the power/energy pair.
type BatteryBlock struct {
	PowerW   *float64 `json:"powerW"`
	SOC      *float64 `json:"soc"`
	InWh     float64  `json:"inWh"`
	OutWh    float64  `json:"outWh"`
}

// GridBlock splits energy into import/export.
type GridBlock struct {
	PowerW *float64 `json:"powerW"`
	InWh   float64  `json:"inWh"`
	OutWh  float64  `json:"outWh"`
}

// SiteBlock is the aggregated, derived view of the whole premises.
type SiteBlock struct {
	Solar   PowerEnergy  `json:"solar"`
	Battery BatteryBlock `json:"battery"`
	Grid    GridBlock    `json:"grid"`
	Load    PowerEnergy  `json:"load"`
	HasFault bool        `json:"hasFault"`
	Faults   []Fault     `json:"faults"`
}

// InverterMetrics is one inverter's contribution to a SiteMetrics snapshot.
type InverterMetrics struct {
	Serial   string  `json:"serial"`
	SolarW   *float64 `json:"solarW"`
	BatteryW *float64 `json:"batteryW"`
	GridW    *float64 `json:"gridW"`
	SOC      *float64 `json:"soc"`
	Energy   InverterEnergy `json:"energy"`
}

type InverterEnergy struct {
	SolarWh      float64 `json:"solarWh"`
	BatteryInWh  float64 `json:"batteryInWh"`
	BatteryOutWh float64 `json:"batteryOutWh"`
	GridInWh     float64 `json:"gridInWh"`
	GridOutWh    float64 `json:"gridOutWh"`
}

// SiteMetrics is the per-poll aggregate: every inverter's last sample plus
// the derived site block.
type SiteMetrics struct {
	Timestamp time.Time                  `json:"timestamp"`
	Inverters map[string]InverterMetrics `json:"inverters"`
	Site      SiteBlock                  `json:"site"`
}

// Snapshot is one rolling-history entry.
type Snapshot struct {
	Timestamp time.Time
	Metrics   SiteMetrics
}

func ptr(f float64) *float64 { return &f }

// buildSiteMetrics derives the site-wide aggregate from every inverter's
// current last sample and energy readout. Caller must hold s.mu.
func (s *Site) buildSiteMetrics() SiteMetrics {
	now := time.Now()
	metrics := SiteMetrics{
		Timestamp: now,
		Inverters: make(map[string]InverterMetrics, len(s.inverters)),
	}

	var solarSum, batterySum float64
	var solarCount, batteryCount, socCount int
	var socSum float64
	var gridW *float64
	var solarWhTotal, batteryInWhTotal, batteryOutWhTotal, gridInWhTotal, gridOutWhTotal float64
	var faults []Fault

	for serial, inv := range s.inverters {
		last := inv.LastSample()
		energy := inv.Energy()

		im := InverterMetrics{
			Serial: serial,
			Energy: InverterEnergy{
				SolarWh:      energy.SolarWh,
				BatteryInWh:  energy.BatteryInWh,
				BatteryOutWh: energy.BatteryOutWh,
				GridInWh:     energy.GridInWh,
				GridOutWh:    energy.GridOutWh,
			},
		}
		solarWhTotal += energy.SolarWh

		if last.SolarOk {
			im.SolarW = ptr(last.SolarW)
			solarSum += last.SolarW
			solarCount++
		}
		if inv.HasBattery && last.BatteryOk {
			im.BatteryW = ptr(last.BatteryW)
			batterySum += last.BatteryW
			batteryCount++
			batteryInWhTotal += energy.BatteryInWh
			batteryOutWhTotal += energy.BatteryOutWh
		}
		if last.SOCOk {
			im.SOC = ptr(last.SOC)
			socSum += last.SOC
			socCount++
		}
		if inv.IsMaster && last.GridOk {
			im.GridW = ptr(last.GridW)
			gridW = ptr(last.GridW)
			gridInWhTotal = energy.GridInWh
			gridOutWhTotal = energy.GridOutWh
		}

		if last.HasFault {
			faults = append(faults, Fault{Serial: serial, Code: last.FaultCode, Timestamp: last.FaultTimestamp})
		}

		metrics.Inverters[serial] = im
	}

	site := SiteBlock{
		Solar:   PowerEnergy{EnergyWh: solarWhTotal},
		Battery: BatteryBlock{InWh: batteryInWhTotal, OutWh: batteryOutWhTotal},
		Grid:    GridBlock{InWh: gridInWhTotal, OutWh: gridOutWhTotal},
		Load:    PowerEnergy{},
	}
	if solarCount > 0 {
		site.Solar.PowerW = ptr(solarSum)
	}
	if batteryCount > 0 {
		site.Battery.PowerW = ptr(batterySum)
	}
	if socCount > 0 {
		site.Battery.SOC = ptr(socSum / float64(socCount))
	}
	site.Grid.PowerW = gridW

	site.Load.PowerW = computeLoadPower(site.Solar.PowerW, site.Grid.PowerW, site.Battery.PowerW)
	site.Load.EnergyWh = math.Max(0, solarWhTotal+gridInWhTotal+batteryOutWhTotal-gridOutWhTotal-batteryInWhTotal)

	site.Faults = faults
	site.HasFault = len(faults) > 0

	metrics.Site = site
	return metrics
}

// computeLoadPower implements site.load.powerW = max(0, round(solar +
// grid + battery)), treating any missing term as zero, and returns nil
// only if none of the three terms contributed.
func computeLoadPower(solar, grid, battery *float64) *float64 {
	if solar == nil && grid == nil && battery == nil {
		return nil
	}
	var sum float64
	if solar != nil {
		sum += *solar
	}
	if grid != nil {
		sum += *grid
	}
	if battery != nil {
		sum += *battery
	}
	return ptr(math.Max(0, math.Round(sum)))
}
