package httpapi

import (
	"net/http"
	"sort"

	"github.com/fronius-io/gen24-collector/collector"
	"github.com/fronius-io/gen24-collector/inverter"
)

// deviceRecord is one inverter's identity, capability, and energy-counter
// block as rendered on /api/status.
type deviceRecord struct {
	Serial     string  `json:"serial"`
	IP         string  `json:"ip"`
	Hostname   string  `json:"hostname,omitempty"`
	IsMaster   bool    `json:"isMaster"`
	Model      string  `json:"model"`
	CustomName string  `json:"customName,omitempty"`

	HasBattery bool   `json:"hasBattery"`
	HasMeter   bool   `json:"hasMeter"`

	EnergyWh deviceEnergy `json:"energy"`
}

type deviceEnergy struct {
	SolarWh      float64 `json:"solarWh"`
	BatteryInWh  float64 `json:"batteryInWh"`
	BatteryOutWh float64 `json:"batteryOutWh"`
	GridInWh     float64 `json:"gridInWh"`
	GridOutWh    float64 `json:"gridOutWh"`
}

func buildDeviceRecord(inv *inverter.Inverter) deviceRecord {
	e := inv.Energy()
	return deviceRecord{
		Serial:     inv.Serial,
		IP:         inv.IP,
		Hostname:   inv.Hostname,
		IsMaster:   inv.IsMaster,
		Model:      inv.Capability.Model,
		CustomName: inv.Capability.CustomName,
		HasBattery: inv.HasBattery,
		HasMeter:   inv.HasMeter,
		EnergyWh: deviceEnergy{
			SolarWh:      e.SolarWh,
			BatteryInWh:  e.BatteryInWh,
			BatteryOutWh: e.BatteryOutWh,
			GridInWh:     e.GridInWh,
			GridOutWh:    e.GridOutWh,
		},
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	inverters := s.collector.Site().Inverters()
	sort.Slice(inverters, func(i, j int) bool { return inverters[i].Serial < inverters[j].Serial })

	devices := make([]deviceRecord, 0, len(inverters))
	for _, inv := range inverters {
		devices = append(devices, buildDeviceRecord(inv))
	}

	var lastScan any
	if t, ok := s.collector.LastScanAt(); ok {
		lastScan = t.Format(localOffsetFormat)
	}

	body := map[string]any{
		"success":     true,
		"deviceCount": s.collector.Site().DeviceCount(),
		"lastScan":    lastScan,
		"isScanning":  s.collector.IsScanning(),
		"devices":     devices,
		"site":        s.collector.Site().LastMetrics(),
	}
	if s.config.HasSunInfo {
		body["sun"] = collector.ComputeSunInfo(s.config.Latitude, s.config.Longitude)
	}

	writeJSON(w, http.StatusOK, body)
}

// historyPoint is one rolling-history sample for a single inverter, as
// rendered on /api/history.
type historyPoint struct {
	Timestamp string   `json:"timestamp"`
	Solar     *float64 `json:"solar"`
	Battery   *float64 `json:"battery"`
	Grid      *float64 `json:"grid"`
	Load      *float64 `json:"load"`
	SOC       *float64 `json:"soc"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	snapshots := s.collector.Site().History()

	out := make(map[string][]historyPoint)
	for _, snap := range snapshots {
		ts := snap.Timestamp.Format(localOffsetFormat)
		for serial, im := range snap.Metrics.Inverters {
			out[serial] = append(out[serial], historyPoint{
				Timestamp: ts,
				Solar:     im.SolarW,
				Battery:   im.BatteryW,
				Grid:      im.GridW,
				SOC:       im.SOC,
			})
		}
		if loadW := snap.Metrics.Site.Load.PowerW; loadW != nil {
			out["site"] = append(out["site"], historyPoint{
				Timestamp: ts,
				Solar:     snap.Metrics.Site.Solar.PowerW,
				Battery:   snap.Metrics.Site.Battery.PowerW,
				Grid:      snap.Metrics.Site.Grid.PowerW,
				Load:      loadW,
				SOC:       snap.Metrics.Site.Battery.SOC,
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "history": out})
}
