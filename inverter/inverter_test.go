package inverter

import (
	"testing"
	"time"
)

func TestNewConstructsIntegratorsPerCapability(t *testing.T) {
	plain := New("1", "10.0.0.1", false, Capability{}, nil, nil)
	if plain.solar == nil {
		t.Error("solar integrator must always be constructed")
	}
	if plain.battery != nil || plain.grid != nil {
		t.Error("no battery/grid integrator expected without a battery record or master role")
	}

	withBattery := New("2", "10.0.0.2", true, Capability{}, &Battery{Serial: "b1"}, nil)
	if withBattery.battery == nil {
		t.Error("battery integrator expected when a Battery record is supplied")
	}
	if withBattery.grid == nil {
		t.Error("grid integrator expected for a master inverter")
	}
}

func TestEnergyReadoutMapsDirections(t *testing.T) {
	inv := New("1", "10.0.0.1", true, Capability{}, &Battery{Serial: "b1"}, nil)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	inv.applySample(Sample{At: start, SolarW: 1000, SolarOk: true, BatteryW: -500, BatteryOk: true, GridW: 200, GridOk: true})
	inv.applySample(Sample{At: start.Add(2 * time.Second), SolarW: 1000, SolarOk: true, BatteryW: -500, BatteryOk: true, GridW: 200, GridOk: true})

	e := inv.Energy()
	if e.SolarWh <= 0 {
		t.Errorf("SolarWh = %v, want > 0", e.SolarWh)
	}
	if e.BatteryInWh <= 0 || e.BatteryOutWh != 0 {
		t.Errorf("battery energy = (in=%v out=%v), want charging only", e.BatteryInWh, e.BatteryOutWh)
	}
	if e.GridInWh <= 0 || e.GridOutWh != 0 {
		t.Errorf("grid energy = (in=%v out=%v), want import only", e.GridInWh, e.GridOutWh)
	}
}

func TestUpdateMutablePreservesIntegrators(t *testing.T) {
	inv := New("1", "10.0.0.1", false, Capability{}, nil, nil)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	inv.applySample(Sample{At: start, SolarW: 1000, SolarOk: true})
	inv.applySample(Sample{At: start.Add(2 * time.Second), SolarW: 1000, SolarOk: true})

	before := inv.Energy().SolarWh
	inv.UpdateMutable("10.0.0.99", "newhost", false)
	after := inv.Energy().SolarWh

	if before != after {
		t.Errorf("SolarWh changed across UpdateMutable: %v -> %v", before, after)
	}
	if inv.IP != "10.0.0.99" || inv.Hostname != "newhost" {
		t.Errorf("mutable fields not applied: IP=%v Hostname=%v", inv.IP, inv.Hostname)
	}
}

func TestUpdateMutableGrantsGridIntegratorOnMasterPromotion(t *testing.T) {
	inv := New("1", "10.0.0.1", false, Capability{}, nil, nil)
	inv.UpdateMutable("10.0.0.1", "", true)
	if inv.grid == nil {
		t.Error("promoting to master should construct a grid integrator")
	}
}
