package inverter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client performs the HTTP round-trips against a Fronius Gen24 Solar API.
// It holds no per-device state — callers pass the target IP on every call —
// so one Client serves every Inverter of a Site; the discoverer holds its own.
type Client struct {
	httpClient *http.Client
}

// NewClient returns a Client whose requests are bounded by timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

func (c *Client) get(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode != http.StatusOK {
		return body, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, resp.StatusCode, nil
}

// powerFlowResponse is the GetPowerFlowRealtimeData.fcgi shape, reduced to
// the fields the collector consumes.
type powerFlowResponse struct {
	Body struct {
		Data struct {
			Site struct {
				PPV          *float64 `json:"P_PV"`
				PGrid        *float64 `json:"P_Grid"`
				PAkku        *float64 `json:"P_Akku"`
				PLoad        *float64 `json:"P_Load"`
				DeviceStatus *struct {
					StatusCode int `json:"StatusCode"`
				} `json:"DeviceStatus"`
			} `json:"Site"`
			Inverters map[string]struct {
				SOC *float64 `json:"SOC"`
			} `json:"Inverters"`
		} `json:"Data"`
	} `json:"Body"`
}

// FetchPowerFlow issues GetPowerFlowRealtimeData.fcgi against ip, parses
// the response into a Sample, and integrates it into inv's accumulators.
// On transport failure a fault is recorded on the inverter and the method
// returns a non-nil error; the sample is not applied.
func (inv *Inverter) FetchPowerFlow(ctx context.Context, client *Client) (Sample, error) {
	url := fmt.Sprintf("http://%s/solar_api/v1/GetPowerFlowRealtimeData.fcgi", inv.IP)

	body, status, err := client.get(ctx, url)
	now := time.Now()
	if err != nil {
		class := ClassifyTransportError(err, status)
		inv.recordFault(faultCodeFor(class), now)
		inv.invalidateLastSample(now)
		return Sample{}, fmt.Errorf("fetch power flow for %s: %s: %w", inv.Serial, class, err)
	}

	var pf powerFlowResponse
	if err := json.Unmarshal(body, &pf); err != nil {
		return Sample{}, fmt.Errorf("decode power flow for %s: %w", inv.Serial, err)
	}

	s := Sample{At: now}
	if pf.Body.Data.Site.PPV != nil {
		s.SolarW = roundFloat(*pf.Body.Data.Site.PPV)
		s.SolarOk = true
	}
	if pf.Body.Data.Site.PAkku != nil {
		s.BatteryW = roundFloat(*pf.Body.Data.Site.PAkku)
		s.BatteryOk = true
	}
	if pf.Body.Data.Site.PGrid != nil {
		s.GridW = roundFloat(*pf.Body.Data.Site.PGrid)
		s.GridOk = true
	}
	if pf.Body.Data.Site.PLoad != nil {
		s.LoadW = roundFloat(*pf.Body.Data.Site.PLoad)
		s.LoadOk = true
	}
	for _, entry := range pf.Body.Data.Inverters {
		if entry.SOC != nil {
			s.SOC = roundTo(*entry.SOC, 1)
			s.SOCOk = true
		}
		break
	}

	if ds := pf.Body.Data.Site.DeviceStatus; ds != nil && ds.StatusCode != 7 {
		s.HasFault = true
		s.FaultCode = ds.StatusCode
		s.FaultTimestamp = now
	}

	inv.applySample(s)
	if s.HasFault {
		inv.recordFault(s.FaultCode, s.FaultTimestamp)
	} else {
		inv.clearFault()
	}
	return s, nil
}

func (inv *Inverter) recordFault(code int, at time.Time) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.last.HasFault = true
	inv.last.FaultCode = code
	inv.last.FaultTimestamp = at
}

func (inv *Inverter) clearFault() {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.last.HasFault = false
}

// invalidateLastSample marks the last-known sample's power/SOC readings as
// stale after a transport failure, so a poll round that never reached the
// device does not keep reporting its previous power contribution.
func (inv *Inverter) invalidateLastSample(at time.Time) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.last.SolarOk = false
	inv.last.BatteryOk = false
	inv.last.GridOk = false
	inv.last.LoadOk = false
	inv.last.SOCOk = false
	inv.last.At = at
}

func roundFloat(f float64) float64 {
	if f >= 0 {
		return float64(int64(f + 0.5))
	}
	return -float64(int64(-f + 0.5))
}

func roundTo(f float64, decimals int) float64 {
	mult := 1.0
	for i := 0; i < decimals; i++ {
		mult *= 10
	}
	return roundFloat(f*mult) / mult
}

// gen24DeviceTypes maps the Fronius DT field to a human model name.
var gen24DeviceTypes = map[int]string{
	1: "Gen24",
}

// inverterInfoResponse is the GetInverterInfo.cgi shape.
type inverterInfoResponse struct {
	Body struct {
		Data map[string]struct {
			DT         int    `json:"DT"`
			CustomName string `json:"CustomName"`
			UniqueID   string `json:"UniqueID"`
			PVPower    float64 `json:"PVPower"`
		} `json:"Data"`
	} `json:"Body"`
}

// ProbeInverterInfo runs GetInverterInfo.cgi. It is one of three static
// capability probes that run only during discovery, never on the polling
// path.
func (c *Client) ProbeInverterInfo(ctx context.Context, ip string) (Capability, string, error) {
	url := fmt.Sprintf("http://%s/solar_api/v1/GetInverterInfo.cgi", ip)
	body, _, err := c.get(ctx, url)
	if err != nil {
		return Capability{}, "", err
	}
	var resp inverterInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Capability{}, "", fmt.Errorf("decode inverter info: %w", err)
	}

	var serial string
	var cap Capability
	for _, entry := range resp.Body.Data {
		serial = entry.UniqueID
		model, known := gen24DeviceTypes[entry.DT]
		if !known {
			model = fmt.Sprintf("DT%d", entry.DT)
		}
		cap = Capability{Model: model, NameplateWatts: entry.PVPower, CustomName: entry.CustomName}
		break
	}
	return cap, serial, nil
}

// storageRealtimeResponse tolerates the two shapes the Solar API is known
// to emit for GetStorageRealtimeData.cgi: Body.Data["0"].Controller and
// Body.Data.Controller[0].
type storageRealtimeResponse struct {
	Body struct {
		Data json.RawMessage `json:"Data"`
	} `json:"Body"`
}

type controllerInfo struct {
	Details struct {
		Manufacturer string `json:"Manufacturer"`
		Model        string `json:"Model"`
		Serial       string `json:"Serial"`
	} `json:"Details"`
	DesignedCapacity float64 `json:"Capacity_Maximum"`
	Enable           int     `json:"Enable"`
}

// ProbeStorage runs GetStorageRealtimeData.cgi. Returns (nil, nil) when the
// device has no battery attached.
func (c *Client) ProbeStorage(ctx context.Context, ip string) (*Battery, error) {
	url := fmt.Sprintf("http://%s/solar_api/v1/GetStorageRealtimeData.cgi", ip)
	body, _, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var resp storageRealtimeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode storage data: %w", err)
	}
	if len(resp.Body.Data) == 0 {
		return nil, nil
	}

	var ctrl controllerInfo
	var found bool

	// Shape 1: Body.Data["0"].Controller
	var byIndex map[string]struct {
		Controller controllerInfo `json:"Controller"`
	}
	if err := json.Unmarshal(resp.Body.Data, &byIndex); err == nil {
		if entry, ok := byIndex["0"]; ok {
			ctrl = entry.Controller
			found = true
		}
	}

	// Shape 2: Body.Data.Controller[0]
	if !found {
		var byField struct {
			Controller []controllerInfo `json:"Controller"`
		}
		if err := json.Unmarshal(resp.Body.Data, &byField); err == nil && len(byField.Controller) > 0 {
			ctrl = byField.Controller[0]
			found = true
		}
	}

	if !found || ctrl.Details.Serial == "" {
		return nil, nil
	}

	return &Battery{
		Manufacturer: ctrl.Details.Manufacturer,
		Model:        ctrl.Details.Model,
		Serial:       ctrl.Details.Serial,
		NameplateWh:  ctrl.DesignedCapacity,
		Enabled:      ctrl.Enable != 0,
	}, nil
}

// meterRealtimeResponse is the GetMeterRealtimeData.cgi?Scope=System shape.
type meterRealtimeResponse struct {
	Body struct {
		Data map[string]struct {
			Manufacturer          string `json:"Manufacturer"`
			Model                 string `json:"Model"`
			Serial                string `json:"Serial"`
			MeterLocationCurrent  int    `json:"Meter_Location_Current"`
			Enable                int    `json:"Enable"`
		} `json:"Data"`
	} `json:"Body"`
}

// ProbeMeter runs GetMeterRealtimeData.cgi?Scope=System. Returns (nil, nil)
// when no meter is present.
func (c *Client) ProbeMeter(ctx context.Context, ip string) (*Meter, error) {
	url := fmt.Sprintf("http://%s/solar_api/v1/GetMeterRealtimeData.cgi?Scope=System", ip)
	body, _, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	var resp meterRealtimeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode meter data: %w", err)
	}

	for _, entry := range resp.Body.Data {
		m := &Meter{
			Manufacturer: entry.Manufacturer,
			Model:        entry.Model,
			Serial:       entry.Serial,
			Location:     classifyMeterLocation(entry.MeterLocationCurrent),
			Enabled:      entry.Enable != 0,
		}
		if strings.HasPrefix(m.Model, "CCS") {
			m.Manufacturer = "Continental Control Systems"
		}
		return m, nil
	}
	return nil, nil
}

func classifyMeterLocation(loc int) MeterLocation {
	switch {
	case loc == 0:
		return MeterLocationGrid
	case loc == 1:
		return MeterLocationLoad
	case loc == 3:
		return MeterLocationGenerator
	case loc >= 256 && loc <= 511:
		return MeterLocationSubload
	case loc >= 512 && loc <= 768:
		return MeterLocationEVCharger
	case loc >= 769 && loc <= 1023:
		return MeterLocationStorage
	default:
		return MeterLocationUnknown
	}
}

// apiVersionResponse is the minimal shape probed by discovery to confirm a
// host is a Fronius device.
type apiVersionResponse struct {
	APIVersion *int            `json:"APIVersion"`
	BaseURL    *string         `json:"BaseURL"`
	Body       json.RawMessage `json:"Body"`
}

// ProbeAPIVersion confirms a host is a Fronius device by GETting
// GetAPIVersion.cgi and checking for at least one of APIVersion, BaseURL,
// Body in the parsed response.
func (c *Client) ProbeAPIVersion(ctx context.Context, ip string) (bool, error) {
	url := fmt.Sprintf("http://%s/solar_api/GetAPIVersion.cgi", ip)
	body, _, err := c.get(ctx, url)
	if err != nil {
		return false, err
	}
	var resp apiVersionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, nil
	}
	return resp.APIVersion != nil || resp.BaseURL != nil || len(resp.Body) > 0, nil
}
