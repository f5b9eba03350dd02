package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fronius-io/gen24-collector/inverter"
)

func TestParseARPOutputLinux(t *testing.T) {
	out := "Address                  HWtype  HWaddress           Flags Mask            Iface\n" +
		"192.168.1.5              ether   AA:BB:CC:DD:EE:FF   C                     eth0\n"
	entries := parseARPOutput(out)
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].IP != "192.168.1.5" || entries[0].MAC != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestParseARPOutputBSD(t *testing.T) {
	out := "? (192.168.1.5) at aa:bb:cc:dd:ee:ff on en0 ifscope [ethernet]\n" +
		"myhost.local (192.168.1.6) at 11:22:33:44:55:66 on en0 ifscope [ethernet]\n"
	entries := parseARPOutput(out)
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Hostname != "" {
		t.Errorf("Hostname = %q, want empty for \"?\"", entries[0].Hostname)
	}
	if entries[1].Hostname != "myhost.local" {
		t.Errorf("Hostname = %q, want myhost.local", entries[1].Hostname)
	}
}

func TestDiscoverConfirmsFroniusAndAssignsMaster(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "GetAPIVersion"):
			w.Write([]byte(`{"APIVersion":1,"BaseURL":"/solar_api/v1/"}`))
		case strings.Contains(r.URL.Path, "GetInverterInfo"):
			w.Write([]byte(`{"Body":{"Data":{"1":{"DT":1,"CustomName":"Roof","UniqueID":"SN123"}}}}`))
		case strings.Contains(r.URL.Path, "GetStorageRealtimeData"):
			w.Write([]byte(`{"Body":{"Data":{}}}`))
		case strings.Contains(r.URL.Path, "GetMeterRealtimeData"):
			w.Write([]byte(`{"Body":{"Data":{}}}`))
		case strings.Contains(r.URL.Path, "GetPowerFlowRealtimeData"):
			w.Write([]byte(`{"Body":{"Data":{"Site":{"P_PV":1000,"P_Load":-900}}}}`))
		}
	}))
	defer srv.Close()

	addr := srv.Listener.Addr().String()
	ip := strings.Split(addr, ":")[0]

	readARP := func(ctx context.Context) ([]ARPEntry, error) {
		return []ARPEntry{{IP: addr, MAC: "aa:bb:cc:dd:ee:ff"}}, nil
	}
	noopPing := func(ctx context.Context, ip string) bool { return true }

	d := NewWithDependencies(inverter.NewClient(2*time.Second), noopPing, readARP, nil)
	// override the port-less IP used in buildDevice's capability probes by
	// using the full host:port address consistently (httptest gives us a
	// loopback address with an explicit port, which is what d.client hits).
	devices := d.probeEntries(t.Context(), []ARPEntry{{IP: addr, MAC: "aa:bb:cc:dd:ee:ff"}})

	if len(devices) != 1 {
		t.Fatalf("len(devices) = %d, want 1", len(devices))
	}
	got := devices[0]
	if got.Serial != "SN123" {
		t.Errorf("Serial = %q, want SN123", got.Serial)
	}
	if !got.IsMaster {
		t.Errorf("IsMaster = false, want true (P_Load present)")
	}
	_ = ip
}

func TestDiscoverSkipsNonFroniusHosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	d := NewWithDependencies(inverter.NewClient(2*time.Second), nil, nil, nil)
	devices := d.probeEntries(t.Context(), []ARPEntry{{IP: srv.Listener.Addr().String()}})
	if len(devices) != 0 {
		t.Errorf("len(devices) = %d, want 0 for a non-Fronius host", len(devices))
	}
}

func TestUnknownSerialFallsBackToMAC(t *testing.T) {
	got := macNoColons("aa:bb:cc:dd:ee:ff")
	want := "aabbccddeeff"
	if got != want {
		t.Errorf("macNoColons() = %q, want %q", got, want)
	}
}
