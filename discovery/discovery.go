// Package discovery finds reachable Fronius Gen24 devices on the locally
// attached IPv4 subnets: it primes the kernel ARP cache with a ping sweep,
// reads back the ARP table, and probes each entry's Solar API.
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/fronius-io/gen24-collector/inverter"
)

const (
	pingTimeout       = 1 * time.Second
	arpSettleDelay    = 2 * time.Second
	apiVersionTimeout = 2 * time.Second
	capabilityTimeout = 2 * time.Second
	pingQueueDepth    = 254
)

// Device is one confirmed Fronius device, ready to be handed to
// Site.AdoptDiscovered.
type Device struct {
	Serial     string
	IP         string
	Hostname   string
	MAC        string
	IsMaster   bool
	Capability inverter.Capability
	Battery    *inverter.Battery
	Meter      *inverter.Meter
}

// Pinger issues a single host-reachability probe. Production code shells
// out to the platform ping binary; tests inject a fake.
type Pinger func(ctx context.Context, ip string) bool

// ARPReader returns the current kernel ARP table as {ip, mac, hostname}
// triples. Production code shells out to arp -a/-n; tests inject a fake.
type ARPReader func(ctx context.Context) ([]ARPEntry, error)

// ARPEntry is one parsed ARP table row.
type ARPEntry struct {
	IP       string
	MAC      string
	Hostname string
}

// Discoverer runs the discovery algorithm described in §4.3: subnet
// enumeration, ping sweep, ARP readback, then Fronius confirmation probes.
type Discoverer struct {
	client    *inverter.Client
	ping      Pinger
	readARP   ARPReader
	logger    *log.Logger
}

// New returns a Discoverer using the platform ping/arp commands.
func New(logger *log.Logger) *Discoverer {
	return &Discoverer{
		client:  inverter.NewClient(apiVersionTimeout),
		ping:    systemPing,
		readARP: systemARPRead,
		logger:  logger,
	}
}

// NewWithDependencies returns a Discoverer with injected ping/ARP
// implementations, for tests.
func NewWithDependencies(client *inverter.Client, ping Pinger, readARP ARPReader, logger *log.Logger) *Discoverer {
	return &Discoverer{client: client, ping: ping, readARP: readARP, logger: logger}
}

// Discover runs the full algorithm and returns every confirmed Fronius
// device found, keyed by nothing in particular — callers must key by
// serial. Total wall-clock budget is expected to stay under 15 seconds.
func (d *Discoverer) Discover(ctx context.Context) ([]Device, error) {
	subnets, err := localIPv4Subnets()
	if err != nil {
		return nil, fmt.Errorf("discovery: enumerate interfaces: %w", err)
	}

	d.sweepSubnets(ctx, subnets)

	time.Sleep(arpSettleDelay)

	entries, err := d.readARP(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovery: read ARP table: %w", err)
	}

	return d.probeEntries(ctx, entries), nil
}

// sweepSubnets pings every host on every subnet concurrently, bounded by a
// queue of in-flight probes, to populate the kernel ARP cache.
func (d *Discoverer) sweepSubnets(ctx context.Context, subnets []netip.Prefix) {
	var wg sync.WaitGroup
	queue := make(chan struct{}, pingQueueDepth)

	for _, subnet := range subnets {
		for addr := range hostsIn(subnet) {
			ip := addr.String()
			queue <- struct{}{}
			wg.Add(1)
			go func(ip string) {
				defer wg.Done()
				defer func() { <-queue }()
				pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
				defer cancel()
				d.ping(pingCtx, ip)
			}(ip)
		}
	}
	wg.Wait()
}

// probeEntries confirms each ARP entry is a Fronius device and, for those
// that are, fetches its capability records and master/slave role.
func (d *Discoverer) probeEntries(ctx context.Context, entries []ARPEntry) []Device {
	results := make([]Device, 0, len(entries))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, entry := range entries {
		wg.Add(1)
		go func(entry ARPEntry) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, apiVersionTimeout)
			defer cancel()
			isFronius, err := d.client.ProbeAPIVersion(probeCtx, entry.IP)
			if err != nil || !isFronius {
				return
			}

			device := d.buildDevice(ctx, entry)
			mu.Lock()
			results = append(results, device)
			mu.Unlock()
		}(entry)
	}
	wg.Wait()
	return results
}

// buildDevice runs the capability probes and power-flow check for one
// confirmed Fronius host.
func (d *Discoverer) buildDevice(ctx context.Context, entry ARPEntry) Device {
	device := Device{IP: entry.IP, MAC: entry.MAC, Hostname: entry.Hostname}

	var wg sync.WaitGroup
	var capability inverter.Capability
	var serial string
	var battery *inverter.Battery
	var meter *inverter.Meter
	var isMaster bool

	wg.Add(4)
	go func() {
		defer wg.Done()
		ictx, cancel := context.WithTimeout(ctx, capabilityTimeout)
		defer cancel()
		cap, ser, err := d.client.ProbeInverterInfo(ictx, entry.IP)
		if err == nil {
			capability, serial = cap, ser
		}
	}()
	go func() {
		defer wg.Done()
		bctx, cancel := context.WithTimeout(ctx, capabilityTimeout)
		defer cancel()
		b, err := d.client.ProbeStorage(bctx, entry.IP)
		if err == nil {
			battery = b
		}
	}()
	go func() {
		defer wg.Done()
		mctx, cancel := context.WithTimeout(ctx, capabilityTimeout)
		defer cancel()
		m, err := d.client.ProbeMeter(mctx, entry.IP)
		if err == nil {
			meter = m
		}
	}()
	go func() {
		defer wg.Done()
		pctx, cancel := context.WithTimeout(ctx, capabilityTimeout)
		defer cancel()
		tmp := inverter.New("probe", entry.IP, false, inverter.Capability{}, nil, nil)
		sample, err := tmp.FetchPowerFlow(pctx, d.client)
		isMaster = err == nil && sample.LoadOk
	}()
	wg.Wait()

	if serial == "" {
		serial = fmt.Sprintf("UNKNOWN_%s", macNoColons(entry.MAC))
	}

	device.Serial = serial
	device.Capability = capability
	device.Battery = battery
	device.Meter = meter
	device.IsMaster = isMaster
	return device
}

func macNoColons(mac string) string {
	out := make([]byte, 0, len(mac))
	for i := 0; i < len(mac); i++ {
		if mac[i] != ':' {
			out = append(out, mac[i])
		}
	}
	return string(out)
}

// localIPv4Subnets enumerates non-loopback IPv4 interfaces and returns each
// one's /24 subnet, per §4.3's assumption that /24 is the deployment
// target.
func localIPv4Subnets() ([]netip.Prefix, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}

	var subnets []netip.Prefix
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil {
			continue
		}
		addr, ok := netip.AddrFromSlice(ip4)
		if !ok {
			continue
		}
		prefix := netip.PrefixFrom(addr, 24).Masked()
		subnets = append(subnets, prefix)
	}
	return subnets, nil
}

// hostsIn yields every usable host address (.1 through .254) in a /24
// prefix.
func hostsIn(prefix netip.Prefix) func(yield func(netip.Addr) bool) {
	return func(yield func(netip.Addr) bool) {
		next := prefix.Addr().Next()
		for next.IsValid() && prefix.Contains(next) && prefix.Contains(next.Next()) {
			if !yield(next) {
				return
			}
			next = next.Next()
		}
	}
}
