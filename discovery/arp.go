package discovery

import (
	"bufio"
	"context"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
)

// systemPing shells out to the platform ping binary for a single
// reachability probe. The result is discarded on failure — a ping is only
// used to prime the kernel ARP cache, never to decide anything directly.
func systemPing(ctx context.Context, ip string) bool {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.CommandContext(ctx, "ping", "-n", "1", "-w", "1000", ip)
	case "darwin":
		cmd = exec.CommandContext(ctx, "ping", "-c", "1", "-t", "1", ip)
	default:
		cmd = exec.CommandContext(ctx, "ping", "-c", "1", "-W", "1", ip)
	}
	return cmd.Run() == nil
}

// arpLineLinux matches a Linux `arp -n` row, e.g.:
// "192.168.1.5      ether   aa:bb:cc:dd:ee:ff   C   eth0"
var arpLineLinux = regexp.MustCompile(`^(\d+\.\d+\.\d+\.\d+)\s+\S+\s+([0-9a-fA-F:]{17})\s`)

// arpLineBSD matches a macOS/BSD `arp -a` row, e.g.:
// "? (192.168.1.5) at aa:bb:cc:dd:ee:ff on en0 ifscope [ethernet]"
var arpLineBSD = regexp.MustCompile(`^(\S*)\s*\((\d+\.\d+\.\d+\.\d+)\) at ([0-9a-fA-F:]{17})`)

// systemARPRead reads the platform ARP table: `arp -n` on Linux, `arp -a`
// on macOS/Windows.
func systemARPRead(ctx context.Context) ([]ARPEntry, error) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.CommandContext(ctx, "arp", "-n")
	default:
		cmd = exec.CommandContext(ctx, "arp", "-a")
	}

	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	return parseARPOutput(string(out)), nil
}

// parseARPOutput handles the Linux `arp -n` and macOS/BSD `arp -a` formats.
// Windows `arp -a` rows (dash-separated MACs, no parentheses) match neither
// pattern and are skipped.
func parseARPOutput(output string) []ARPEntry {
	var entries []ARPEntry
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if m := arpLineLinux.FindStringSubmatch(line); m != nil {
			entries = append(entries, ARPEntry{IP: m[1], MAC: normalizeMAC(m[2])})
			continue
		}
		if m := arpLineBSD.FindStringSubmatch(line); m != nil {
			hostname := m[1]
			if hostname == "?" {
				hostname = ""
			}
			entries = append(entries, ARPEntry{IP: m[2], MAC: normalizeMAC(m[3]), Hostname: hostname})
			continue
		}
	}
	return entries
}

func normalizeMAC(mac string) string {
	return strings.ToLower(mac)
}
