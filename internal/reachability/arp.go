package reachability

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"regexp"
	"strings"
	"time"
)

// DefaultARPTable is the kernel's IPv4 neighbour table.
const DefaultARPTable = "/proc/net/arp"

var macPattern = regexp.MustCompile(`^([0-9a-f]{2}:){5}[0-9a-f]{2}$`)

// ARP probes by looking the host up in the neighbour table. A host is up
// when it has a complete entry with a valid hardware address.
type ARP struct {
	// Table overrides DefaultARPTable.
	Table string

	// Settle is how long to wait after nudging the host before reading the
	// table. Zero means 100ms.
	Settle time.Duration
}

// Probe implements Prober.
func (a ARP) Probe(ctx context.Context, address string) bool {
	nudge(address)

	settle := a.Settle
	if settle <= 0 {
		settle = 100 * time.Millisecond
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(settle):
	}

	table := a.Table
	if table == "" {
		table = DefaultARPTable
	}
	f, err := os.Open(table)
	if err != nil {
		return false
	}
	defer f.Close()

	_, ok := LookupMAC(f, address)
	return ok
}

// LookupMAC scans an ARP table in /proc/net/arp format for ip and returns
// its hardware address when the entry is complete and well formed.
func LookupMAC(r io.Reader, ip string) (string, bool) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[0] != ip {
			continue
		}
		mac := strings.ToLower(fields[3])
		if fields[2] == "0x0" || mac == "00:00:00:00:00:00" || !macPattern.MatchString(mac) {
			return "", false
		}
		return mac, true
	}
	return "", false
}

// nudge sends one datagram to the discard port so the kernel resolves the
// host's hardware address.
func nudge(address string) {
	conn, err := net.DialTimeout("udp4", net.JoinHostPort(address, "9"), 200*time.Millisecond)
	if err != nil {
		return
	}
	defer conn.Close()
	_, _ = conn.Write([]byte{0})
}
