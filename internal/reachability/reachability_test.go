package reachability

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

const arpTable = `IP address       HW type     Flags       HW address            Mask     Device
192.168.1.1      0x1         0x2         AA:BB:CC:DD:EE:FF     *        eth0
192.168.1.20     0x1         0x0         00:00:00:00:00:00     *        eth0
192.168.1.30     0x1         0x2         not-a-mac             *        eth0
`

func TestLookupMAC(t *testing.T) {
	tests := []struct {
		ip      string
		wantMAC string
		wantOK  bool
	}{
		{ip: "192.168.1.1", wantMAC: "aa:bb:cc:dd:ee:ff", wantOK: true},
		{ip: "192.168.1.20", wantOK: false},
		{ip: "192.168.1.30", wantOK: false},
		{ip: "192.168.1.99", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			mac, ok := LookupMAC(strings.NewReader(arpTable), tt.ip)
			if ok != tt.wantOK || mac != tt.wantMAC {
				t.Errorf("LookupMAC(%s) = %q, %v, want %q, %v", tt.ip, mac, ok, tt.wantMAC, tt.wantOK)
			}
		})
	}
}

func TestARP_Probe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arp")
	if err := os.WriteFile(path, []byte(arpTable), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	a := ARP{Table: path, Settle: time.Millisecond}

	if !a.Probe(context.Background(), "192.168.1.1") {
		t.Error("Probe(192.168.1.1) = false, want true")
	}
	if a.Probe(context.Background(), "192.168.1.20") {
		t.Error("Probe(192.168.1.20) = true, want false")
	}
}

type scriptedProber struct {
	mu      sync.Mutex
	results []bool
}

func (s *scriptedProber) Probe(context.Context, string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return false
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r
}

func TestWatch(t *testing.T) {
	p := &scriptedProber{results: []bool{true, true, false}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seen []bool
	done := make(chan struct{})
	go func() {
		Watch(ctx, p, "10.0.0.1", 2*time.Millisecond, func(up bool) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, up)
			if len(seen) == 3 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch() did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 || !seen[0] || !seen[1] || seen[2] {
		t.Errorf("results = %v, want [true true false]", seen)
	}
}
