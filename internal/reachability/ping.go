package reachability

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const (
	defaultPingTimeout = time.Second
	protocolICMP       = 1
)

var echoSeq atomic.Uint32

// Prober reports whether address currently answers.
type Prober interface {
	Probe(ctx context.Context, address string) bool
}

// Pinger probes with a single ICMP echo request.
type Pinger struct {
	// Timeout bounds the wait for a reply. Zero means one second.
	Timeout time.Duration

	// Privileged uses a raw socket instead of an unprivileged datagram
	// socket. Raw sockets need CAP_NET_RAW.
	Privileged bool
}

// Probe implements Prober.
func (p Pinger) Probe(ctx context.Context, address string) bool {
	ok, err := p.ping(ctx, address)
	return err == nil && ok
}

func (p Pinger) ping(ctx context.Context, address string) (bool, error) {
	network := "udp4"
	if p.Privileged {
		network = "ip4:icmp"
	}

	conn, err := icmp.ListenPacket(network, "0.0.0.0")
	if err != nil {
		return false, fmt.Errorf("opening icmp socket: %w", err)
	}
	defer conn.Close()

	dst, err := net.ResolveIPAddr("ip4", address)
	if err != nil {
		return false, fmt.Errorf("resolving %s: %w", address, err)
	}

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   os.Getpid() & 0xffff,
			Seq:  int(echoSeq.Add(1) & 0xffff),
			Data: []byte("irbridge"),
		},
	}
	wire, err := msg.Marshal(nil)
	if err != nil {
		return false, fmt.Errorf("encoding echo: %w", err)
	}

	var target net.Addr = dst
	if !p.Privileged {
		target = &net.UDPAddr{IP: dst.IP}
	}
	if _, err := conn.WriteTo(wire, target); err != nil {
		return false, fmt.Errorf("sending echo: %w", err)
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return false, err
	}

	buf := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			return false, err
		}
		reply, err := icmp.ParseMessage(protocolICMP, buf[:n])
		if err != nil {
			continue
		}
		if reply.Type == ipv4.ICMPTypeEchoReply && samePeer(peer, dst.IP) {
			return true, nil
		}
	}
}

func samePeer(peer net.Addr, ip net.IP) bool {
	switch a := peer.(type) {
	case *net.UDPAddr:
		return a.IP.Equal(ip)
	case *net.IPAddr:
		return a.IP.Equal(ip)
	default:
		return false
	}
}
