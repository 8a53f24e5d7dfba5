// Package reachability detects whether a network host is up, for switches
// whose on/off state follows a device on the LAN (a TV, a media player).
//
// Two probes are provided: an ICMP echo using unprivileged datagram sockets
// where the kernel allows them, and an ARP table lookup for hosts that drop
// ICMP. Watch polls a probe at a fixed frequency and reports each result.
package reachability
