package server

import (
	"fmt"
	"net"
	"os"
	"strings"
)

// HostIPMode selects how ResolveHostIP picks the tracker's advertised
// address (spec.md §4.H).
type HostIPMode string

const (
	// HostIPAuto resolves the FQDN to an address, falling back to the
	// plain hostname and then a UDP-probe trick if that address is a
	// loopback.
	HostIPAuto HostIPMode = "auto"
	// HostIPIP is an alias for HostIPAuto, matching the source
	// tracker's "ip" mode.
	HostIPIP HostIPMode = "ip"
	// HostIPDNS returns the resolved FQDN string itself rather than an
	// address.
	HostIPDNS HostIPMode = "dns"
)

// ResolveHostIP implements the host-IP auto-resolution fallback chain:
// FQDN lookup, then hostname lookup, then a UDP-connect-to-broadcast
// trick to find a non-loopback local address, matching utils.py's
// basic_tracker_config.
func ResolveHostIP(mode HostIPMode) (string, error) {
	if mode == HostIPDNS {
		return fqdn()
	}

	addr, err := resolveViaFQDN()
	if err != nil {
		addr, err = resolveViaHostname()
		if err != nil {
			return "", fmt.Errorf("resolve host ip: gethostbyname(fqdn) and gethostname() both failed: %w", err)
		}
	}

	if strings.HasPrefix(addr, "127.") {
		return probeOrFallback(addr)
	}
	return addr, nil
}

func resolveViaFQDN() (string, error) {
	name, err := fqdn()
	if err != nil {
		return "", err
	}
	return firstAddr(name)
}

func resolveViaHostname() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", err
	}
	return firstAddr(hostname)
}

func fqdn() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", err
	}
	cname, err := net.LookupCNAME(hostname)
	if err != nil || cname == "" {
		return hostname, nil
	}
	return strings.TrimSuffix(cname, "."), nil
}

func firstAddr(host string) (string, error) {
	addrs, err := net.LookupHost(host)
	if err != nil || len(addrs) == 0 {
		return "", fmt.Errorf("lookup %q: %w", host, err)
	}
	return addrs[0], nil
}

// probeOrFallback tries the UDP-probe trick for a non-loopback local
// address and falls back to the loopback address if probing fails.
func probeOrFallback(loopback string) (string, error) {
	if addr, err := probeLocalAddr(); err == nil {
		return addr, nil
	}
	return loopback, nil
}

// probeLocalAddr opens a UDP socket "connected" to a non-routable
// broadcast address and reads back the local endpoint the OS picked:
// the standard trick for finding the outbound-facing local address
// without sending any traffic.
func probeLocalAddr() (string, error) {
	conn, err := net.Dial("udp", "10.255.255.255:1")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected local addr type %T", conn.LocalAddr())
	}
	return addr.IP.String(), nil
}

// ProbePort binds a UDP probe socket to (hostIP, 0) and returns the
// port the OS assigned, matching the original's probe-then-bind
// sequencing for port -1 ("pick any free port").
func ProbePort(hostIP string) (int, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(hostIP), Port: 0})
	if err != nil {
		return 0, fmt.Errorf("probe free port: %w", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return 0, fmt.Errorf("unexpected local addr type %T", conn.LocalAddr())
	}
	return addr.Port, nil
}
