package main

import (
	"fmt"
	"net"
)

// advertisedHost returns the address put in SIP headers: the configured
// public address, or else the first non-loopback IPv4 address of the host.
func advertisedHost(public string) (string, error) {
	if public != "" {
		return public, nil
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", fmt.Errorf("interface addresses: %w", err)
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil && !ip4.IsLoopback() {
			return ip4.String(), nil
		}
	}
	return "", fmt.Errorf("no non-loopback IPv4 address found")
}
