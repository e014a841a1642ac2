package media

import (
	"net"
	"strings"
)

// tunnelMarkers are interface name fragments used by VPN and overlay
// drivers (OpenVPN, TAP adapters, WireGuard, PPP, Cloudflare WARP).
var tunnelMarkers = []string{"tun", "tap", "wg", "ppp", "warp"}

var cgnatBlock = &net.IPNet{IP: net.IPv4(100, 64, 0, 0).To4(), Mask: net.CIDRMask(10, 32)}

// RestrictedNetwork reports whether an active interface looks like a VPN
// tunnel or sits in the CGNAT range, where direct peer-to-peer paths
// usually fail.
func RestrictedNetwork() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			addrs = nil
		}
		if restrictedInterface(iface.Name, addrs) {
			return true
		}
	}
	return false
}

func restrictedInterface(name string, addrs []net.Addr) bool {
	name = strings.ToLower(name)
	for _, marker := range tunnelMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}

	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip != nil && cgnatBlock.Contains(ip) {
			return true
		}
	}
	return false
}
