package origin

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// bridgeRanges are the default Docker host bridge and the compose bridge the
// worker tier uses when the application runs in a container.
var bridgeRanges = []netip.Prefix{
	netip.MustParsePrefix("172.17.0.0/24"),
	netip.MustParsePrefix("172.18.0.0/24"),
}

// Peer is the network origin of a request.
type Peer struct {
	// Direct is the address of the TCP peer.
	Direct netip.Addr
	// Forwarded is the address reported by the proxy in front of us, if any.
	Forwarded netip.Addr
}

// PeerFromRequest extracts the direct peer from RemoteAddr and the forwarded
// peer from the right-most X-Forwarded-For entry, which is the hop appended
// by the proxy closest to this server. Unparsable values yield zero addresses.
func PeerFromRequest(r *http.Request) Peer {
	peer := Peer{Direct: parseAddr(r.RemoteAddr)}
	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(xff[len(xff)-1], ",")
		for i := len(hops) - 1; i >= 0; i-- {
			if hop := strings.TrimSpace(hops[i]); hop != "" {
				peer.Forwarded = parseAddr(hop)
				break
			}
		}
	}
	return peer
}

// Local reports whether the request came from this host. A loopback peer
// relaying for a non-loopback client is not local.
func (p Peer) Local() bool {
	if !p.Direct.IsValid() || !p.Direct.IsLoopback() {
		return false
	}
	return !p.Forwarded.IsValid() || p.Forwarded.IsLoopback()
}

// Bridged reports whether the request came over a container bridge. The
// forwarded address only counts when the direct peer is a local proxy;
// X-Forwarded-For from any other peer is client-controlled.
func (p Peer) Bridged() bool {
	if inBridgeRange(p.Direct) {
		return true
	}
	return p.Direct.IsValid() && p.Direct.IsLoopback() && inBridgeRange(p.Forwarded)
}

// Policy is the trusted network policy.
type Policy struct {
	probe ContainerProbe
}

// NewPolicy builds a Policy. With a nil probe the bridge check always fails,
// which is the right behavior outside containers.
func NewPolicy(probe ContainerProbe) *Policy {
	return &Policy{probe: probe}
}

// Trusted checks the local host first; the container probe is only
// consulted for peers in a bridge range.
func (p *Policy) Trusted(peer Peer) bool {
	if peer.Local() {
		return true
	}
	if !peer.Bridged() || p.probe == nil {
		return false
	}
	return p.probe.Containerized()
}

func inBridgeRange(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	for _, prefix := range bridgeRanges {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func parseAddr(raw string) netip.Addr {
	raw = strings.TrimSpace(raw)
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}
