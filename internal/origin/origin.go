// Package origin decides whether an inbound request was produced by the
// worker-tier queue daemon and whether that claim can be believed.
//
// The User-Agent claim is only a routing hint. Trust comes from network
// topology: the peer must be the local host, or the container host bridge
// when the process runs inside a container.
package origin

import (
	"errors"
	"net/http"
)

// DaemonUserAgentPrefix is the literal every daemon User-Agent starts with,
// e.g. "aws-sqsd/2.4".
const DaemonUserAgentPrefix = "aws-sqsd"

// ErrUntrustedOrigin is reported when a request claims daemon origin from a
// peer outside the trusted network policy.
var ErrUntrustedOrigin = errors.New("daemon claim from untrusted peer")

// Result is the outcome of classifying one request.
type Result int

const (
	// NotDaemonTraffic requests go to the application unchanged.
	NotDaemonTraffic Result = iota
	// UntrustedOrigin requests carry a daemon claim the network policy rejects.
	UntrustedOrigin
	// Accepted requests carry a daemon claim from a trusted peer.
	Accepted
)

func (r Result) String() string {
	switch r {
	case NotDaemonTraffic:
		return "not_daemon_traffic"
	case UntrustedOrigin:
		return "untrusted_origin"
	case Accepted:
		return "accepted"
	default:
		return "unknown"
	}
}

// Switch reports whether daemon request processing is enabled. It is
// consulted on every request, so implementations must be cheap and safe for
// concurrent use.
type Switch interface {
	Enabled() bool
}

// Classifier runs the daemon-claim test and the network trust gate.
type Classifier struct {
	enabled Switch
	policy  *Policy
}

// NewClassifier builds a Classifier. A nil Switch means always enabled.
func NewClassifier(enabled Switch, policy *Policy) *Classifier {
	return &Classifier{enabled: enabled, policy: policy}
}

// Classify inspects the request metadata only; it never touches the body.
func (c *Classifier) Classify(r *http.Request) Result {
	if c.enabled != nil && !c.enabled.Enabled() {
		return NotDaemonTraffic
	}
	if !ClaimsDaemon(r.Header.Get("User-Agent")) {
		return NotDaemonTraffic
	}
	if c.policy == nil || !c.policy.Trusted(PeerFromRequest(r)) {
		return UntrustedOrigin
	}
	return Accepted
}

// ClaimsDaemon compares the leading bytes of userAgent with the daemon
// prefix. The comparison is case-sensitive.
func ClaimsDaemon(userAgent string) bool {
	n := len(DaemonUserAgentPrefix)
	return len(userAgent) >= n && userAgent[:n] == DaemonUserAgentPrefix
}
