package ratelimit

import (
	"net"
	"strings"
)

// ResolveClientIdentity returns the identity a request is rate limited under.
//
// In a trusted local context the transport peer address is used (without its
// port). Everywhere else the address forwarded by the trusted proxy is
// required; when it is missing ErrClientIdentityMissing is returned and the
// request must not be served, since any placeholder identity would let
// clients share or dodge each other's quota.
func ResolveClientIdentity(peer, trustedHeader string, trustedContext bool) (string, error) {
	if trustedContext && peer != "" {
		return peerHost(peer), nil
	}

	identity := strings.TrimSpace(trustedHeader)
	if identity == "" {
		return "", ErrClientIdentityMissing
	}
	return identity, nil
}

// RateLimitKey joins a client identity and a route identifier.
func RateLimitKey(clientIdentity, routeID string) string {
	return clientIdentity + routeID
}

func peerHost(peer string) string {
	host, _, err := net.SplitHostPort(peer)
	if err != nil {
		return peer
	}
	return host
}
