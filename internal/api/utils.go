package api

import (
	"fmt"
	"net"
	"net/http"
)

// extractClientIP returns the requesting client's address, honoring
// X-Forwarded-For when a proxy sits in front of the service.
func extractClientIP(r *http.Request) (string, error) {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip, nil
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "", fmt.Errorf("unable to parse remote address: %w", err)
	}
	return ip, nil
}
