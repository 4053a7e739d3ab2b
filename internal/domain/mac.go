package domain

import (
	"fmt"
	"net"
	"strings"
)

// CanonicalMAC normalizes a hardware address to lowercase colon-hex
// form. Inputs in hyphen ("AA-BB-..") or dotted ("aabb.ccdd.eeff")
// notation are accepted. Only 48-bit addresses are valid; anything
// else is rejected so two spellings of the same address can never
// coexist as distinct keys.
func CanonicalMAC(s string) (string, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid mac address %q: %w", s, err)
	}
	if len(hw) != 6 {
		return "", fmt.Errorf("invalid mac address %q: not a 48-bit address", s)
	}
	return hw.String(), nil
}
