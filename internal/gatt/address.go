package gatt

import (
	"fmt"
	"strconv"
	"strings"
)

// Address is a 6-byte device address, stored in the byte order the dongle
// reports it (the sender field of a scan response). Equality is byte-wise.
type Address [6]byte

// String formats the address as six colon-separated hex pairs in stored
// order, e.g. "AA:BB:CC:DD:EE:FF". The result is always 17 characters.
func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// ParseAddress parses the colon-separated form produced by Address.String.
// Hex digits may be upper or lower case.
func ParseAddress(s string) (Address, error) {
	var a Address
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return a, fmt.Errorf("gatt: address %q: want 6 colon-separated groups, got %d", s, len(parts))
	}
	for i, part := range parts {
		if len(part) != 2 {
			return a, fmt.Errorf("gatt: address %q: group %d is not 2 hex digits", s, i)
		}
		v, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return a, fmt.Errorf("gatt: address %q: group %q: %w", s, part, err)
		}
		a[i] = byte(v)
	}
	return a, nil
}
