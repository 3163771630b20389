package logger

import (
	"net/netip"
	"strconv"
	"strings"
)

const redacted = "***"

// MaskEmail keeps up to three characters of the local part and the domain.
// john.doe@example.com -> joh***@example.com
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		return redacted
	}
	if len(local) > 3 {
		local = local[:3]
	}
	return local + redacted + "@" + domain
}

// MaskIP keeps the network half of an address.
// 192.168.1.100 -> 192.168.*.*, 2001:db8:85a3::8a2e:370:7334 -> 2001:db8:85a3:0:*:*:*:*
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return redacted
	}
	addr = addr.Unmap()

	if addr.Is4() {
		b := addr.As4()
		return strconv.Itoa(int(b[0])) + "." + strconv.Itoa(int(b[1])) + ".*.*"
	}

	b := addr.As16()
	groups := make([]string, 0, 8)
	for i := 0; i < 8; i += 2 {
		groups = append(groups, strconv.FormatUint(uint64(b[i])<<8|uint64(b[i+1]), 16))
	}
	return strings.Join(groups, ":") + ":*:*:*:*"
}

// MaskString shows the first and last two characters of fingerprints and ids.
func MaskString(s string) string {
	switch n := len(s); {
	case n == 0:
		return ""
	case n <= 4:
		return redacted
	default:
		return s[:2] + redacted + s[n-2:]
	}
}
