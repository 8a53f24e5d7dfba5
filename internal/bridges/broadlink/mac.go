package broadlink

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// NormalizeMAC lowercases a MAC address and inserts colons into a bare
// 12-digit form.
//
//	NormalizeMAC("34EA34E7D728")      // "34:ea:34:e7:d7:28"
//	NormalizeMAC("34-EA-34-E7-D7-28") // "34:ea:34:e7:d7:28"
func NormalizeMAC(mac string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(mac))
	s = strings.ReplaceAll(s, "-", ":")

	if len(s) == 12 && !strings.Contains(s, ":") {
		var b strings.Builder
		for i := 0; i < 12; i += 2 {
			if i > 0 {
				b.WriteByte(':')
			}
			b.WriteString(s[i : i+2])
		}
		s = b.String()
	}

	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return "", fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}
	for _, p := range parts {
		if len(p) != 2 {
			return "", fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
		}
		if _, err := hex.DecodeString(p); err != nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
		}
	}
	return s, nil
}
