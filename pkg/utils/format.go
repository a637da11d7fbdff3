package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatFileSize renders a byte count with a binary unit suffix.
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}

// ParseAddress parses a sector address in decimal, 0x hex or 0o/0b form.
func ParseAddress(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return uint32(v), nil
}

// ParseSize parses a byte count. It accepts the same bases as ParseAddress
// and an optional K, M or G suffix (powers of 1024).
func ParseSize(s string) (uint64, error) {
	str := strings.ToUpper(strings.TrimSpace(s))

	mult := uint64(1)
	// Hex digits overlap the suffix letters, so hex takes no suffix.
	if !strings.HasPrefix(str, "0X") {
		str = strings.TrimSuffix(str, "B")
		str = strings.TrimSuffix(str, "I")
		switch {
		case strings.HasSuffix(str, "K"):
			mult = 1 << 10
		case strings.HasSuffix(str, "M"):
			mult = 1 << 20
		case strings.HasSuffix(str, "G"):
			mult = 1 << 30
		}
		if mult != 1 {
			str = str[:len(str)-1]
		}
	}

	v, err := strconv.ParseUint(str, 0, 64)
	if err != nil || str == "" {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if v > ^uint64(0)/mult {
		return 0, fmt.Errorf("size %q overflows", s)
	}
	return v * mult, nil
}
