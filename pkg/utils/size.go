package utils

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Byte size units. The short forms K, M and G are binary.
const (
	Byte     int64 = 1
	KiloByte int64 = 1024
	MegaByte int64 = 1024 * KiloByte
	GigaByte int64 = 1024 * MegaByte
)

var sizeUnits = map[string]int64{
	"":    Byte,
	"B":   Byte,
	"KB":  1000,
	"MB":  1000 * 1000,
	"GB":  1000 * 1000 * 1000,
	"K":   KiloByte,
	"KIB": KiloByte,
	"M":   MegaByte,
	"MIB": MegaByte,
	"G":   GigaByte,
	"GIB": GigaByte,
}

// ParseSize parses sizes like "512", "64KB", "1.5MiB" or "8M" into bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	split := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})
	number, unit := s, ""
	if split >= 0 {
		number, unit = s[:split], strings.TrimSpace(s[split:])
	}

	value, err := strconv.ParseFloat(number, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	multiplier, ok := sizeUnits[strings.ToUpper(unit)]
	if !ok {
		return 0, fmt.Errorf("unknown size unit %q in %q (use B, KB, MB, GB, KiB, MiB or GiB)", unit, s)
	}

	bytes := value * float64(multiplier)
	if bytes > float64(1<<62) {
		return 0, fmt.Errorf("size %q is too large", s)
	}
	return int64(bytes), nil
}

// FormatSize renders bytes with a binary unit, e.g. "8 MiB" or "1.5 KiB".
func FormatSize(bytes int64) string {
	if bytes < 0 {
		return "invalid"
	}
	if bytes < KiloByte {
		return fmt.Sprintf("%d B", bytes)
	}

	units := []string{"KiB", "MiB", "GiB"}
	value := float64(bytes) / float64(KiloByte)
	i := 0
	for value >= 1024 && i < len(units)-1 {
		value /= 1024
		i++
	}
	switch {
	case value == float64(int64(value)):
		return fmt.Sprintf("%.0f %s", value, units[i])
	case value*10 == float64(int64(value*10)):
		return fmt.Sprintf("%.1f %s", value, units[i])
	default:
		return fmt.Sprintf("%.2f %s", value, units[i])
	}
}
