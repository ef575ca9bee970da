package utils

import (
	"testing"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		wantErr  bool
	}{
		// Plain bytes
		{"0", 0, false},
		{"1024", 1024, false},
		{"100B", 100, false},
		{" 512 ", 512, false},

		// Decimal units
		{"1KB", 1000, false},
		{"1.5KB", 1500, false},
		{"2MB", 2000000, false},
		{"1GB", 1000000000, false},

		// Binary units
		{"1K", 1024, false},
		{"1KiB", 1024, false},
		{"1.5KiB", 1536, false},
		{"8M", 8388608, false},
		{"8MiB", 8388608, false},
		{"1GiB", 1073741824, false},

		// Case and spacing
		{"64 kib", 65536, false},
		{"10 mb", 10000000, false},

		// Invalid
		{"", 0, true},
		{"abc", 0, true},
		{"-5MB", 0, true},
		{"1.2.3MB", 0, true},
		{"5XB", 0, true},
		{"MB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && result != tt.expected {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{-1, "invalid"},
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1 KiB"},
		{1536, "1.5 KiB"},
		{8 * MegaByte, "8 MiB"},
		{GigaByte + GigaByte/4, "1.25 GiB"},
		{2048 * GigaByte, "2048 GiB"},
	}

	for _, tt := range tests {
		if got := FormatSize(tt.bytes); got != tt.expected {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.bytes, got, tt.expected)
		}
	}
}

func TestSizeRoundTrip(t *testing.T) {
	for _, s := range []string{"1KiB", "8MiB", "3GiB"} {
		n, err := ParseSize(s)
		if err != nil {
			t.Fatalf("ParseSize(%q): %v", s, err)
		}
		back, err := ParseSize(FormatSize(n))
		if err != nil || back != n {
			t.Errorf("round trip of %q gave %d (%v), want %d", s, back, err, n)
		}
	}
}
