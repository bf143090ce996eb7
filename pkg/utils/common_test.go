package utils

import (
	"errors"
	"testing"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		input string
		want  uint64
	}{
		{"2T", 2199023255552},
		{"1907729 MB", 2000398843904},
		{"512 MB", 536870912},
		{"1.5K", 1536},
		{"4096", 4096},
		{"", 0},
		{"N/A", 0},
		{"abc GB", 0},
	}

	for _, tt := range tests {
		if got := ParseSize(tt.input); got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

// TestParseSizeMatchesKernelBytes pins the conversion against real pairs of
// controller strings and the byte-exact size lsblk reports for the same
// drive. The reconciler's 1% tolerance depends on this staying tight.
func TestParseSizeMatchesKernelBytes(t *testing.T) {
	tests := []struct {
		reported string
		kernel   uint64
	}{
		{"931.512 GB", 1000204886016}, // 1 TB HDD, storcli PD LIST
		{"1.819 TB", 2000398934016},   // 2 TB HDD, storcli PD LIST
		{"446.102 GB", 480103981056},  // 480 GB SSD, storcli PD LIST
		{"1907729 MB", 2000398934016}, // 2 TB HDD, sas3ircu display
	}

	for _, tt := range tests {
		got := ParseSize(tt.reported)
		if got == 0 {
			t.Errorf("ParseSize(%q) = 0", tt.reported)
			continue
		}

		diff := float64(tt.kernel) - float64(got)
		if diff < 0 {
			diff = -diff
		}
		if diff/float64(tt.kernel) > 0.005 {
			t.Errorf("ParseSize(%q) = %d, off by %.2f%% from kernel size %d",
				tt.reported, got, 100*diff/float64(tt.kernel), tt.kernel)
		}
	}
}

func TestHumanSize(t *testing.T) {
	tests := []struct {
		bytes uint64
		want  string
	}{
		{1800000000000, "1.8 TB"},
		{931512000000, "931.5 GB"},
		{512, "512 B"},
		{0, "0 B"},
	}

	for _, tt := range tests {
		if got := HumanSize(tt.bytes); got != tt.want {
			t.Errorf("HumanSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestParseLineKeyValue(t *testing.T) {
	key, value, ok := ParseLineKeyValue("  Serial No  :  ABC123  ", ":")
	if !ok || key != "Serial No" || value != "ABC123" {
		t.Errorf("got (%q, %q, %t)", key, value, ok)
	}

	if _, _, ok := ParseLineKeyValue("no separator here", ":"); ok {
		t.Error("expected ok=false for line without separator")
	}

	if _, _, ok := ParseLineKeyValue(": leading separator", ":"); ok {
		t.Error("expected ok=false for empty key")
	}
}

func TestHasPrefix(t *testing.T) {
	prefixes := []string{"/dev/sd", "/dev/nvme"}

	if !HasPrefix("/dev/sda", prefixes) {
		t.Error("/dev/sda should match")
	}
	if !HasPrefix("/dev/nvme0n1", prefixes) {
		t.Error("/dev/nvme0n1 should match")
	}
	if HasPrefix("/dev/mapper/root", prefixes) {
		t.Error("/dev/mapper/root should not match")
	}
	if HasPrefix("/dev/sda", nil) {
		t.Error("empty prefix list should never match")
	}
}

func TestCombineErrors(t *testing.T) {
	if err := CombineErrors(nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if err := CombineErrors([]error{nil, nil}); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	e1 := errors.New("one")
	if err := CombineErrors([]error{nil, e1}); err != e1 {
		t.Errorf("single error should pass through, got %v", err)
	}

	e2 := errors.New("two")
	combined := CombineErrors([]error{e1, e2})
	if !errors.Is(combined, e1) || !errors.Is(combined, e2) {
		t.Errorf("combined error should wrap both, got %v", combined)
	}
}

func TestFillField(t *testing.T) {
	var target string
	FillField("first", &target)
	if target != "first" {
		t.Errorf("got %q", target)
	}

	FillField("second", &target)
	if target != "first" {
		t.Errorf("existing value overwritten: %q", target)
	}

	var empty string
	FillField("", &empty)
	if empty != "" {
		t.Errorf("empty source should not fill, got %q", empty)
	}
}
