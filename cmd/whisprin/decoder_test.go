package main

import (
	"math"
	"testing"
)

// TestClampPressure_Range tests normalization of every input class,
// including the non-finite floats that must never propagate.
func TestClampPressure_Range(t *testing.T) {
	cases := []struct {
		name string
		in   float64
		want float64
	}{
		{"zero", 0, 0},
		{"mid", 0.5, 0.5},
		{"one", 1, 1},
		{"negative", -0.25, 0},
		{"above one", 1.75, 1},
		{"nan", math.NaN(), 0},
		{"neg inf", math.Inf(-1), 0},
		{"pos inf", math.Inf(1), 1},
	}

	for _, tc := range cases {
		got := clampPressure(tc.in)
		if got != tc.want {
			t.Errorf("%s: clampPressure(%v) = %v, want %v", tc.name, tc.in, got, tc.want)
		}
	}
}

// TestDecodeHIDPenReport_ShortReport tests that undersized reports are
// rejected without a reading.
func TestDecodeHIDPenReport_ShortReport(t *testing.T) {
	for _, n := range []int{0, 1, 7} {
		if _, ok := decodeHIDPenReport(make([]byte, n)); ok {
			t.Errorf("report of %d bytes should be rejected", n)
		}
	}

	if _, ok := decodeHIDPenReport(make([]byte, 8)); !ok {
		t.Error("8-byte report should decode")
	}
}

// TestDecodeHIDPenReport_Fields tests status bit and pressure extraction.
func TestDecodeHIDPenReport_Fields(t *testing.T) {
	report := make([]byte, 8)

	// Tip down, pressure = 512/1024 = 0.5 (little-endian at offset 6).
	report[1] = 0x01
	report[6] = 0x00
	report[7] = 0x02

	r, ok := decodeHIDPenReport(report)
	if !ok {
		t.Fatal("report should decode")
	}
	if !r.Contact {
		t.Error("tip switch bit set, expected contact")
	}
	if r.Pressure != 0.5 {
		t.Errorf("pressure = %v, want 0.5", r.Pressure)
	}

	// Tip up: other status bits must not read as contact.
	report[1] = 0xFE
	r, _ = decodeHIDPenReport(report)
	if r.Contact {
		t.Error("tip switch bit clear, expected no contact")
	}
}

// TestDecodeHIDPenReport_PressureClamped tests that device units above the
// nominal scale clamp rather than overflow.
func TestDecodeHIDPenReport_PressureClamped(t *testing.T) {
	report := make([]byte, 8)
	report[1] = 0x01
	report[6] = 0xFF
	report[7] = 0xFF // 65535 device units

	r, _ := decodeHIDPenReport(report)
	if r.Pressure != 1 {
		t.Errorf("pressure = %v, want clamped to 1", r.Pressure)
	}
}

// TestPermissiveTagClassifier tests every classification branch of the
// default extra-info policy.
func TestPermissiveTagClassifier(t *testing.T) {
	c := permissiveTagClassifier{}

	cases := []struct {
		name string
		tag  uint64
		want TagClass
	}{
		{"zero tag", 0x00000000, TagNotPen},
		{"ms ink pen", 0xFF515700, TagPen},
		{"ms ink pen low bits", 0xFF515703, TagPen},
		{"ms ink touch", 0xFF515780, TagNotPen},
		{"wacom", 0x57414300, TagPen},
		{"wacom low bits", 0x57414312, TagPen},
		{"unknown nonzero", 0x12345678, TagPen}, // permissive catch-all
	}

	for _, tc := range cases {
		if got := c.Classify(tc.tag); got != tc.want {
			t.Errorf("%s: Classify(%#x) = %v, want %v", tc.name, tc.tag, got, tc.want)
		}
	}
}

// TestDenylistMatcher tests process-image and window-class matching.
func TestDenylistMatcher(t *testing.T) {
	m := newDenylistMatcher([]string{"WindowsTerminal.exe", "ConsoleWindowClass", " ", ""})

	cases := []struct {
		name    string
		image   string
		class   string
		matched bool
	}{
		{"exact exe", "WindowsTerminal.exe", "CASCADIA_HOSTING", true},
		{"exe with path", `C:\Program Files\WindowsApps\WindowsTerminal.exe`, "", true},
		{"case-insensitive exe", "windowsterminal.EXE", "", true},
		{"class substring", "cmd.exe", "ConsoleWindowClass0", true},
		{"no match", "notepad.exe", "Notepad", false},
		{"empty window", "", "", false},
	}

	for _, tc := range cases {
		if got := m.matches(tc.image, tc.class); got != tc.matched {
			t.Errorf("%s: matches(%q, %q) = %v, want %v", tc.name, tc.image, tc.class, got, tc.matched)
		}
	}
}

// TestDenylistMatcher_Empty tests that a nil or empty matcher never matches.
func TestDenylistMatcher_Empty(t *testing.T) {
	var nilMatcher *denylistMatcher
	if nilMatcher.matches("anything.exe", "AnyClass") {
		t.Error("nil matcher should never match")
	}
	if newDenylistMatcher(nil).matches("anything.exe", "AnyClass") {
		t.Error("empty matcher should never match")
	}
}
