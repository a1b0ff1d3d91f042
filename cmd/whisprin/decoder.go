package main

import (
	"encoding/binary"
	"math"
	"strings"
)

// ============================================================================
// Pen Signal Decoding
// ============================================================================
// Each acquisition mechanism carries its own decoder variant; the portable
// pieces live here so they can be tested without an OS input source:
//
//   - pressure clamping (shared by every variant)
//   - the HID digitizer report decoder (raw-input provider)
//   - the extra-info tag classifier (low-level hook provider)
//   - the window denylist matcher (advisory input suppression)
// ============================================================================

// clampPressure maps any float into the normalized pressure range [0,1].
// NaN collapses to 0; infinities clamp to the nearest boundary. Invalid
// numeric input is never an error anywhere in the pipeline.
func clampPressure(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// penReading is one decoded (contact, pressure) sample.
type penReading struct {
	Contact  bool
	Pressure float64
}

// HID digitizer report layout, first 8 bytes:
//
//	offset 0: report ID
//	offset 1: status byte (bit 0 = tip switch / in contact)
//	offset 6: tip pressure, little-endian uint16, 0-1024 device units
//
// Reports shorter than 8 bytes carry neither field and are ignored.
const (
	hidStatusOffset   = 1
	hidPressureOffset = 6
	hidTipSwitchBit   = 0x01
)

// decodeHIDPenReport decodes one raw digitizer report. The second return is
// false when the report is too short to interpret; no event is emitted then.
func decodeHIDPenReport(report []byte) (penReading, bool) {
	if len(report) < hidReportMinBytes {
		return penReading{}, false
	}

	raw := binary.LittleEndian.Uint16(report[hidPressureOffset : hidPressureOffset+2])
	return penReading{
		Contact:  report[hidStatusOffset]&hidTipSwitchBit != 0,
		Pressure: clampPressure(float64(raw) / penPressureScale),
	}, true
}

// normalizePointerPressure maps the pointer API's 0-1024 hardware pressure
// field into [0,1].
func normalizePointerPressure(raw uint32) float64 {
	return clampPressure(float64(raw) / penPressureScale)
}

// ============================================================================
// Extra-info tag classification (low-level hook)
// ============================================================================

// TagClass is the classification of a pointer event's extra-info tag.
type TagClass int

const (
	TagUnknown TagClass = iota
	TagPen
	TagNotPen
)

// TagClassifier decides whether an extra-info tag identifies a pen source.
// The classifier is pluggable so a stricter or vendor-specific policy can
// replace the permissive default without touching the contact state machine.
type TagClassifier interface {
	Classify(tag uint64) TagClass
}

// Vendor tag signatures, matched on the high three bytes.
const (
	tagSignatureMask = 0xFFFFFF00

	// Microsoft ink services stamp pen/touch-injected mouse events with
	// this signature; bit 0x80 of the low byte marks touch rather than pen.
	msInkSignature = 0xFF515700
	msTouchFlag    = 0x80

	// Observed from Wacom feel driver injected events.
	wacomSignature = 0x57414300
)

// permissiveTagClassifier is the default best-effort policy: exact signature
// matches for the known vendor tags, and any nonzero unrecognized tag is
// treated as a potential pen.
//
// The catch-all is a known source of false positives on mice whose drivers
// use the extra-info side channel for their own purposes. That is deliberate
// unresolved policy, not a bug: the hook is the last-resort mechanism and
// prefers sound-on-mouse over silence-on-pen.
type permissiveTagClassifier struct{}

func (permissiveTagClassifier) Classify(tag uint64) TagClass {
	if tag == 0 {
		return TagNotPen
	}

	switch tag & tagSignatureMask {
	case msInkSignature:
		if tag&msTouchFlag != 0 {
			return TagNotPen // touch-injected, not a stylus tip
		}
		return TagPen
	case wacomSignature:
		return TagPen
	}

	// Permissive catch-all.
	return TagPen
}

// ============================================================================
// Window denylist matching
// ============================================================================

// WindowFilter reports whether pen processing should be suppressed because
// the pointer is currently over a denylisted host window. Advisory only:
// implementations must fail open (return false) on any lookup error.
type WindowFilter interface {
	SuppressInput() bool
}

// denylistMatcher matches a window's process image name or class name
// against the configured denylist of terminal/IDE-class applications.
// Matching is case-insensitive; entries match as exact process names
// (with or without path) or as substrings of the window class.
type denylistMatcher struct {
	entries []string
}

func newDenylistMatcher(entries []string) *denylistMatcher {
	lowered := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			lowered = append(lowered, e)
		}
	}
	return &denylistMatcher{entries: lowered}
}

// matches reports whether the window identified by processImage (full path
// or bare executable name) and className is denylisted.
func (m *denylistMatcher) matches(processImage, className string) bool {
	if m == nil || len(m.entries) == 0 {
		return false
	}

	exe := strings.ToLower(processImage)
	if i := strings.LastIndexAny(exe, `\/`); i >= 0 {
		exe = exe[i+1:]
	}
	class := strings.ToLower(className)

	for _, entry := range m.entries {
		if exe == entry {
			return true
		}
		if class != "" && strings.Contains(class, entry) {
			return true
		}
	}
	return false
}
