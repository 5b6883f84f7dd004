package rules

import (
	"procodus.dev/silowatch/internal/silo"
)

// Default lux thresholds for the silo-opened transition.
const (
	DefaultDarkThreshold = 10.0
	DefaultOpenThreshold = 100.0
)

// LuminosityFlagAlert is the sentinel flag value the device raises when it
// detects an unexpected light source (possible fire).
const LuminosityFlagAlert = 1

// EventDraft is a candidate silo event produced by the detector.
type EventDraft struct {
	EventType string
	Payload   map[string]any
}

// LuminosityDetector interprets light-level transitions between the
// previous and current reading as physical state changes.
type LuminosityDetector struct {
	// DarkThreshold is the lux value at or below which the silo counts as
	// closed/dark.
	DarkThreshold float64
	// OpenThreshold is the lux value at or above which the silo counts as
	// open/lit.
	OpenThreshold float64
}

// NewLuminosityDetector creates a detector with the default thresholds.
func NewLuminosityDetector() *LuminosityDetector {
	return &LuminosityDetector{
		DarkThreshold: DefaultDarkThreshold,
		OpenThreshold: DefaultOpenThreshold,
	}
}

// Detect applies both luminosity rules to the prior and current reading.
//
// Transition rule: prior lux at or below the dark threshold and current lux
// at or above the open threshold means the silo was opened; this yields one
// event draft and one warning alert draft. Flag rule: a current luminosity
// alert flag equal to the sentinel yields one critical alert draft,
// regardless of lux values. Both rules may fire in the same cycle. Only the
// single-step prior/current pair is consulted; there is no hysteresis.
func (d *LuminosityDetector) Detect(prev, cur *silo.Reading) ([]EventDraft, []Draft) {
	var events []EventDraft
	var drafts []Draft

	if prev != nil && prev.Lux != nil && cur.Lux != nil {
		if *prev.Lux <= d.DarkThreshold && *cur.Lux >= d.OpenThreshold {
			payload := map[string]any{
				"prev_lux": *prev.Lux,
				"lux":      *cur.Lux,
			}
			events = append(events, EventDraft{
				EventType: silo.EventSiloOpened,
				Payload:   payload,
			})
			drafts = append(drafts, Draft{
				Level:   silo.SeverityWarning,
				Message: silo.MessageSiloOpened,
				Value:   payload,
			})
		}
	}

	if cur.LuminosityAlert != nil && *cur.LuminosityAlert == LuminosityFlagAlert {
		value := map[string]any{
			"flag": *cur.LuminosityAlert,
		}
		if cur.Lux != nil {
			value["lux"] = *cur.Lux
		}
		drafts = append(drafts, Draft{
			Level:   silo.SeverityCritical,
			Message: silo.MessageFireRisk,
			Value:   value,
		})
	}

	return events, drafts
}
