package ingest

import (
	"time"

	"procodus.dev/silowatch/internal/silo"
)

// DefaultMinInterval is how long identical consecutive readings are
// suppressed before one is stored anyway.
const DefaultMinInterval = 5 * time.Hour

// Decision is the dedup gate's verdict for a new reading.
type Decision int

const (
	// AcceptNoPrior accepts because the silo has no stored reading yet.
	AcceptNoPrior Decision = iota
	// AcceptChanged accepts because at least one compared field differs.
	AcceptChanged
	// AcceptStale accepts an identical reading because the minimum
	// interval since the last stored reading has elapsed.
	AcceptStale
	// Suppress rejects an identical reading inside the minimum interval.
	Suppress
)

// String returns the decision name for logs and metrics labels.
func (d Decision) String() string {
	switch d {
	case AcceptNoPrior:
		return "accept_no_prior"
	case AcceptChanged:
		return "accept_changed"
	case AcceptStale:
		return "accept_stale"
	case Suppress:
		return "suppress"
	default:
		return "unknown"
	}
}

// Accepted reports whether the reading should be stored.
func (d Decision) Accepted() bool {
	return d != Suppress
}

// Gate suppresses storage spam from telemetry sources that repeat the same
// reading every poll cycle. The read-then-decide sequence is not
// linearizable against concurrent writers for the same silo; the worst
// case is one stored duplicate, which is accepted rather than paying for a
// distributed lock.
type Gate struct {
	// MinInterval is the minimum elapsed time before an identical reading
	// is stored again.
	MinInterval time.Duration
}

// NewGate creates a Gate with the default minimum interval.
func NewGate() *Gate {
	return &Gate{MinInterval: DefaultMinInterval}
}

// Evaluate decides whether next should be stored given prev, the most
// recently stored reading for the same silo (nil when none exists or the
// store could not be read). Comparison covers temperature, humidity, gas,
// the luminosity flag and lux; present-vs-absent counts as a difference
// and numeric equality is exact. The devices report quantized values, so
// float tolerance is deliberately not applied.
func (g *Gate) Evaluate(prev, next *silo.Reading) Decision {
	if prev == nil {
		return AcceptNoPrior
	}

	if !floatPtrEqual(prev.Temperature, next.Temperature) ||
		!floatPtrEqual(prev.Humidity, next.Humidity) ||
		!floatPtrEqual(prev.Gas, next.Gas) ||
		!intPtrEqual(prev.LuminosityAlert, next.LuminosityAlert) ||
		!floatPtrEqual(prev.Lux, next.Lux) {
		return AcceptChanged
	}

	if next.Timestamp.Sub(prev.Timestamp) < g.MinInterval {
		return Suppress
	}
	return AcceptStale
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
