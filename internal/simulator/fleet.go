// Package simulator generates synthetic silo telemetry and publishes it
// to the intake queue, for development and load testing.
package simulator

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

// Device is a simulated silo sensor unit.
// Note: Uses math/rand throughout; weak random is acceptable for simulation data.
type Device struct {
	SiloID     uuid.UUID
	DeviceID   string `fake:"{uuid}"`
	Location   string `fake:"{city}, {state}"`
	MacAddress string `fake:"{macaddress}"`
	Firmware   string `fake:"{appversion}"`

	gen *telemetryGenerator
}

// NewDevice creates a simulated device bound to a silo.
func NewDevice(siloID uuid.UUID) (*Device, error) {
	var device Device
	if err := gofakeit.Struct(&device); err != nil {
		return nil, fmt.Errorf("failed to generate device: %w", err)
	}
	device.SiloID = siloID
	device.gen = newTelemetryGenerator()
	return &device, nil
}

// Record produces the next feed-shaped raw record for this device. The
// shape matches what a real channel feed returns: numeric fields encoded
// as strings under field1..field6 plus a created_at timestamp.
func (d *Device) Record(t time.Time) map[string]any {
	return d.gen.record(t)
}

// LuxJumped reports whether the last generated record carried an
// open-silo lux jump.
func (d *Device) LuxJumped() bool {
	return d.gen.luxJumped
}

// telemetryGenerator produces correlated grain-silo telemetry: a stable
// interior microclimate with a daily temperature cycle, humidity inversely
// tracking temperature, a slow gas random walk, and a dark interior with
// occasional lux jumps simulating the silo being opened.
type telemetryGenerator struct {
	baselineTemp     float64
	baselineHumidity float64
	baselineGas      float64
	noise            float64
	lastGas          float64

	// open simulates a maintenance visit: lux jumps above the open
	// threshold for a few records, then falls back to dark.
	openRecordsLeft int
	luxJumped       bool
}

func newTelemetryGenerator() *telemetryGenerator {
	baselineGas := 400.0 + rand.Float64()*200 // 400-600 ppm
	return &telemetryGenerator{
		baselineTemp:     12.0 + rand.Float64()*8,  // 12-20°C interior
		baselineHumidity: 55.0 + rand.Float64()*15, // 55-70%
		baselineGas:      baselineGas,
		noise:            rand.Float64() * 1.5,
		lastGas:          baselineGas,
	}
}

// temperature with a muted daily pattern; silo interiors track the
// outside cycle with a small amplitude.
func (g *telemetryGenerator) temperature(t time.Time) float64 {
	hour := float64(t.Hour())
	dailyCycle := 2 * math.Sin((hour-6)*math.Pi/12)
	noise := (rand.Float64() - 0.5) * g.noise

	// Occasional hot-spot anomalies (2% chance), the condition the
	// threshold rules exist to catch
	anomaly := 0.0
	if rand.Float64() < 0.02 {
		anomaly = rand.Float64() * 20 // up to +20°C spike
	}

	return g.baselineTemp + dailyCycle + noise + anomaly
}

// humidity with inverse temperature correlation.
func (g *telemetryGenerator) humidity(temperature float64) float64 {
	tempEffect := -(temperature - g.baselineTemp) * 1.2
	noise := (rand.Float64() - 0.5) * g.noise
	humidity := g.baselineHumidity + tempEffect + noise
	return math.Max(20, math.Min(95, humidity))
}

// gas as a slow random walk pulled back toward the baseline; grain
// respiration and fermentation change CO2 gradually.
func (g *telemetryGenerator) gas() float64 {
	walk := (rand.Float64() - 0.5) * 10
	next := g.lastGas + walk + (g.baselineGas-g.lastGas)*0.05

	// Occasional fermentation pocket (1% chance)
	if rand.Float64() < 0.01 {
		next += rand.Float64() * 500
	}

	next = math.Max(300, math.Min(5000, next))
	g.lastGas = next
	return next
}

// lux models a dark interior with occasional open-hatch episodes. An
// episode starts with 1% probability and holds the lux high for 2-4
// consecutive records so the monitor sees both the jump and the return
// to dark.
func (g *telemetryGenerator) lux() float64 {
	g.luxJumped = false

	if g.openRecordsLeft > 0 {
		g.openRecordsLeft--
		return 150 + rand.Float64()*400
	}

	if rand.Float64() < 0.01 {
		g.openRecordsLeft = 1 + rand.Intn(3)
		g.luxJumped = true
		return 150 + rand.Float64()*400
	}

	return rand.Float64() * 5 // dark interior
}

// luminosityFlag raises the sensor-side fire flag with 0.5% probability.
func (g *telemetryGenerator) luminosityFlag() int {
	if rand.Float64() < 0.005 {
		return 1
	}
	return 0
}

func (g *telemetryGenerator) record(t time.Time) map[string]any {
	temperature := g.temperature(t)
	humidity := g.humidity(temperature)

	return map[string]any{
		"created_at": t.UTC().Format("2006-01-02T15:04:05Z"),
		"field1":     formatFloat(temperature),
		"field2":     formatFloat(humidity),
		"field3":     formatFloat(g.gas()),
		"field5":     strconv.Itoa(g.luminosityFlag()),
		"field6":     formatFloat(g.lux()),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
