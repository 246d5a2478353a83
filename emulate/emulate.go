// Package emulate manufactures schema-conformant telemetry frames for
// development and testing without a physical vehicle link. Frames are built
// through codec.Encode, so emulated data exercises the exact framer and
// decode path that live data does.
package emulate

import (
	"math"
	"math/rand"
	"time"

	"github.com/sufst/intermediate-server/codec"
	"github.com/sufst/intermediate-server/schema"
)

// Emulator evaluates every enabled sensor's declared rule against a
// monotonic tick counter. Waveform rules are pure functions of the tick;
// randomized rules draw from a single generator seeded at construction, so
// a fixed seed makes a run fully reproducible.
type Emulator struct {
	sch  *schema.Schema
	rng  *rand.Rand
	tick uint64
	seq  uint32

	// now is swapped out in tests for stable epochs
	now func() time.Time
}

// New returns an emulator for sch seeded with seed.
func New(sch *schema.Schema, seed int64) *Emulator {
	return &Emulator{
		sch: sch,
		rng: rand.New(rand.NewSource(seed)),
		now: time.Now,
	}
}

// Tick evaluates all enabled sensors at the current tick, advances the
// counter and returns the encoded frame. Disabled sensors are absent from
// the frame, not emitted as zero.
func (e *Emulator) Tick() (codec.Frame, error) {
	values := make(map[string]float64, len(e.sch.Enabled()))
	for _, def := range e.sch.Enabled() {
		values[def.ID] = e.eval(def)
	}

	e.tick++
	e.seq++
	return codec.Encode(values, e.seq, uint32(e.now().Unix()), e.sch)
}

func (e *Emulator) eval(def schema.SensorDefinition) float64 {
	x := float64(e.tick)
	switch r := def.Emulation.(type) {
	case schema.Sine:
		return r.Offset + r.Amplitude*math.Sin(2*math.Pi*x/r.Period)
	case schema.Cosine:
		return r.Offset + r.Amplitude*math.Cos(2*math.Pi*x/r.Period)
	case schema.UniformRandom:
		return r.Low + e.rng.Float64()*(r.High-r.Low)
	case schema.Constant:
		return r.Value
	case schema.Linear:
		return r.Start + r.Step*x
	}
	// no rule declared: hold the sensor at the bottom of its valid range
	return def.Min
}
