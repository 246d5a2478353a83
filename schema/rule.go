package schema

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// Rule is a declarative emulation rule attached to a sensor definition.
// Rules are pure data evaluated against a tick counter; the catalog never
// carries executable expressions.
type Rule interface {
	kind() string
}

// Sine evaluates to Offset + Amplitude*sin(2*pi*tick/Period).
type Sine struct {
	Amplitude float64 `json:"amplitude"`
	Offset    float64 `json:"offset"`
	Period    float64 `json:"period"`
}

// Cosine evaluates to Offset + Amplitude*cos(2*pi*tick/Period).
type Cosine struct {
	Amplitude float64 `json:"amplitude"`
	Offset    float64 `json:"offset"`
	Period    float64 `json:"period"`
}

// UniformRandom draws from [Low, High) using the emulator's seeded generator.
type UniformRandom struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Constant always evaluates to Value.
type Constant struct {
	Value float64 `json:"value"`
}

// Linear evaluates to Start + Step*tick.
type Linear struct {
	Start float64 `json:"start"`
	Step  float64 `json:"step"`
}

func (Sine) kind() string          { return "sine" }
func (Cosine) kind() string        { return "cosine" }
func (UniformRandom) kind() string { return "uniform" }
func (Constant) kind() string      { return "constant" }
func (Linear) kind() string        { return "linear" }

// parseRule decodes the tagged JSON form, e.g.
// {"rule": "sine", "amplitude": 5000, "offset": 5000, "period": 36}.
func parseRule(raw json.RawMessage) (Rule, error) {
	var tag struct {
		Rule string `json:"rule"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, errors.Wrap(err, "unable to read rule tag")
	}

	var rule Rule
	var err error
	switch tag.Rule {
	case "sine":
		var r Sine
		err = json.Unmarshal(raw, &r)
		rule = r
	case "cosine":
		var r Cosine
		err = json.Unmarshal(raw, &r)
		rule = r
	case "uniform":
		var r UniformRandom
		err = json.Unmarshal(raw, &r)
		rule = r
	case "constant":
		var r Constant
		err = json.Unmarshal(raw, &r)
		rule = r
	case "linear":
		var r Linear
		err = json.Unmarshal(raw, &r)
		rule = r
	default:
		return nil, fmt.Errorf("unknown rule %q", tag.Rule)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "unable to decode %q rule", tag.Rule)
	}
	return rule, nil
}

func validateRule(r Rule) error {
	switch v := r.(type) {
	case Sine:
		if v.Period <= 0 {
			return fmt.Errorf("sine period must be positive, got %v", v.Period)
		}
	case Cosine:
		if v.Period <= 0 {
			return fmt.Errorf("cosine period must be positive, got %v", v.Period)
		}
	case UniformRandom:
		if v.Low > v.High {
			return fmt.Errorf("uniform low %v above high %v", v.Low, v.High)
		}
	}
	return nil
}
