// Package schema holds the sensor catalog: the versioned, immutable set of
// sensor definitions that fixes the wire layout of telemetry frames.
package schema

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// ErrorKind classifies catalog validation failures.
type ErrorKind int

const (
	ErrParse ErrorKind = iota
	ErrEmptyID
	ErrDuplicateID
	ErrBadRange
	ErrBadType
	ErrBadScale
	ErrBadRule
)

func (k ErrorKind) String() string {
	switch k {
	case ErrParse:
		return "parse"
	case ErrEmptyID:
		return "empty-id"
	case ErrDuplicateID:
		return "duplicate-id"
	case ErrBadRange:
		return "bad-range"
	case ErrBadType:
		return "bad-type"
	case ErrBadScale:
		return "bad-scale"
	case ErrBadRule:
		return "bad-rule"
	}
	return "unknown"
}

// Error reports why a catalog failed to load. A load that returns Error has
// no side effects; the previously active schema stays in place.
type Error struct {
	Kind     ErrorKind
	SensorID string
	Detail   string
}

func (e *Error) Error() string {
	if e.SensorID == "" {
		return fmt.Sprintf("schema: %s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("schema: %s: sensor %q: %s", e.Kind, e.SensorID, e.Detail)
}

// WireType names the binary encoding of a sensor's frame field.
type WireType string

const (
	TypeUint8  WireType = "uint8"
	TypeInt8   WireType = "int8"
	TypeUint16 WireType = "uint16"
	TypeInt16  WireType = "int16"
	TypeUint32 WireType = "uint32"
	TypeInt32  WireType = "int32"
)

// Width returns the field size in bytes, or 0 for an unknown type.
func (t WireType) Width() int {
	switch t {
	case TypeUint8, TypeInt8:
		return 1
	case TypeUint16, TypeInt16:
		return 2
	case TypeUint32, TypeInt32:
		return 4
	}
	return 0
}

// RawRange returns the representable raw value range of the type.
func (t WireType) RawRange() (lo, hi int64) {
	switch t {
	case TypeUint8:
		return 0, 0xff
	case TypeInt8:
		return -0x80, 0x7f
	case TypeUint16:
		return 0, 0xffff
	case TypeInt16:
		return -0x8000, 0x7fff
	case TypeUint32:
		return 0, 0xffffffff
	case TypeInt32:
		return -0x80000000, 0x7fffffff
	}
	return 0, 0
}

// SensorDefinition describes one sensor: identity, display metadata, wire
// encoding, valid range and its optional emulation rule.
type SensorDefinition struct {
	ID     string
	Name   string
	Units  string
	Group  string
	Type   WireType
	Scale  float64
	Min    float64
	Max    float64
	Enable bool
	OnDash bool
	// Emulation is nil when the catalog declares no rule; the emulator then
	// holds the sensor at Min.
	Emulation Rule
}

type sensorJSON struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Units     string          `json:"units"`
	Group     string          `json:"group"`
	Type      string          `json:"type"`
	Scale     *float64        `json:"scale"`
	Min       float64         `json:"min"`
	Max       float64         `json:"max"`
	Enable    bool            `json:"enable"`
	OnDash    bool            `json:"on_dash"`
	Emulation json.RawMessage `json:"emulation"`
}

type catalogJSON struct {
	Version uint8        `json:"version"`
	Sensors []sensorJSON `json:"sensors"`
}

// Schema is a loaded catalog. It is immutable: a reload builds a new Schema
// and swaps it into a Holder, never mutating an existing one. Declaration
// order in the catalog is the frame body order; that ordering is the wire
// contract.
type Schema struct {
	Version uint8

	defs    []SensorDefinition
	enabled []SensorDefinition
	index   map[string]int
	bodyLen int
}

// Load parses and validates a JSON catalog. Any violation fails the whole
// load; the caller keeps whatever schema was previously active.
func Load(r io.Reader) (*Schema, error) {
	var cat catalogJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&cat); err != nil {
		return nil, &Error{Kind: ErrParse, Detail: err.Error()}
	}

	s := &Schema{
		Version: cat.Version,
		index:   make(map[string]int, len(cat.Sensors)),
	}

	for _, sj := range cat.Sensors {
		if sj.ID == "" {
			return nil, &Error{Kind: ErrEmptyID, Detail: "sensor with empty id"}
		}
		if _, dup := s.index[sj.ID]; dup {
			return nil, &Error{Kind: ErrDuplicateID, SensorID: sj.ID, Detail: "id declared twice"}
		}
		t := WireType(sj.Type)
		if t.Width() == 0 {
			return nil, &Error{Kind: ErrBadType, SensorID: sj.ID,
				Detail: fmt.Sprintf("unknown wire type %q", sj.Type)}
		}
		scale := 1.0
		if sj.Scale != nil {
			scale = *sj.Scale
		}
		if scale <= 0 {
			return nil, &Error{Kind: ErrBadScale, SensorID: sj.ID,
				Detail: fmt.Sprintf("scale must be positive, got %v", scale)}
		}
		if sj.Min > sj.Max {
			return nil, &Error{Kind: ErrBadRange, SensorID: sj.ID,
				Detail: fmt.Sprintf("min %v above max %v", sj.Min, sj.Max)}
		}

		var rule Rule
		if len(sj.Emulation) > 0 {
			var err error
			rule, err = parseRule(sj.Emulation)
			if err != nil {
				return nil, &Error{Kind: ErrBadRule, SensorID: sj.ID, Detail: err.Error()}
			}
			if err = validateRule(rule); err != nil {
				return nil, &Error{Kind: ErrBadRule, SensorID: sj.ID, Detail: err.Error()}
			}
		}

		def := SensorDefinition{
			ID:        sj.ID,
			Name:      sj.Name,
			Units:     sj.Units,
			Group:     sj.Group,
			Type:      t,
			Scale:     scale,
			Min:       sj.Min,
			Max:       sj.Max,
			Enable:    sj.Enable,
			OnDash:    sj.OnDash,
			Emulation: rule,
		}
		s.index[def.ID] = len(s.defs)
		s.defs = append(s.defs, def)
		if def.Enable {
			s.enabled = append(s.enabled, def)
			s.bodyLen += t.Width()
		}
	}

	return s, nil
}

// LoadFile loads a catalog from disk.
func LoadFile(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open catalog %s", path)
	}
	defer f.Close()
	return Load(f)
}

// Lookup returns the definition for id.
func (s *Schema) Lookup(id string) (SensorDefinition, bool) {
	i, ok := s.index[id]
	if !ok {
		return SensorDefinition{}, false
	}
	return s.defs[i], true
}

// All returns every definition in declaration order. Callers must not
// modify the returned slice.
func (s *Schema) All() []SensorDefinition {
	return s.defs
}

// Enabled returns the enabled definitions in declaration order; these are
// the fields present in an encoded frame body.
func (s *Schema) Enabled() []SensorDefinition {
	return s.enabled
}

// BodyLen is the body size in bytes of a frame carrying every enabled sensor.
func (s *Schema) BodyLen() int {
	return s.bodyLen
}
