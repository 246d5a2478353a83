package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sufst/intermediate-server/schema"
)

// Reading is one decoded sensor value. Valid is false when the value fell
// outside the sensor's declared range or the frame body ended before this
// field; invalid readings are still delivered so clients can apply their own
// display policy.
type Reading struct {
	SensorID  string
	Value     float64
	Timestamp uint32
	Valid     bool
}

// ReadingBatch is the ordered decode of one frame, delivered to subscribers
// as a unit.
type ReadingBatch struct {
	Seq      uint32
	Epoch    uint32
	Readings []Reading
}

// DecodeError reports a frame that failed integrity checks (bad marker,
// header checksum, or schema version). Field-level problems never produce a
// DecodeError; they are flagged on the individual Reading instead.
type DecodeError struct {
	Detail string
}

func (e *DecodeError) Error() string {
	return "decode: integrity: " + e.Detail
}

// EncodeError reports a value that cannot be represented in the sensor's
// declared wire type.
type EncodeError struct {
	SensorID string
	Detail   string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode: sensor %q: %s", e.SensorID, e.Detail)
}

// Decode translates one frame into a ReadingBatch against sch.
//
// Integrity failures (marker, checksum, version) return a DecodeError and
// the caller drops the frame. Everything after the header is data: a body
// shorter than the schema layout yields invalid readings for the fields
// that no longer fit, an out-of-range value yields an invalid reading for
// that sensor only, and trailing bytes beyond the layout are ignored.
func Decode(frame Frame, sch *schema.Schema) (*ReadingBatch, error) {
	hdr, ok := parseHeader(frame)
	if !ok {
		return nil, &DecodeError{Detail: "bad start byte or header checksum"}
	}
	if hdr.Version != sch.Version {
		return nil, &DecodeError{Detail: fmt.Sprintf(
			"frame schema version %d, active schema version %d", hdr.Version, sch.Version)}
	}

	body := frame[HeaderLen:]
	if int(hdr.Length) < len(body) {
		body = body[:hdr.Length]
	}

	defs := sch.Enabled()
	batch := &ReadingBatch{
		Seq:      hdr.Seq,
		Epoch:    hdr.Epoch,
		Readings: make([]Reading, 0, len(defs)),
	}

	off := 0
	for _, def := range defs {
		w := def.Type.Width()
		r := Reading{SensorID: def.ID, Timestamp: hdr.Epoch}
		if off+w <= len(body) {
			raw := readRaw(def.Type, body[off:off+w])
			r.Value = float64(raw) / def.Scale
			r.Valid = r.Value >= def.Min && r.Value <= def.Max
		}
		off += w
		batch.Readings = append(batch.Readings, r)
	}

	return batch, nil
}

// Encode builds a frame carrying values for every enabled sensor in sch, in
// declaration order. It is the exact inverse of Decode for in-range values
// (to fixed-point precision) and is what the emulator and any conformance
// harness use to produce wire frames.
func Encode(values map[string]float64, seq, epoch uint32, sch *schema.Schema) (Frame, error) {
	body := make([]byte, 0, sch.BodyLen())
	for _, def := range sch.Enabled() {
		v, ok := values[def.ID]
		if !ok {
			return nil, &EncodeError{SensorID: def.ID, Detail: "no value supplied"}
		}
		raw := int64(math.Round(v * def.Scale))
		lo, hi := def.Type.RawRange()
		if raw < lo || raw > hi {
			return nil, &EncodeError{SensorID: def.ID, Detail: fmt.Sprintf(
				"value %v does not fit %s", v, def.Type)}
		}
		body = appendRaw(body, def.Type, raw)
	}

	frame := make(Frame, HeaderLen+len(body))
	putHeader(frame, Header{
		Version: sch.Version,
		Seq:     seq,
		Epoch:   epoch,
		Length:  uint16(len(body)),
	})
	copy(frame[HeaderLen:], body)
	return frame, nil
}

func readRaw(t schema.WireType, b []byte) int64 {
	switch t {
	case schema.TypeUint8:
		return int64(b[0])
	case schema.TypeInt8:
		return int64(int8(b[0]))
	case schema.TypeUint16:
		return int64(binary.LittleEndian.Uint16(b))
	case schema.TypeInt16:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case schema.TypeUint32:
		return int64(binary.LittleEndian.Uint32(b))
	case schema.TypeInt32:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	}
	return 0
}

func appendRaw(b []byte, t schema.WireType, raw int64) []byte {
	switch t {
	case schema.TypeUint8, schema.TypeInt8:
		return append(b, byte(raw))
	case schema.TypeUint16, schema.TypeInt16:
		return binary.LittleEndian.AppendUint16(b, uint16(raw))
	case schema.TypeUint32, schema.TypeInt32:
		return binary.LittleEndian.AppendUint32(b, uint32(raw))
	}
	return b
}
