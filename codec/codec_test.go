package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufst/intermediate-server/schema"
)

const testCatalog = `{
  "version": 2,
  "sensors": [
    {"id": "rpm", "type": "uint16", "min": 0, "max": 10000, "enable": true},
    {"id": "water_temp_c", "type": "int16", "min": -20, "max": 140, "enable": true},
    {"id": "tps_perc", "type": "uint16", "scale": 10, "min": 0, "max": 100, "enable": true},
    {"id": "ride_height_rear_cm", "type": "uint8", "min": 0, "max": 30, "enable": false},
    {"id": "lap_timer_s", "type": "uint32", "scale": 10, "min": 0, "max": 86400, "enable": true}
  ]
}`

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Load(strings.NewReader(testCatalog))
	require.NoError(t, err)
	return s
}

func testValues() map[string]float64 {
	return map[string]float64{
		"rpm":          5000,
		"water_temp_c": -15,
		"tps_perc":     42.5,
		"lap_timer_s":  123.4,
	}
}

func TestRoundTrip(t *testing.T) {
	sch := testSchema(t)
	frame, err := Encode(testValues(), 7, 1700000000, sch)
	require.NoError(t, err)

	// header + uint16 + int16 + uint16 + uint32; the disabled sensor is absent
	assert.Len(t, []byte(frame), HeaderLen+10)

	batch, err := Decode(frame, sch)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), batch.Seq)
	assert.Equal(t, uint32(1700000000), batch.Epoch)
	require.Len(t, batch.Readings, 4)

	byID := map[string]Reading{}
	for _, r := range batch.Readings {
		assert.True(t, r.Valid)
		assert.Equal(t, uint32(1700000000), r.Timestamp)
		byID[r.SensorID] = r
	}
	assert.Equal(t, 5000.0, byID["rpm"].Value)
	assert.Equal(t, -15.0, byID["water_temp_c"].Value)
	// fixed point: exact to 1/scale
	assert.InDelta(t, 42.5, byID["tps_perc"].Value, 0.1)
	assert.InDelta(t, 123.4, byID["lap_timer_s"].Value, 0.1)

	// batch order follows declaration order
	assert.Equal(t, "rpm", batch.Readings[0].SensorID)
	assert.Equal(t, "water_temp_c", batch.Readings[1].SensorID)
}

func TestDecodeIntegrity(t *testing.T) {
	sch := testSchema(t)
	frame, err := Encode(testValues(), 1, 100, sch)
	require.NoError(t, err)

	t.Run("bad start byte", func(t *testing.T) {
		bad := append(Frame(nil), frame...)
		bad[0] = 0x7f
		batch, err := Decode(bad, sch)
		assert.Nil(t, batch)
		var derr *DecodeError
		assert.ErrorAs(t, err, &derr)
	})

	t.Run("corrupted header", func(t *testing.T) {
		bad := append(Frame(nil), frame...)
		bad[5] ^= 0xff // seq byte no longer matches the checksum
		batch, err := Decode(bad, sch)
		assert.Nil(t, batch)
		assert.Error(t, err)
	})

	t.Run("schema version mismatch", func(t *testing.T) {
		bad := append(Frame(nil), frame...)
		bad[1] = sch.Version + 1
		bad[HeaderLen-1] = 0
		for _, v := range bad[:HeaderLen-1] {
			bad[HeaderLen-1] ^= v
		}
		batch, err := Decode(bad, sch)
		assert.Nil(t, batch)
		assert.Error(t, err)
	})

	t.Run("too short for header", func(t *testing.T) {
		batch, err := Decode(frame[:5], sch)
		assert.Nil(t, batch)
		assert.Error(t, err)
	})
}

func TestDecodeShortFrame(t *testing.T) {
	sch := testSchema(t)
	frame, err := Encode(testValues(), 1, 100, sch)
	require.NoError(t, err)

	// keep the header and the first two fields; tps_perc is cut in half and
	// lap_timer_s is gone entirely
	short := frame[:HeaderLen+5]
	batch, err := Decode(short, sch)
	require.NoError(t, err, "partial telemetry must never be thrown away")
	require.Len(t, batch.Readings, 4)

	assert.True(t, batch.Readings[0].Valid)
	assert.True(t, batch.Readings[1].Valid)
	assert.False(t, batch.Readings[2].Valid)
	assert.Equal(t, 0.0, batch.Readings[2].Value)
	assert.False(t, batch.Readings[3].Valid)

	// header only: every field invalid, still a full batch
	batch, err = Decode(frame[:HeaderLen], sch)
	require.NoError(t, err)
	require.Len(t, batch.Readings, 4)
	for _, r := range batch.Readings {
		assert.False(t, r.Valid)
	}
}

func TestDecodeOutOfRange(t *testing.T) {
	sch := testSchema(t)

	// 15000 rpm is representable in uint16 but above the declared max of
	// 10000: flagged invalid, value preserved, siblings untouched
	values := testValues()
	values["rpm"] = 15000
	frame, err := Encode(values, 1, 100, sch)
	require.NoError(t, err)

	batch, err := Decode(frame, sch)
	require.NoError(t, err)
	assert.False(t, batch.Readings[0].Valid)
	assert.Equal(t, 15000.0, batch.Readings[0].Value)
	assert.True(t, batch.Readings[1].Valid)
	assert.True(t, batch.Readings[2].Valid)
	assert.True(t, batch.Readings[3].Valid)
}

func TestDecodeTrailingBytes(t *testing.T) {
	sch := testSchema(t)
	frame, err := Encode(testValues(), 1, 100, sch)
	require.NoError(t, err)

	// a newer sender may append fields this schema does not know about
	longer := make(Frame, 0, len(frame)+4)
	longer = append(longer, frame...)
	longer = append(longer, 0xde, 0xad, 0xbe, 0xef)
	putHeader(longer, Header{
		Version: sch.Version,
		Seq:     1,
		Epoch:   100,
		Length:  uint16(len(longer) - HeaderLen),
	})

	batch, err := Decode(longer, sch)
	require.NoError(t, err)
	for _, r := range batch.Readings {
		assert.True(t, r.Valid)
	}
}

func TestEncodeErrors(t *testing.T) {
	sch := testSchema(t)

	t.Run("missing value", func(t *testing.T) {
		values := testValues()
		delete(values, "water_temp_c")
		frame, err := Encode(values, 1, 100, sch)
		assert.Nil(t, frame)
		var eerr *EncodeError
		assert.ErrorAs(t, err, &eerr)
		assert.Equal(t, "water_temp_c", eerr.SensorID)
	})

	t.Run("unrepresentable value", func(t *testing.T) {
		values := testValues()
		values["rpm"] = 70000 // beyond uint16
		frame, err := Encode(values, 1, 100, sch)
		assert.Nil(t, frame)
		var eerr *EncodeError
		assert.ErrorAs(t, err, &eerr)
		assert.Equal(t, "rpm", eerr.SensorID)
	})
}

func TestLoadIdempotentDecode(t *testing.T) {
	s1, err := schema.Load(strings.NewReader(testCatalog))
	require.NoError(t, err)
	s2, err := schema.Load(strings.NewReader(testCatalog))
	require.NoError(t, err)

	frame, err := Encode(testValues(), 9, 200, s1)
	require.NoError(t, err)

	b1, err := Decode(frame, s1)
	require.NoError(t, err)
	b2, err := Decode(frame, s2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}
