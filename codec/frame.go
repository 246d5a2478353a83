// Package codec owns the telemetry wire format: the frame header, the
// schema-ordered body layout, and the byte<->value translation both ways.
package codec

import "encoding/binary"

const (
	// StartByte marks the beginning of every frame on the wire.
	StartByte byte = 0x01

	// HeaderLen is the fixed header size: start byte, schema version,
	// sequence number, epoch, body length, header checksum.
	HeaderLen = 13
)

// Frame is one raw frame, header included. A Frame is owned by the pipeline
// stage processing it and is not retained after decoding.
type Frame []byte

// Header is the decoded fixed-size frame header. All multi-byte fields are
// little-endian.
type Header struct {
	Version uint8
	Seq     uint32
	Epoch   uint32
	Length  uint16
}

// headerSum is the XOR of the first HeaderLen-1 bytes; it guards the header
// only, so a frame with a truncated body still carries a verifiable header.
func headerSum(b []byte) byte {
	var sum byte
	for _, v := range b[:HeaderLen-1] {
		sum ^= v
	}
	return sum
}

// parseHeader validates the marker and checksum and extracts the header.
// ok is false when b is too short, does not start with StartByte, or fails
// the checksum.
func parseHeader(b []byte) (hdr Header, ok bool) {
	if len(b) < HeaderLen || b[0] != StartByte {
		return Header{}, false
	}
	if headerSum(b) != b[HeaderLen-1] {
		return Header{}, false
	}
	hdr.Version = b[1]
	hdr.Seq = binary.LittleEndian.Uint32(b[2:6])
	hdr.Epoch = binary.LittleEndian.Uint32(b[6:10])
	hdr.Length = binary.LittleEndian.Uint16(b[10:12])
	return hdr, true
}

func putHeader(b []byte, hdr Header) {
	b[0] = StartByte
	b[1] = hdr.Version
	binary.LittleEndian.PutUint32(b[2:6], hdr.Seq)
	binary.LittleEndian.PutUint32(b[6:10], hdr.Epoch)
	binary.LittleEndian.PutUint16(b[10:12], hdr.Length)
	b[HeaderLen-1] = headerSum(b)
}

// Header parses the frame's header without touching the body. ok is false
// when the frame fails the marker or checksum check.
func (f Frame) Header() (Header, bool) {
	return parseHeader(f)
}
