package codec

import "bytes"

// Framer extracts complete frames from an unframed byte stream. Garbage
// before a recognizable header is discarded up to the next candidate start
// byte, so the stream resynchronizes after link noise.
//
// Framer is not safe for concurrent use; the link read loop owns it.
type Framer struct {
	buf []byte
}

// Push appends stream bytes and returns any complete frames now available.
func (f *Framer) Push(p []byte) []Frame {
	f.buf = append(f.buf, p...)

	var frames []Frame
	for {
		start := bytes.IndexByte(f.buf, StartByte)
		if start < 0 {
			f.buf = f.buf[:0]
			break
		}
		if start > 0 {
			f.buf = f.buf[start:]
		}
		if len(f.buf) < HeaderLen {
			// wait for the rest of the header
			break
		}
		hdr, ok := parseHeader(f.buf)
		if !ok {
			// false start byte inside garbage; skip it and rescan
			f.buf = f.buf[1:]
			continue
		}
		total := HeaderLen + int(hdr.Length)
		if len(f.buf) < total {
			break
		}
		frame := make(Frame, total)
		copy(frame, f.buf[:total])
		f.buf = f.buf[total:]
		frames = append(frames, frame)
	}

	// reclaim the consumed prefix
	if len(f.buf) > 0 {
		f.buf = append([]byte(nil), f.buf...)
	}
	return frames
}

// Reset discards any partially buffered frame. The link supervisor calls
// this on reconnect so a truncated in-flight frame is never decoded as
// complete.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}

// Pending reports how many bytes are buffered awaiting frame completion.
func (f *Framer) Pending() int {
	return len(f.buf)
}
