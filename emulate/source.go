package emulate

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Source adapts an Emulator to the link supervisor's byte-stream interface:
// each interval it emits one encoded frame's bytes through Read. The
// supervisor then runs emulated bytes through the same framer and decoder
// as a live radio link, which catches schema drift in the emulator itself.
type Source struct {
	em       *Emulator
	interval time.Duration

	pending   []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// NewSource returns a Source emitting one frame per interval.
func NewSource(em *Emulator, interval time.Duration) *Source {
	return &Source{
		em:       em,
		interval: interval,
		closed:   make(chan struct{}),
	}
}

// Read blocks until the next tick interval and fills p with frame bytes.
// A frame larger than p carries over into subsequent Reads.
func (s *Source) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		select {
		case <-s.closed:
			return 0, errors.New("emulation source closed")
		case <-time.After(s.interval):
		}

		frame, err := s.em.Tick()
		if err != nil {
			// a mis-parameterized rule produced an unencodable value;
			// skip this tick rather than killing the link
			log.WithField("err", err).Error("emulator produced unencodable frame")
			continue
		}
		s.pending = frame
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Close stops the source; subsequent Reads fail immediately.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	return nil
}
