// Package telemetry glues the engine together: frames from the link
// supervisor are decoded against the active schema and the resulting
// reading batches are published to the distribution hub.
package telemetry

import (
	"io"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/sufst/intermediate-server/codec"
	"github.com/sufst/intermediate-server/hub"
	"github.com/sufst/intermediate-server/schema"
)

// Stats are cumulative pipeline counters.
type Stats struct {
	FramesIn       uint64
	Batches        uint64
	IntegrityDrops uint64
}

// Pipeline is the frame translation stage between the link and the hub.
type Pipeline struct {
	schemas *schema.Holder
	hub     *hub.Hub

	framesIn       atomic.Uint64
	batches        atomic.Uint64
	integrityDrops atomic.Uint64
}

// NewPipeline returns a pipeline decoding against sch and publishing to h.
func NewPipeline(sch *schema.Schema, h *hub.Hub) *Pipeline {
	return &Pipeline{
		schemas: schema.NewHolder(sch),
		hub:     h,
	}
}

// HandleFrame decodes one frame and publishes the batch. It is the link
// supervisor's frame sink. Integrity failures drop the frame, bump a
// counter and leave the pipeline running; they are never fatal.
func (p *Pipeline) HandleFrame(frame codec.Frame) {
	p.framesIn.Add(1)

	sch := p.schemas.Current()
	if sch == nil {
		p.integrityDrops.Add(1)
		log.Error("frame received with no schema loaded")
		return
	}

	batch, err := codec.Decode(frame, sch)
	if err != nil {
		p.integrityDrops.Add(1)
		log.WithField("err", err).Warn("dropping frame")
		return
	}

	p.batches.Add(1)
	p.hub.Publish(batch)
}

// Reload loads a new catalog and atomically swaps it in. On any validation
// failure the active schema is untouched and the error is returned for the
// operator.
func (p *Pipeline) Reload(r io.Reader) error {
	sch, err := schema.Load(r)
	if err != nil {
		log.WithField("err", err).Error("schema reload rejected")
		return err
	}
	prev := p.schemas.Swap(sch)
	f := log.WithField("version", sch.Version).
		WithField("sensors", len(sch.All()))
	if prev != nil {
		f = f.WithField("prevVersion", prev.Version)
	}
	f.Info("schema swapped")
	return nil
}

// CurrentSchema returns the active schema snapshot.
func (p *Pipeline) CurrentSchema() *schema.Schema {
	return p.schemas.Current()
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		FramesIn:       p.framesIn.Load(),
		Batches:        p.batches.Load(),
		IntegrityDrops: p.integrityDrops.Load(),
	}
}
