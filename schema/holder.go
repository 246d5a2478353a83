package schema

import "sync/atomic"

// Holder is the shared "currently active schema" cell. Readers take a
// snapshot per operation and never lock; a reload builds a fresh Schema and
// swaps it in whole, so an in-flight decode keeps the schema it started with.
type Holder struct {
	p atomic.Pointer[Schema]
}

// NewHolder returns a holder with s active. s may be nil.
func NewHolder(s *Schema) *Holder {
	h := &Holder{}
	if s != nil {
		h.p.Store(s)
	}
	return h
}

// Current returns the active schema, or nil if none has been loaded.
func (h *Holder) Current() *Schema {
	return h.p.Load()
}

// Swap installs s and returns the schema it replaced.
func (h *Holder) Swap(s *Schema) *Schema {
	return h.p.Swap(s)
}
