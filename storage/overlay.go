package storage

import "sync"

// Overlay buffers writes on top of a base database so a state transition can
// be applied speculatively and either flushed as a whole or discarded. Reads
// consult the overlay first and fall through to the base. The zero-length
// tombstone distinguishes deletions from absent keys.
//
// Overlay is not safe for concurrent use across transitions; the execution
// model is one call at a time.
type Overlay struct {
	mu      sync.Mutex
	base    Database
	writes  map[string][]byte
	deletes map[string]struct{}
}

// NewOverlay creates an overlay on top of the provided base database.
func NewOverlay(base Database) *Overlay {
	return &Overlay{
		base:    base,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := string(key)
	delete(o.deletes, k)
	o.writes[k] = append([]byte(nil), value...)
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.Lock()
	k := string(key)
	if _, gone := o.deletes[k]; gone {
		o.mu.Unlock()
		return nil, nil
	}
	if value, ok := o.writes[k]; ok {
		o.mu.Unlock()
		return append([]byte(nil), value...), nil
	}
	o.mu.Unlock()
	return o.base.Get(key)
}

func (o *Overlay) Delete(key []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := string(key)
	delete(o.writes, k)
	o.deletes[k] = struct{}{}
	return nil
}

// Close satisfies the Database interface. The base is left open; overlays are
// transient.
func (o *Overlay) Close() {}

// Flush applies the buffered writes and deletions to the base database and
// resets the overlay. When any write fails the base is left partially applied,
// so callers should treat a flush error as fatal for the node rather than for
// the transition.
func (o *Overlay) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for k, v := range o.writes {
		if err := o.base.Put([]byte(k), v); err != nil {
			return err
		}
	}
	for k := range o.deletes {
		if err := o.base.Delete([]byte(k)); err != nil {
			return err
		}
	}
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
	return nil
}

// Discard drops all buffered mutations, leaving the base untouched.
func (o *Overlay) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
}

// Dirty reports whether the overlay holds unflushed mutations.
func (o *Overlay) Dirty() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.writes) > 0 || len(o.deletes) > 0
}
