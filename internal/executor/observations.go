package executor

import (
	"strings"
	"sync"

	"github.com/dshills/skim/internal/schema"
)

// Observations is the text actually read during a session, keyed by unit.
// Only units recorded here may back a VERIFIED or SAMPLED finding.
type Observations struct {
	mu    sync.RWMutex
	units map[int]string
}

// NewObservations returns an empty store.
func NewObservations() *Observations {
	return &Observations{units: make(map[int]string)}
}

// Record stores the text of each unit.
func (o *Observations) Record(us []schema.UnitText) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, u := range us {
		o.units[u.Index] = u.Text
	}
}

// Text returns the newline-joined text of r. ok is false unless every unit
// of r was observed.
func (o *Observations) Text(r schema.Range) (string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	parts := make([]string, 0, r.Len())
	for u := r.Start; u <= r.End; u++ {
		t, found := o.units[u]
		if !found {
			return "", false
		}
		parts = append(parts, t)
	}
	return strings.Join(parts, "\n"), len(parts) > 0
}

// Len returns the number of observed units.
func (o *Observations) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.units)
}

// Chars returns the number of characters observed across all units.
func (o *Observations) Chars() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	n := 0
	for _, t := range o.units {
		n += len([]rune(t))
	}
	return n
}
