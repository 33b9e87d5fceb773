package trigger

import (
	"sync"
	"time"
)

// Registry holds the merged trigger set and answers cooldown questions. The
// registry never fires anything itself; a collaborator decides when
// conditions match and asks CanFire first.
type Registry struct {
	mu       sync.RWMutex
	triggers map[string]*Trigger
	order    []string
}

// NewRegistry creates a registry from a trigger set, usually Merge output.
func NewRegistry(triggers []Trigger) *Registry {
	r := &Registry{triggers: make(map[string]*Trigger, len(triggers))}
	for i := range triggers {
		t := triggers[i]
		r.triggers[t.ID] = &t
		r.order = append(r.order, t.ID)
	}
	return r
}

// Merge combines shipped defaults with persisted user state. Persisted
// per-trigger preferences win; any default trigger absent from persisted
// state is added fresh so new releases never silently drop triggers for
// existing users.
func Merge(defaults, persisted []Trigger) []Trigger {
	byID := make(map[string]Trigger, len(persisted))
	for _, t := range persisted {
		byID[t.ID] = t
	}

	merged := make([]Trigger, 0, len(defaults))
	seen := make(map[string]bool, len(defaults))
	for _, def := range defaults {
		if saved, ok := byID[def.ID]; ok {
			merged = append(merged, saved)
		} else {
			merged = append(merged, def)
		}
		seen[def.ID] = true
	}

	// Persisted triggers with no matching default survive too; they may be
	// user-defined or from a release that still knows them.
	for _, t := range persisted {
		if !seen[t.ID] {
			merged = append(merged, t)
		}
	}
	return merged
}

// Replace swaps the trigger set wholesale, usually with Merge output during
// state restore.
func (r *Registry) Replace(triggers []Trigger) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.triggers = make(map[string]*Trigger, len(triggers))
	r.order = r.order[:0]
	for i := range triggers {
		t := triggers[i]
		r.triggers[t.ID] = &t
		r.order = append(r.order, t.ID)
	}
}

// Get returns a copy of the trigger with the given id.
func (r *Registry) Get(id string) (Trigger, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.triggers[id]
	if !ok {
		return Trigger{}, false
	}
	return *t, true
}

// All returns copies of every trigger in registration order.
func (r *Registry) All() []Trigger {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Trigger, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.triggers[id])
	}
	return out
}

// CanFire reports whether the trigger exists, is enabled, and is outside its
// cooldown window at the given time.
func (r *Registry) CanFire(id string, now time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.triggers[id]
	if !ok || !t.Enabled {
		return false
	}
	if t.LastTriggered == nil {
		return true
	}
	return now.Sub(*t.LastTriggered) >= t.Cooldown
}

// Stamp records that an intervention spawned by the trigger just resolved or
// was dismissed; the cooldown window counts from here, not from firing.
// Unknown ids are ignored.
func (r *Registry) Stamp(id string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.triggers[id]; ok {
		stamped := now
		t.LastTriggered = &stamped
	}
}
