package debugger

import "llsvm/debugdb"

// MinTrackerSlots is the floor on the recent-values tracker's capacity.
const MinTrackerSlots = 10

// TrackedValue is one live slot in the recent-values tracker.
type TrackedValue struct {
	Location       debugdb.VariableLocation
	Age            int
	LastDisplayAge int
	Highlighted    bool
	CallDepth      int
	occupied       bool
}

// RecentValuesTracker implements the match/evict/replace-oldest rules of
// SPEC_FULL.md §4.8 over a fixed-size slot array.
type RecentValuesTracker struct {
	slots  []TrackedValue
	filter string
}

// NewRecentValuesTracker returns a tracker with at least MinTrackerSlots
// slots.
func NewRecentValuesTracker(slots int) *RecentValuesTracker {
	if slots < MinTrackerSlots {
		slots = MinTrackerSlots
	}
	return &RecentValuesTracker{slots: make([]TrackedValue, slots)}
}

// SetFilter installs the substring used to decide highlighting for 'w'.
func (r *RecentValuesTracker) SetFilter(filter string) { r.filter = filter }

// Slots returns the live (occupied) tracked values, in slot order.
func (r *RecentValuesTracker) Slots() []TrackedValue {
	var out []TrackedValue
	for _, s := range r.slots {
		if s.occupied {
			out = append(out, s)
		}
	}
	return out
}

// ClearNonHighlighted implements 'o': free every slot that isn't highlighted.
func (r *RecentValuesTracker) ClearNonHighlighted() {
	for i := range r.slots {
		if r.slots[i].occupied && !r.slots[i].Highlighted {
			r.slots[i] = TrackedValue{}
		}
	}
}

// Tick ages every occupied slot by one instruction.
func (r *RecentValuesTracker) Tick() {
	for i := range r.slots {
		if r.slots[i].occupied {
			r.slots[i].Age++
		}
	}
}

// storeResult reports what Store evicted: evictedHighlighted is set when a
// highlighted register-class slot is evicted by a newer binding of the same
// register under a different name - the session reads this flag to decide
// whether to break into the REPL.
type storeResult struct {
	evictedHighlighted bool
	evictedName        string
}

// Store records a sighting of v at the given call depth, applying the
// match/evict/replace-oldest rules in order.
func (r *RecentValuesTracker) Store(v debugdb.VariableLocation, callDepth int) storeResult {
	highlighted := r.isHighlighted(v)

	// Rule 1: same name anywhere -> overwrite in place.
	for i := range r.slots {
		if r.slots[i].occupied && r.slots[i].Location.Name == v.Name {
			r.slots[i] = TrackedValue{Location: v, Highlighted: highlighted, CallDepth: callDepth, occupied: true}
			return storeResult{}
		}
	}

	// Rule 2: same register, different name -> evict that slot.
	if v.Position == debugdb.InRegister {
		for i := range r.slots {
			if r.slots[i].occupied &&
				r.slots[i].Location.Position == debugdb.InRegister &&
				r.slots[i].Location.Offset == v.Offset &&
				r.slots[i].Location.Name != v.Name {
				evicted := r.slots[i]
				r.slots[i] = TrackedValue{Location: v, Highlighted: highlighted, CallDepth: callDepth, occupied: true}
				return storeResult{evictedHighlighted: evicted.Highlighted, evictedName: evicted.Location.Name}
			}
		}
	}

	// Rule 3: an empty slot, else the oldest non-highlighted slot.
	target := -1
	for i := range r.slots {
		if !r.slots[i].occupied {
			target = i
			break
		}
	}
	if target == -1 {
		oldestAge := -1
		for i := range r.slots {
			if r.slots[i].Highlighted {
				continue
			}
			if r.slots[i].Age > oldestAge {
				oldestAge = r.slots[i].Age
				target = i
			}
		}
	}
	if target == -1 {
		// Every slot is highlighted: nothing to evict, drop the sighting.
		return storeResult{}
	}
	r.slots[target] = TrackedValue{Location: v, Highlighted: highlighted, CallDepth: callDepth, occupied: true}
	return storeResult{}
}

// isHighlighted implements the highlight rule: the current filter matches
// the name, or the descriptor is a non-const variable.
func (r *RecentValuesTracker) isHighlighted(v debugdb.VariableLocation) bool {
	if r.filter != "" && containsSubstring(v.Name, r.filter) {
		return true
	}
	return v.IsVariable && !v.IsConst
}

func containsSubstring(s, substr string) bool {
	if substr == "" {
		return false
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// Visible reports whether slot v should be displayed at the given call
// depth: static variables only at their recorded depth, non-static ones
// regardless of depth.
func (v TrackedValue) Visible(currentDepth int) bool {
	if v.Location.IsStatic {
		return v.CallDepth == currentDepth
	}
	return true
}
