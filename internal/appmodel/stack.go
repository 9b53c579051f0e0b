package appmodel

// StateStack is the per-application stack of HmiState entries described
// in spec.md §3/§4.3. The bottom entry is always Kind == StateRegular;
// everything above it is a transient overlay. The top of the stack is
// the effective state.
type StateStack struct {
	entries []*HmiState

	// postponed holds a REGULAR state that arrived while an overlay was
	// on top of the stack; it is promoted in on the next Pop that empties
	// the overlay section, per spec.md §4.3.
	postponed *HmiState
}

func newStateStack(regular *HmiState) *StateStack {
	return &StateStack{entries: []*HmiState{regular}}
}

// Regular returns the bottom-of-stack REGULAR state.
func (s *StateStack) Regular() *HmiState { return s.entries[0] }

// Top returns the effective (topmost) state.
func (s *StateStack) Top() *HmiState { return s.entries[len(s.entries)-1] }

// SetRegular replaces the bottom-of-stack REGULAR state in place,
// relinking the bottom overlay's Parent if one exists.
func (s *StateStack) SetRegular(regular *HmiState) {
	regular.Kind = StateRegular
	s.entries[0] = regular
	if len(s.entries) > 1 {
		s.entries[1].Parent = regular
	}
}

// Push adds an overlay state on top of the current top, linking Parent
// to the previous top, and returns it.
func (s *StateStack) Push(overlay *HmiState) *HmiState {
	overlay.Parent = s.Top()
	s.entries = append(s.entries, overlay)
	return overlay
}

// Pop removes the topmost entry matching kind, searching from the top
// down (overlays are expected to be popped in roughly push order, but a
// search is used rather than assuming strict LIFO since e.g. a VR
// session and a phone call can overlap in either order). Returns false
// if no entry of that kind exists above the REGULAR floor.
//
// After a successful pop, if the stack is back down to just the REGULAR
// entry and a postponed REGULAR state is queued, it is promoted — this
// is the only place promotion happens, matching spec.md §4.3.
func (s *StateStack) Pop(kind StateID) bool {
	if kind == StateRegular {
		return false
	}
	idx := -1
	for i := len(s.entries) - 1; i >= 1; i-- {
		if s.entries[i].Kind == kind {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false
	}
	removed := s.entries[idx]
	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
	if idx < len(s.entries) {
		var parent *HmiState
		if idx == 0 {
			parent = nil
		} else {
			parent = s.entries[idx-1]
		}
		s.entries[idx].Parent = parent
	}
	_ = removed

	if len(s.entries) == 1 && s.postponed != nil {
		s.SetRegular(s.postponed)
		s.postponed = nil
	}
	return true
}

// QueuePostponed stashes a REGULAR state to be promoted once all
// overlays have been popped, used when SetRegularState is called while
// an overlay is active.
func (s *StateStack) QueuePostponed(regular *HmiState) {
	regular.Kind = StatePostponed
	s.postponed = regular
}

// HasOverlay reports whether an overlay of the given kind is currently
// on the stack.
func (s *StateStack) HasOverlay(kind StateID) bool {
	for _, e := range s.entries[1:] {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// Depth returns the number of entries, including the REGULAR floor.
func (s *StateStack) Depth() int { return len(s.entries) }
