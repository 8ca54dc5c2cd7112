package shared

// Transitions is an allow-list of status changes keyed by the current status.
type Transitions[S ~string] map[S][]S

// Allowed reports whether from -> to is listed.
func (t Transitions[S]) Allowed(from, to S) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Check returns a business error when from -> to is not listed.
func (t Transitions[S]) Check(entity string, from, to S) error {
	if t.Allowed(from, to) {
		return nil
	}
	return BadTransition(entity, string(from), string(to))
}

// Terminal reports whether no transition leaves status.
func (t Transitions[S]) Terminal(status S) bool {
	return len(t[status]) == 0
}
