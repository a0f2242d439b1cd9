package scheduling

// FindOverlap returns the first existing interval that overlaps the candidate.
// The check is symmetric, so it does not matter which side is the new one.
// An existing entry for the very same span (a session already booked) counts
// as an overlap; callers exclude the candidate's own record when they need to.
func FindOverlap(candidate Interval, existing []Interval) (Interval, bool) {
	for _, item := range existing {
		if candidate.Overlaps(item) {
			return item, true
		}
	}
	return Interval{}, false
}

// HasOverlap reports whether any existing interval overlaps the candidate.
func HasOverlap(candidate Interval, existing []Interval) bool {
	_, found := FindOverlap(candidate, existing)
	return found
}
