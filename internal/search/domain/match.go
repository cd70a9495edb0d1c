package domain

import "slices"

// MatchCandidate looks for the candidate sharing a unique identifier (email or
// user principal name, compared case-insensitively) with anchor. The first
// matching candidate in list order wins; duplicate identifiers across
// candidates are not treated as an error.
func MatchCandidate(anchor Record, candidates []Record) (Record, bool) {
	wanted := anchor.Identifiers()
	if len(wanted) == 0 {
		return nil, false
	}
	for _, candidate := range candidates {
		for _, id := range candidate.Identifiers() {
			if slices.Contains(wanted, id) {
				return candidate, true
			}
		}
	}
	return nil, false
}
