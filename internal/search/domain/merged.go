package domain

// MergedKind tags which variant a Merged result holds.
type MergedKind int

const (
	MergedAbsent MergedKind = iota
	MergedSingle
	MergedDisambiguation
)

func (k MergedKind) String() string {
	switch k {
	case MergedAbsent:
		return "absent"
	case MergedSingle:
		return "single"
	case MergedDisambiguation:
		return "disambiguation"
	default:
		return "unknown"
	}
}

// Merged is the reconciled answer for one section of a search.
//
// Invariants:
//   - Single carries one Record
//   - Disambiguation carries Candidates and Total == len(Candidates)
//   - Absent carries neither; Advisory is set only when every contributing
//     source failed
type Merged struct {
	Kind       MergedKind
	Record     Record
	Candidates []Record
	Total      int
	Advisory   string
}

// AbsentResult builds an Absent result with an optional advisory message.
func AbsentResult(advisory string) Merged {
	return Merged{Kind: MergedAbsent, Advisory: advisory}
}

// SingleResult builds a Single result.
func SingleResult(record Record) Merged {
	if record == nil {
		return AbsentResult("")
	}
	return Merged{Kind: MergedSingle, Record: record}
}

// DisambiguationResult builds a Disambiguation result from one or more
// candidate lists, concatenated in argument order.
func DisambiguationResult(lists ...[]Record) Merged {
	var all []Record
	for _, list := range lists {
		all = append(all, list...)
	}
	if len(all) == 0 {
		return AbsentResult("")
	}
	return Merged{Kind: MergedDisambiguation, Candidates: all, Total: len(all)}
}

// Count returns how many person records the result exposes.
func (m Merged) Count() int {
	switch m.Kind {
	case MergedSingle:
		return 1
	case MergedDisambiguation:
		return m.Total
	default:
		return 0
	}
}
