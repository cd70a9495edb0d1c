package domain

import "errors"

// OutcomeKind tags which variant an Outcome holds.
type OutcomeKind int

const (
	OutcomeAbsent OutcomeKind = iota
	OutcomeFound
	OutcomeCandidates
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAbsent:
		return "absent"
	case OutcomeFound:
		return "found"
	case OutcomeCandidates:
		return "candidates"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is what one backend answered for one search invocation.
//
// Invariants:
//   - Found carries exactly one record and no candidates
//   - Candidates carries two or more records and no single record
//   - Failed carries a non-nil error and nothing else
//   - Absent carries nothing
type Outcome struct {
	kind       OutcomeKind
	record     Record
	candidates []Record
	err        error
}

// ErrNilFailure is used when Failed is called with a nil error.
var ErrNilFailure = errors.New("backend failed without an error")

// Absent is the outcome for a legitimate "no match".
func Absent() Outcome {
	return Outcome{kind: OutcomeAbsent}
}

// Found is the outcome for exactly one match. A nil record is Absent.
func Found(record Record) Outcome {
	if record == nil {
		return Absent()
	}
	return Outcome{kind: OutcomeFound, record: record}
}

// Candidates is the outcome for several matches. Zero records collapse to
// Absent and a single record to Found.
func Candidates(records []Record) Outcome {
	switch len(records) {
	case 0:
		return Absent()
	case 1:
		return Found(records[0])
	}
	return Outcome{kind: OutcomeCandidates, candidates: records}
}

// Failed is the outcome for a backend error.
func Failed(err error) Outcome {
	if err == nil {
		err = ErrNilFailure
	}
	return Outcome{kind: OutcomeFailed, err: err}
}

func (o Outcome) Kind() OutcomeKind { return o.kind }
func (o Outcome) Record() Record { return o.record }
func (o Outcome) Candidates() []Record { return o.candidates }
func (o Outcome) Err() error { return o.err }
func (o Outcome) IsFailed() bool { return o.kind == OutcomeFailed }
func (o Outcome) HasAnswer() bool { return o.kind == OutcomeFound || o.kind == OutcomeCandidates }
func (o Outcome) CandidateCount() int { return len(o.candidates) }
func (o Outcome) ErrorMessage() string {
	if o.err == nil {
		return ""
	}
	return o.err.Error()
}
