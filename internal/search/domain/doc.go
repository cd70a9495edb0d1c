// Package domain contains the pure model for the Search bounded context.
//
// # Search Bounded Context
//
// The Search context looks a person up across independent identity backends
// (directory, cloud graph, contact center, employee profile cache) and
// reconciles the heterogeneous answers into one view.
//
// # Types
//
//   - Record: normalized attributes of one person from one backend, keyed by
//     the Field* names declared in record.go.
//   - Outcome: what one backend answered for one invocation. Exactly one of
//     Absent, Found, Candidates or Failed.
//   - Merged: the reconciled answer. Exactly one of Absent, Single or
//     Disambiguation.
//
// Key Invariants:
//   - An Outcome never carries both a record and a candidate list.
//   - A Record produced by combining two sources carries FieldDataSource and
//     FieldHasSecondarySourceData.
//   - A Record that has a photo after tagging or combining names the backend
//     and identifier that serve it in FieldPhotoSource and FieldPhotoID.
//   - Combining is deterministic: the same inputs always produce the same
//     Record, with no clock-derived fields.
//
// # Domain Purity
//
//	✓ No I/O (no network, database or filesystem access)
//	✓ No context.Context in function signatures
//	✓ No time.Now() calls
//
// Follow-up fetches needed by smart matching are performed by the merge
// package, which calls into the pure predicates defined here.
package domain
