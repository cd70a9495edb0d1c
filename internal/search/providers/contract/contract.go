package contract

import (
	"context"
	"encoding/json"
	"testing"

	"peoplefinder/internal/search/domain"
	"peoplefinder/internal/search/providers"
)

// ContractTest defines a search case every backend must answer consistently
type ContractTest struct {
	Name         string
	Term         string
	ExpectedKind domain.OutcomeKind
	ValidateFunc func(outcome domain.Outcome) error
}

// ContractSuite is a collection of contract tests for one backend
type ContractSuite struct {
	Backend providers.Backend
	Name    string
	Limit   int
	Tests   []ContractTest
}

// Run executes all contract tests in the suite
func (s *ContractSuite) Run(t *testing.T) {
	if got := s.Backend.Name(); got != s.Name {
		t.Fatalf("expected backend name %s, got %s", s.Name, got)
	}

	for _, test := range s.Tests {
		t.Run(test.Name, func(t *testing.T) {
			outcome, err := s.Backend.Search(context.Background(), test.Term)
			if err != nil {
				t.Fatalf("backend search failed: %v", err)
			}

			if outcome.Kind() != test.ExpectedKind {
				t.Errorf("expected outcome %s, got %s", test.ExpectedKind, outcome.Kind())
			}

			if s.Limit > 0 && outcome.CandidateCount() > s.Limit {
				t.Errorf("%d candidates exceed the cap of %d", outcome.CandidateCount(), s.Limit)
			}

			records := outcome.Candidates()
			if outcome.Record() != nil {
				records = append(records, outcome.Record())
			}
			for _, r := range records {
				validateRecord(t, r)
			}

			if test.ValidateFunc != nil {
				if err := test.ValidateFunc(outcome); err != nil {
					t.Errorf("custom validation failed: %v", err)
				}
			}
		})
	}
}

// Records must be addressable through FetchByID and are tagged only by the merger.
func validateRecord(t *testing.T, r domain.Record) {
	t.Helper()
	if r.ID() == "" {
		t.Error("record has no id")
	}
	if _, tagged := r[domain.FieldDataSource]; tagged {
		t.Error("backend must not set the dataSource tag")
	}
	if _, err := json.Marshal(r); err != nil {
		t.Errorf("record is not JSON encodable: %v", err)
	}
}

// FetchTest checks FetchByID for a known and an unknown identifier
type FetchTest struct {
	Backend   providers.Backend
	KnownID   string
	UnknownID string
}

// Run executes the fetch test
func (ft *FetchTest) Run(t *testing.T) {
	ctx := context.Background()

	record, err := ft.Backend.FetchByID(ctx, ft.KnownID)
	if err != nil {
		t.Fatalf("fetch %s failed: %v", ft.KnownID, err)
	}
	if record == nil {
		t.Fatalf("fetch %s returned no record", ft.KnownID)
	}
	validateRecord(t, record)

	if ft.UnknownID == "" {
		return
	}
	missing, err := ft.Backend.FetchByID(ctx, ft.UnknownID)
	if err != nil {
		t.Fatalf("fetch of unknown id must not fail: %v", err)
	}
	if missing != nil {
		t.Errorf("expected no record for %s, got %v", ft.UnknownID, missing)
	}
}

// ErrorContractTest validates that backend errors follow the taxonomy
type ErrorContractTest struct {
	Name          string
	Backend       providers.Backend
	Term          string
	ExpectedError providers.ErrorCategory
	ExpectedRetry bool
}

// Run executes an error contract test
func (ect *ErrorContractTest) Run(t *testing.T) {
	_, err := ect.Backend.Search(context.Background(), ect.Term)
	if err == nil {
		t.Fatal("expected error but got none")
	}

	category := providers.GetCategory(err)
	if category != ect.ExpectedError {
		t.Errorf("expected error category %s, got %s", ect.ExpectedError, category)
	}

	isRetryable := providers.IsRetryable(err)
	if isRetryable != ect.ExpectedRetry {
		t.Errorf("expected retryable=%v, got %v", ect.ExpectedRetry, isRetryable)
	}
}
