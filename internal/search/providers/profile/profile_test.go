package profile_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peoplefinder/internal/search/domain"
	"peoplefinder/internal/search/providers"
	"peoplefinder/internal/search/providers/contract"
	"peoplefinder/internal/search/providers/profile"
)

var columns = []string{
	"employee_id", "email", "upn", "display_name", "given_name", "family_name", "job_title",
	"department", "manager_name", "cost_center", "location", "work_phone", "mobile_phone", "is_active", "synced_at",
}

var syncedAt = time.Date(2026, 3, 14, 2, 0, 0, 0, time.FixedZone("EST", -5*3600))

func aliceRow(rows *sqlmock.Rows) *sqlmock.Rows {
	return rows.AddRow("E100", "alice@example.com", "alice@example.com", "Alice Smith", "Alice", "Smith", "Controller",
		"Finance", "Bob Jones", "CC-42", "London", "+15550500", nil, true, syncedAt)
}

func bobRow(rows *sqlmock.Rows) *sqlmock.Rows {
	return rows.AddRow("E200", "bob@example.com", nil, "Bob Jones", nil, nil, nil,
		nil, nil, nil, nil, nil, nil, false, nil)
}

func newBackend(t *testing.T, limit int) (*profile.Backend, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return profile.New(sqlx.NewDb(db, "sqlmock"), limit), mock
}

func TestProfileSearchByAddress(t *testing.T) {
	b, mock := newBackend(t, 25)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE lower(email) = lower($1) OR lower(upn) = lower($1) ORDER BY display_name LIMIT 26")).
		WithArgs("Alice@Example.com").
		WillReturnRows(aliceRow(sqlmock.NewRows(columns)))

	out, err := b.Search(context.Background(), "Alice@Example.com")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeFound, out.Kind())

	r := out.Record()
	assert.Equal(t, "E100", r.ID())
	assert.Equal(t, "CC-42", r.String(profile.FieldCostCenter))
	assert.Equal(t, "London", r.String(profile.FieldLocation))
	assert.Equal(t, "2026-03-14T07:00:00Z", r.String(profile.FieldSyncedAt))
	assert.Equal(t, map[string]string{domain.PhoneWork: "+15550500"}, r.Phones())
	assert.True(t, r.Bool(domain.FieldAccountEnabled))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileSearchByName(t *testing.T) {
	b, mock := newBackend(t, 25)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE employee_id = $1 OR display_name ILIKE $2")).
		WithArgs("50%_off", `50\%\_off%`).
		WillReturnRows(sqlmock.NewRows(columns))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE employee_id = $1 OR display_name ILIKE $2")).
		WithArgs("b", "b%").
		WillReturnRows(bobRow(aliceRow(sqlmock.NewRows(columns))))

	out, err := b.Search(context.Background(), "50%_off")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAbsent, out.Kind())

	out, err = b.Search(context.Background(), "b")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeCandidates, out.Kind())
	bob := out.Candidates()[1]
	assert.Equal(t, "Bob Jones", bob.String(domain.FieldDisplayName))
	assert.NotContains(t, bob, domain.FieldJobTitle)
	assert.NotContains(t, bob, profile.FieldSyncedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileTooManyResults(t *testing.T) {
	b, mock := newBackend(t, 1)
	mock.ExpectQuery("LIMIT 2").
		WillReturnRows(bobRow(aliceRow(sqlmock.NewRows(columns))))

	(&contract.ErrorContractTest{
		Name:          "one row past the cap",
		Backend:       b,
		Term:          "a",
		ExpectedError: providers.ErrorTooManyResults,
	}).Run(t)
}

func TestProfileFetchByID(t *testing.T) {
	b, mock := newBackend(t, 25)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE employee_id = $1")).
		WithArgs("E100").
		WillReturnRows(aliceRow(sqlmock.NewRows(columns)))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE employee_id = $1")).
		WithArgs("E999").
		WillReturnError(sql.ErrNoRows)

	(&contract.FetchTest{Backend: b, KnownID: "E100", UnknownID: "E999"}).Run(t)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileFailures(t *testing.T) {
	t.Run("query error", func(t *testing.T) {
		b, mock := newBackend(t, 25)
		mock.ExpectQuery("employee_profiles").WillReturnError(errors.New("relation does not exist"))
		_, err := b.Search(context.Background(), "alice")
		assert.Equal(t, providers.ErrorBackend, providers.GetCategory(err))
	})

	t.Run("cancelled", func(t *testing.T) {
		b, mock := newBackend(t, 25)
		mock.ExpectQuery("employee_profiles").
			WillDelayFor(time.Second).
			WillReturnRows(sqlmock.NewRows(columns))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := b.Search(ctx, "alice")
		assert.True(t, providers.IsTimeout(err))
	})

	t.Run("ping", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		err = profile.New(sqlx.NewDb(db, "sqlmock"), 25).TestConnection(context.Background())
		assert.Equal(t, providers.ErrorBackend, providers.GetCategory(err))
	})
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := profile.Open(profile.Config{})
	assert.Error(t, err)
}
