// Package profile reads the employee profile cache synced from the data warehouse.
package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"peoplefinder/internal/search/domain"
	"peoplefinder/internal/search/providers"
)

// Extension fields carried by profile records.
const (
	FieldCostCenter = "costCenter"
	FieldLocation   = "location"
	FieldSyncedAt   = "syncedAt"
)

const selectColumns = `SELECT employee_id, email, upn, display_name, given_name, family_name, job_title,
	department, manager_name, cost_center, location, work_phone, mobile_phone, is_active, synced_at
FROM employee_profiles`

const (
	queryByAddress = selectColumns + ` WHERE lower(email) = lower($1) OR lower(upn) = lower($1) ORDER BY display_name`
	queryByName    = selectColumns + ` WHERE employee_id = $1 OR display_name ILIKE $2 ORDER BY display_name`
	queryByID      = selectColumns + ` WHERE employee_id = $1`
)

type row struct {
	EmployeeID  string         `db:"employee_id"`
	Email       sql.NullString `db:"email"`
	UPN         sql.NullString `db:"upn"`
	DisplayName sql.NullString `db:"display_name"`
	GivenName   sql.NullString `db:"given_name"`
	FamilyName  sql.NullString `db:"family_name"`
	JobTitle    sql.NullString `db:"job_title"`
	Department  sql.NullString `db:"department"`
	ManagerName sql.NullString `db:"manager_name"`
	CostCenter  sql.NullString `db:"cost_center"`
	Location    sql.NullString `db:"location"`
	WorkPhone   sql.NullString `db:"work_phone"`
	MobilePhone sql.NullString `db:"mobile_phone"`
	IsActive    sql.NullBool   `db:"is_active"`
	SyncedAt    sql.NullTime   `db:"synced_at"`
}

// Config holds the profile store settings.
type Config struct {
	DSN   string
	Limit int
}

// Backend implements providers.Backend over the profile table.
type Backend struct {
	db    *sqlx.DB
	limit int
}

// Open connects to PostgreSQL with lib/pq.
func Open(cfg Config) (*Backend, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("profile DSN is required")
	}
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open profile store: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db, cfg.Limit), nil
}

// New wraps an existing connection.
func New(db *sqlx.DB, limit int) *Backend {
	return &Backend{db: db, limit: limit}
}

// Close releases the connection pool.
func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) Name() string { return providers.Profile }

// Search matches addresses exactly and otherwise an employee ID or a display
// name prefix.
func (b *Backend) Search(ctx context.Context, term string) (domain.Outcome, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return domain.Absent(), nil
	}

	query := queryByName
	args := []any{term, escapeLike(term) + "%"}
	if strings.Contains(term, "@") {
		query = queryByAddress
		args = []any{term}
	}
	if b.limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", b.limit+1)
	}

	var rows []row
	if err := b.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return domain.Outcome{}, b.wrap(ctx, "search", err)
	}

	records := make([]domain.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.toRecord())
	}
	return providers.Classify(b.Name(), records, b.limit)
}

// FetchByID reads one profile by employee ID.
func (b *Backend) FetchByID(ctx context.Context, id string) (domain.Record, error) {
	if id == "" {
		return nil, nil
	}
	var r row
	err := b.db.GetContext(ctx, &r, queryByID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, b.wrap(ctx, "fetch", err)
	}
	return r.toRecord(), nil
}

// TestConnection pings the database.
func (b *Backend) TestConnection(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return b.wrap(ctx, "ping", err)
	}
	return nil
}

func (b *Backend) wrap(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return providers.NewProviderError(providers.ErrorTimeout, b.Name(), op+" interrupted", err)
	}
	return providers.NewProviderError(providers.ErrorBackend, b.Name(), op+" failed", err)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r row) toRecord() domain.Record {
	rec := domain.Record{domain.FieldID: r.EmployeeID}
	rec.Set(domain.FieldEmployeeID, r.EmployeeID)
	rec.Set(domain.FieldEmail, r.Email.String)
	rec.Set(domain.FieldUserPrincipalName, r.UPN.String)
	rec.Set(domain.FieldDisplayName, r.DisplayName.String)
	rec.Set(domain.FieldGivenName, r.GivenName.String)
	rec.Set(domain.FieldFamilyName, r.FamilyName.String)
	rec.Set(domain.FieldJobTitle, r.JobTitle.String)
	rec.Set(domain.FieldDepartment, r.Department.String)
	rec.Set(domain.FieldManager, r.ManagerName.String)
	rec.Set(FieldCostCenter, r.CostCenter.String)
	rec.Set(FieldLocation, r.Location.String)
	rec.SetPhone(domain.PhoneWork, r.WorkPhone.String)
	rec.SetPhone(domain.PhoneMobile, r.MobilePhone.String)
	if r.IsActive.Valid {
		rec[domain.FieldAccountEnabled] = r.IsActive.Bool
	}
	if r.SyncedAt.Valid {
		// Warehouse timestamps may arrive without a zone; they are UTC.
		rec[FieldSyncedAt] = r.SyncedAt.Time.UTC().Format(time.RFC3339)
	}
	return rec
}
