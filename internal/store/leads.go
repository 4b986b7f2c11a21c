package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"leadscout/internal/lead"
)

const leadColumns = `id, created_at, first_name, email, phone, company, roles_advertised,
	sector, employment_type, date_posted, entry_date, salary_info, location, ad_url,
	source_subject, skip_reason, dedupe_key, duplicate_flag, priority, qualified`

// FindByDedupeKey returns the oldest lead with key, or lead.ErrNotFound.
func (s *SQLiteStore) FindByDedupeKey(ctx context.Context, key string) (lead.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+leadColumns+" FROM leads WHERE dedupe_key = ? ORDER BY id LIMIT 1", key)
	l, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return lead.Lead{}, lead.ErrNotFound
	}
	if err != nil {
		return lead.Lead{}, fmt.Errorf("find by dedupe key: %w", err)
	}
	return l, nil
}

// MarkDuplicate sets duplicate_flag on lead id.
func (s *SQLiteStore) MarkDuplicate(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE leads SET duplicate_flag = TRUE WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("mark duplicate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return lead.ErrNotFound
	}
	s.logger.Debug("lead marked duplicate", zap.Int64("id", id))
	return nil
}

// Insert stores l and fills in its ID and CreatedAt.
func (s *SQLiteStore) Insert(ctx context.Context, l *lead.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO leads (
		created_at, first_name, email, phone, company, roles_advertised, sector,
		employment_type, date_posted, entry_date, salary_info, location, ad_url,
		source_subject, skip_reason, dedupe_key, duplicate_flag, priority, qualified
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.CreatedAt.UTC().Format(timestampLayout),
		nullString(l.FirstName), nullString(l.Email), nullString(l.Phone),
		nullString(l.Company), nullString(l.RolesAdvertised), nullString(l.Sector),
		nullString(l.EmploymentType), nullString(l.DatePosted), nullString(l.EntryDate),
		nullString(l.SalaryInfo), nullString(l.Location), nullString(l.AdURL),
		nullString(l.SourceSubject), nullString(l.SkipReason), nullString(l.DedupeKey),
		l.DuplicateFlag, l.Priority, l.Qualified,
	)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	l.ID = id
	return nil
}

// List returns leads matching f, newest first.
func (s *SQLiteStore) List(ctx context.Context, f lead.Filter) ([]lead.Lead, error) {
	var where []string
	var args []any
	like := func(column, value string) {
		if v := strings.TrimSpace(value); v != "" {
			where = append(where, "LOWER("+column+") LIKE ? ESCAPE '\\'")
			args = append(args, "%"+escapeLike(strings.ToLower(v))+"%")
		}
	}
	like("roles_advertised", f.Role)
	like("location", f.Town)
	like("location", f.State)

	query := "SELECT " + leadColumns + " FROM leads"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, f.EffectiveLimit())

	return s.query(ctx, query, args...)
}

// All returns every lead, newest first.
func (s *SQLiteStore) All(ctx context.Context) ([]lead.Lead, error) {
	return s.query(ctx, "SELECT "+leadColumns+" FROM leads ORDER BY created_at DESC, id DESC")
}

// Metrics summarises the leads table.
func (s *SQLiteStore) Metrics(ctx context.Context) (lead.Metrics, error) {
	var m lead.Metrics
	err := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN duplicate_flag THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN priority >= ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN COALESCE(email, '') <> '' OR COALESCE(phone, '') <> '' THEN 1 ELSE 0 END), 0)
		FROM leads`, lead.HighPriorityThreshold,
	).Scan(&m.TotalLeads, &m.DuplicatesFound, &m.HighPriorityLeads, &m.ContactsFound)
	if err != nil {
		return lead.Metrics{}, fmt.Errorf("metrics: %w", err)
	}
	m.UniqueLeads = m.TotalLeads - m.DuplicatesFound
	return m, nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]lead.Lead, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	leads := []lead.Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	return leads, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLead(row scanner) (lead.Lead, error) {
	var (
		l         lead.Lead
		createdAt string
		text      [15]sql.NullString
	)
	err := row.Scan(&l.ID, &createdAt,
		&text[0], &text[1], &text[2], &text[3], &text[4], &text[5], &text[6],
		&text[7], &text[8], &text[9], &text[10], &text[11], &text[12], &text[13], &text[14],
		&l.DuplicateFlag, &l.Priority, &l.Qualified)
	if err != nil {
		return lead.Lead{}, err
	}
	for i, dst := range []*string{
		&l.FirstName, &l.Email, &l.Phone, &l.Company, &l.RolesAdvertised,
		&l.Sector, &l.EmploymentType, &l.DatePosted, &l.EntryDate, &l.SalaryInfo,
		&l.Location, &l.AdURL, &l.SourceSubject, &l.SkipReason, &l.DedupeKey,
	} {
		*dst = text[i].String
	}
	l.CreatedAt = parseTimestamp(createdAt)
	return l, nil
}

// timestampLayout is fixed width so text ordering matches time ordering.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
