package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/service/attendance"
)

// AttendanceRepo implements attendance.Repository against PostgreSQL.
type AttendanceRepo struct{ db *sql.DB }

// NewAttendanceRepo creates a Postgres-backed attendance repository.
func NewAttendanceRepo(db *sql.DB) *AttendanceRepo { return &AttendanceRepo{db: db} }

func (r *AttendanceRepo) Create(ctx context.Context, a *domain.Attendance) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance (id, contact_id, phone, service_type, service_date, recorded_by, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.ContactID, a.Phone, a.ServiceType, a.ServiceDate, a.RecordedBy, a.RecordedAt)
	switch pgCode(err) {
	case uniqueViolation:
		return attendance.ErrDuplicate
	case foreignKeyViolation:
		return attendance.ErrContactNotFound
	}
	if err != nil {
		return fmt.Errorf("record attendance: %w", err)
	}
	return nil
}

func rangeWhere(from, to *time.Time, where []string, args []interface{}) ([]string, []interface{}) {
	if from != nil {
		args = append(args, *from)
		where = append(where, fmt.Sprintf("a.service_date >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, *to)
		where = append(where, fmt.Sprintf("a.service_date <= $%d", len(args)))
	}
	return where, args
}

func (r *AttendanceRepo) List(ctx context.Context, f attendance.ListFilter) ([]domain.Attendance, int, error) {
	where, args := rangeWhere(f.From, f.To, []string{"TRUE"}, nil)
	if f.ServiceType != "" {
		args = append(args, f.ServiceType)
		where = append(where, fmt.Sprintf("a.service_type = $%d", len(args)))
	}
	if f.ContactID != "" {
		args = append(args, f.ContactID)
		where = append(where, fmt.Sprintf("a.contact_id = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance a WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}

	q := `
		SELECT a.id, a.contact_id, a.phone, a.service_type, a.service_date, a.recorded_by, a.recorded_at, c.name
		FROM attendance a
		LEFT JOIN contacts c ON c.id = a.contact_id
		WHERE ` + cond + ` ORDER BY a.service_date DESC, a.recorded_at DESC`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	out := []domain.Attendance{}
	for rows.Next() {
		var (
			a    domain.Attendance
			name sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.ContactID, &a.Phone, &a.ServiceType, &a.ServiceDate,
			&a.RecordedBy, &a.RecordedAt, &name); err != nil {
			return nil, 0, fmt.Errorf("scan attendance: %w", err)
		}
		if name.Valid {
			a.ContactName = &name.String
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (r *AttendanceRepo) Summary(ctx context.Context, from, to *time.Time) (*domain.AttendanceSummary, error) {
	where, args := rangeWhere(from, to, []string{"TRUE"}, nil)
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.service_type, COUNT(*)
		FROM attendance a
		WHERE `+strings.Join(where, " AND ")+`
		GROUP BY a.service_type`, args...)
	if err != nil {
		return nil, fmt.Errorf("attendance summary: %w", err)
	}
	defer rows.Close()

	sum := &domain.AttendanceSummary{ByServiceType: map[string]int{}}
	for rows.Next() {
		var (
			st string
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sum.ByServiceType[st] = n
		sum.TotalAttendance += n
	}
	return sum, rows.Err()
}

func (r *AttendanceRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendance WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete attendance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return attendance.ErrNotFound
	}
	return nil
}
