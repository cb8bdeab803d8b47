package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/service/contact"
)

// ContactRepo implements contact.Repository against PostgreSQL. It also
// serves as the contact source for broadcasts, scenarios and attendance.
type ContactRepo struct{ db *sql.DB }

// NewContactRepo creates a Postgres-backed contact repository.
func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db} }

const contactColumns = `id, name, phone, status, opt_out_sms, opt_out_whatsapp, tags, metadata, created_at, updated_at`

func scanContact(s scanner) (*domain.Contact, error) {
	var (
		c    domain.Contact
		name sql.NullString
		tags pq.StringArray
		meta []byte
	)
	if err := s.Scan(&c.ID, &name, &c.Phone, &c.Status, &c.OptOutSMS, &c.OptOutWhatsApp,
		&tags, &meta, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if name.Valid {
		c.Name = &name.String
	}
	c.Tags = domain.Tags(tags)
	if c.Tags == nil {
		c.Tags = domain.Tags{}
	}
	c.Metadata = meta
	return &c, nil
}

func (r *ContactRepo) query(ctx context.Context, q string, args ...interface{}) ([]domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *ContactRepo) Get(ctx context.Context, id string) (*domain.Contact, error) {
	c, err := scanContact(r.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id))
	if err == sql.ErrNoRows || pgCode(err) == invalidText {
		return nil, contact.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

// Find is Get that reports a missing contact as nil, nil.
func (r *ContactRepo) Find(ctx context.Context, id string) (*domain.Contact, error) {
	c, err := r.Get(ctx, id)
	if err == contact.ErrNotFound {
		return nil, nil
	}
	return c, err
}

func (r *ContactRepo) List(ctx context.Context, f contact.ListFilter) ([]domain.Contact, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := []string{"TRUE"}
	var args []interface{}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR phone ILIKE $%d)", len(args), len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Tag != "" {
		args = append(args, strings.ToLower(strings.TrimSpace(f.Tag)))
		where = append(where, fmt.Sprintf("$%d = ANY(tags)", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count contacts: %w", err)
	}

	q := fmt.Sprintf(`SELECT %s FROM contacts WHERE %s ORDER BY name NULLS LAST, phone LIMIT $%d OFFSET $%d`,
		contactColumns, cond, len(args)+1, len(args)+2)
	out, err := r.query(ctx, q, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list contacts: %w", err)
	}
	return out, total, nil
}

func (r *ContactRepo) All(ctx context.Context) ([]domain.Contact, error) {
	out, err := r.query(ctx, `SELECT `+contactColumns+` FROM contacts ORDER BY name NULLS LAST, phone`)
	if err != nil {
		return nil, fmt.Errorf("all contacts: %w", err)
	}
	return out, nil
}

func (r *ContactRepo) Create(ctx context.Context, c *domain.Contact) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO contacts (id, name, phone, status, opt_out_sms, opt_out_whatsapp, tags, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING created_at, updated_at
	`, c.ID, c.Name, c.Phone, c.Status, c.OptOutSMS, c.OptOutWhatsApp, tagsArg(c.Tags), jsonArg(c.Metadata),
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if pgCode(err) == uniqueViolation {
		return contact.ErrDuplicatePhone
	}
	if err != nil {
		return fmt.Errorf("create contact: %w", err)
	}
	return nil
}

func (r *ContactRepo) Update(ctx context.Context, id string, u contact.UpdateFields) error {
	var s setList
	if u.Name != nil {
		s.add("name", *u.Name)
	}
	if u.Phone != nil {
		s.add("phone", *u.Phone)
	}
	if u.Status != nil {
		s.add("status", *u.Status)
	}
	if u.OptOutSMS != nil {
		s.add("opt_out_sms", *u.OptOutSMS)
	}
	if u.OptOutWhatsApp != nil {
		s.add("opt_out_whatsapp", *u.OptOutWhatsApp)
	}
	if u.Tags != nil {
		s.add("tags", tagsArg(*u.Tags))
	}
	if u.Metadata != nil {
		s.add("metadata", jsonArg(u.Metadata))
	}
	if len(s.sets) == 0 {
		return nil
	}

	q := fmt.Sprintf("UPDATE contacts SET %s, updated_at = NOW() WHERE id = %s", strings.Join(s.sets, ", "), s.next())
	res, err := r.db.ExecContext(ctx, q, append(s.args, id)...)
	if pgCode(err) == uniqueViolation {
		return contact.ErrDuplicatePhone
	}
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contact.ErrNotFound
	}
	return nil
}

func (r *ContactRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contact.ErrNotFound
	}
	return nil
}

// DeleteMany skips ids that are not UUIDs; they match no row.
func (r *ContactRepo) DeleteMany(ctx context.Context, ids []string) (int, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = ANY($1)`, pq.Array(valid))
	if err != nil {
		return 0, fmt.Errorf("delete contacts: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Reachable returns contacts not opted out of ch.
func (r *ContactRepo) Reachable(ctx context.Context, ch domain.Channel) ([]domain.Contact, error) {
	out, err := r.query(ctx, fmt.Sprintf(
		`SELECT %s FROM contacts WHERE NOT %s ORDER BY created_at`, contactColumns, optOutColumn(ch)))
	if err != nil {
		return nil, fmt.Errorf("reachable contacts: %w", err)
	}
	return out, nil
}

// ReachableByTags returns contacts not opted out of ch that carry any of tags.
func (r *ContactRepo) ReachableByTags(ctx context.Context, tags domain.Tags, ch domain.Channel) ([]domain.Contact, error) {
	out, err := r.query(ctx, fmt.Sprintf(
		`SELECT %s FROM contacts WHERE NOT %s AND tags && $1 ORDER BY created_at`, contactColumns, optOutColumn(ch)),
		tagsArg(tags))
	if err != nil {
		return nil, fmt.Errorf("tagged contacts: %w", err)
	}
	return out, nil
}

// ActiveByTags returns active contacts that carry any of tags.
func (r *ContactRepo) ActiveByTags(ctx context.Context, tags domain.Tags) ([]domain.Contact, error) {
	out, err := r.query(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE status = $1 AND tags && $2 ORDER BY name NULLS LAST, phone`,
		domain.ContactStatusActive, tagsArg(tags))
	if err != nil {
		return nil, fmt.Errorf("active tagged contacts: %w", err)
	}
	return out, nil
}
