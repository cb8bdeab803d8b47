package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/service/communication"
)

// CommunicationRepo implements communication.Repository against PostgreSQL.
type CommunicationRepo struct{ db *sql.DB }

// NewCommunicationRepo creates a Postgres-backed communication repository.
func NewCommunicationRepo(db *sql.DB) *CommunicationRepo { return &CommunicationRepo{db: db} }

const communicationColumns = `id, message_type, recipient_group, tag_filter, subject, message, scheduled_at,
	status, sent_count, failed_count, cost, provider, sent_at, metadata, created_by, created_at, updated_at`

func scanCommunication(s scanner) (*domain.Communication, error) {
	var (
		c         domain.Communication
		tags      pq.StringArray
		subject   sql.NullString
		provider  sql.NullString
		scheduled sql.NullTime
		sentAt    sql.NullTime
		meta      []byte
	)
	if err := s.Scan(&c.ID, &c.MessageType, &c.RecipientGroup, &tags, &subject, &c.Message, &scheduled,
		&c.Status, &c.SentCount, &c.FailedCount, &c.Cost, &provider, &sentAt, &meta,
		&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.TagFilter = domain.Tags(tags)
	if c.TagFilter == nil {
		c.TagFilter = domain.Tags{}
	}
	if subject.Valid {
		c.Subject = &subject.String
	}
	if provider.Valid {
		c.Provider = &provider.String
	}
	if scheduled.Valid {
		c.ScheduledAt = &scheduled.Time
	}
	if sentAt.Valid {
		c.SentAt = &sentAt.Time
	}
	c.Metadata = meta
	return &c, nil
}

func (r *CommunicationRepo) Get(ctx context.Context, id string) (*domain.Communication, error) {
	c, err := scanCommunication(r.db.QueryRowContext(ctx,
		`SELECT `+communicationColumns+` FROM communications WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, communication.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get communication: %w", err)
	}
	return c, nil
}

func (r *CommunicationRepo) List(ctx context.Context, f communication.ListFilter) ([]domain.Communication, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := []string{"TRUE"}
	var args []interface{}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.MessageType != "" {
		args = append(args, f.MessageType)
		where = append(where, fmt.Sprintf("message_type = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM communications WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count communications: %w", err)
	}

	q := fmt.Sprintf(`SELECT %s FROM communications WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		communicationColumns, cond, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, q, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list communications: %w", err)
	}
	defer rows.Close()

	var out []domain.Communication
	for rows.Next() {
		c, err := scanCommunication(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan communication: %w", err)
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *CommunicationRepo) Create(ctx context.Context, c *domain.Communication) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO communications
			(id, message_type, recipient_group, tag_filter, subject, message, scheduled_at,
			 status, metadata, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING created_at, updated_at
	`, c.ID, c.MessageType, c.RecipientGroup, tagsArg(c.TagFilter), c.Subject, c.Message, c.ScheduledAt,
		c.Status, jsonArg(c.Metadata), c.CreatedBy,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create communication: %w", err)
	}
	return nil
}

func (r *CommunicationRepo) Update(ctx context.Context, id string, u communication.UpdateFields) error {
	var s setList
	if u.MessageType != nil {
		s.add("message_type", *u.MessageType)
	}
	if u.RecipientGroup != nil {
		s.add("recipient_group", *u.RecipientGroup)
	}
	if u.TagFilter != nil {
		s.add("tag_filter", tagsArg(*u.TagFilter))
	}
	if u.Subject != nil {
		s.add("subject", *u.Subject)
	}
	if u.Message != nil {
		s.add("message", *u.Message)
	}
	if u.ScheduledAt != nil {
		s.add("scheduled_at", *u.ScheduledAt)
	}
	if u.Metadata != nil {
		s.add("metadata", jsonArg(u.Metadata))
	}
	if len(s.sets) == 0 {
		return nil
	}

	q := fmt.Sprintf("UPDATE communications SET %s, updated_at = NOW() WHERE id = %s AND status = 'draft'",
		strings.Join(s.sets, ", "), s.next())
	res, err := r.db.ExecContext(ctx, q, append(s.args, id)...)
	if err != nil {
		return fmt.Errorf("update communication: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.whyNotDraft(ctx, id)
	}
	return nil
}

// whyNotDraft explains a guarded write that matched no row.
func (r *CommunicationRepo) whyNotDraft(ctx context.Context, id string) error {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM communications WHERE id = $1`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return communication.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check communication: %w", err)
	}
	return communication.ErrAlreadySent
}

func (r *CommunicationRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM communications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete communication: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return communication.ErrNotFound
	}
	return nil
}

// Dispatch holds the row lock for the whole delivery. Concurrent senders of
// the same communication block on the lock and then see a non-draft row.
func (r *CommunicationRepo) Dispatch(ctx context.Context, id string, fn communication.DispatchFunc) (*domain.Communication, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin dispatch: %w", err)
	}
	defer tx.Rollback()

	c, err := scanCommunication(tx.QueryRowContext(ctx,
		`SELECT `+communicationColumns+` FROM communications WHERE id = $1 FOR UPDATE`, id))
	if err == sql.ErrNoRows {
		return nil, communication.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock communication: %w", err)
	}

	tally, err := fn(ctx, c)
	if err != nil {
		return nil, err
	}

	out, err := scanCommunication(tx.QueryRowContext(ctx, `
		UPDATE communications
		SET status = 'sent', sent_count = $1, failed_count = $2, cost = $3, provider = $4,
		    sent_at = NOW(), updated_at = NOW()
		WHERE id = $5 AND status = 'draft'
		RETURNING `+communicationColumns,
		tally.SentCount, tally.FailedCount, tally.Cost, tally.Provider, id))
	if err == sql.ErrNoRows {
		return nil, communication.ErrAlreadySent
	}
	if err != nil {
		return nil, fmt.Errorf("record dispatch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dispatch: %w", err)
	}
	return out, nil
}
