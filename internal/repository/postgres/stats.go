package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ekklesia/commhub/internal/service/stats"
)

// StatsRepo implements stats.Repository against PostgreSQL.
type StatsRepo struct{ db *sql.DB }

// NewStatsRepo creates a Postgres-backed stats repository.
func NewStatsRepo(db *sql.DB) *StatsRepo { return &StatsRepo{db: db} }

// Counts runs the dashboard aggregates concurrently.
func (r *StatsRepo) Counts(ctx context.Context, weekStart time.Time) (*stats.Counts, error) {
	c := &stats.Counts{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := r.db.QueryRowContext(ctx,
			`SELECT COUNT(*), COUNT(*) FILTER (WHERE opt_out_sms) FROM contacts`,
		).Scan(&c.TotalContacts, &c.OptedOutSMS)
		if err != nil {
			return fmt.Errorf("count contacts: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := r.db.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(sent_count), 0), COALESCE(SUM(failed_count), 0) FROM communications`,
		).Scan(&c.TotalMessagesSent, &c.TotalMessagesFailed)
		if err != nil {
			return fmt.Errorf("sum messages: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		c.CommunicationsByStatus, err = r.grouped(ctx, `SELECT status, COUNT(*) FROM communications GROUP BY status`)
		return err
	})
	g.Go(func() (err error) {
		c.CountsByType, err = r.grouped(ctx, `SELECT message_type, COUNT(*) FROM communications GROUP BY message_type`)
		return err
	})
	g.Go(func() error {
		err := r.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM scenarios WHERE status = 'active' AND NOT is_deleted`,
		).Scan(&c.ActiveScenarios)
		if err != nil {
			return fmt.Errorf("count scenarios: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := r.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM attendance WHERE service_date >= $1`, weekStart,
		).Scan(&c.AttendanceThisWeek)
		if err != nil {
			return fmt.Errorf("count attendance: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *StatsRepo) grouped(ctx context.Context, q string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("group counts: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			k string
			n int
		)
		if err := rows.Scan(&k, &n); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out[k] = n
	}
	return out, rows.Err()
}
