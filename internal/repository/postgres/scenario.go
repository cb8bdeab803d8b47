package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/service/scenario"
)

// ScenarioRepo implements scenario.Repository against PostgreSQL.
type ScenarioRepo struct{ db *sql.DB }

// NewScenarioRepo creates a Postgres-backed scenario repository.
func NewScenarioRepo(db *sql.DB) *ScenarioRepo { return &ScenarioRepo{db: db} }

const scenarioSelect = `
	SELECT s.id, s.name, s.description, s.filter_tags, s.status, s.is_deleted, s.created_by,
	       s.created_at, s.completed_at,
	       COUNT(t.id), COUNT(t.id) FILTER (WHERE t.is_completed)
	FROM scenarios s
	LEFT JOIN scenario_tasks t ON t.scenario_id = s.id
	WHERE NOT s.is_deleted`

const taskColumns = `id, scenario_id, contact_id, phone, name, is_completed, completed_by, completed_at`

func scanScenario(s scanner) (*domain.Scenario, error) {
	var (
		sc        domain.Scenario
		desc      sql.NullString
		tags      pq.StringArray
		completed sql.NullTime
	)
	if err := s.Scan(&sc.ID, &sc.Name, &desc, &tags, &sc.Status, &sc.IsDeleted, &sc.CreatedBy,
		&sc.CreatedAt, &completed, &sc.TaskCount, &sc.CompletedTasks); err != nil {
		return nil, err
	}
	if desc.Valid {
		sc.Description = &desc.String
	}
	sc.FilterTags = domain.Tags(tags)
	if completed.Valid {
		sc.CompletedAt = &completed.Time
	}
	return &sc, nil
}

func scanTask(s scanner) (*domain.ScenarioTask, error) {
	var (
		t         domain.ScenarioTask
		contactID sql.NullString
		by        sql.NullString
		at        sql.NullTime
	)
	if err := s.Scan(&t.ID, &t.ScenarioID, &contactID, &t.Phone, &t.Name, &t.IsCompleted, &by, &at); err != nil {
		return nil, err
	}
	t.ContactID = contactID.String
	if by.Valid {
		t.CompletedBy = &by.String
	}
	if at.Valid {
		t.CompletedAt = &at.Time
	}
	return &t, nil
}

// Create writes the scenario and every task in one transaction.
func (r *ScenarioRepo) Create(ctx context.Context, s *domain.Scenario, tasks []domain.ScenarioTask) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin scenario: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO scenarios (id, name, description, filter_tags, status, is_deleted, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)
	`, s.ID, s.Name, s.Description, tagsArg(s.FilterTags), s.Status, s.CreatedBy, s.CreatedAt); err != nil {
		return fmt.Errorf("insert scenario: %w", err)
	}

	if len(tasks) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO scenario_tasks (id, scenario_id, contact_id, phone, name, is_completed)
			VALUES ($1, $2, $3, $4, $5, FALSE)`)
		if err != nil {
			return fmt.Errorf("prepare tasks: %w", err)
		}
		defer stmt.Close()
		for _, t := range tasks {
			if _, err := stmt.ExecContext(ctx, t.ID, s.ID, t.ContactID, t.Phone, t.Name); err != nil {
				return fmt.Errorf("insert task: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit scenario: %w", err)
	}
	return nil
}

func (r *ScenarioRepo) Get(ctx context.Context, id string) (*domain.Scenario, error) {
	sc, err := scanScenario(r.db.QueryRowContext(ctx, scenarioSelect+` AND s.id = $1 GROUP BY s.id`, id))
	if err == sql.ErrNoRows {
		return nil, scenario.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scenario: %w", err)
	}
	return sc, nil
}

func (r *ScenarioRepo) List(ctx context.Context, status string) ([]domain.Scenario, error) {
	q := scenarioSelect
	var args []interface{}
	if status != "" {
		q += ` AND s.status = $1`
		args = append(args, status)
	}
	q += ` GROUP BY s.id ORDER BY s.created_at DESC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	defer rows.Close()

	out := []domain.Scenario{}
	for rows.Next() {
		sc, err := scanScenario(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

func (r *ScenarioRepo) Tasks(ctx context.Context, scenarioID string) ([]domain.ScenarioTask, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM scenario_tasks WHERE scenario_id = $1 ORDER BY name, id`, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := []domain.ScenarioTask{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// CompleteTask locks the scenario row first, so two final completions
// serialize and only one of them sees zero pending tasks.
func (r *ScenarioRepo) CompleteTask(ctx context.Context, scenarioID, taskID, userID string, at time.Time) (*domain.ScenarioTask, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin complete: %w", err)
	}
	defer tx.Rollback()

	var locked string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM scenarios WHERE id = $1 AND NOT is_deleted FOR UPDATE`, scenarioID).Scan(&locked)
	if err == sql.ErrNoRows {
		return nil, false, scenario.ErrNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("lock scenario: %w", err)
	}

	task, err := scanTask(tx.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM scenario_tasks WHERE id = $1 AND scenario_id = $2`, taskID, scenarioID))
	if err == sql.ErrNoRows {
		return nil, false, scenario.ErrNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("get task: %w", err)
	}
	if task.IsCompleted {
		return nil, false, scenario.ErrAlreadyCompleted
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE scenario_tasks SET is_completed = TRUE, completed_by = $1, completed_at = $2
		WHERE id = $3
	`, userID, at, taskID); err != nil {
		return nil, false, fmt.Errorf("complete task: %w", err)
	}
	task.IsCompleted = true
	task.CompletedBy = &userID
	task.CompletedAt = &at

	var pending int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scenario_tasks WHERE scenario_id = $1 AND NOT is_completed`, scenarioID,
	).Scan(&pending); err != nil {
		return nil, false, fmt.Errorf("count pending: %w", err)
	}
	closed := pending == 0
	if closed {
		if _, err := tx.ExecContext(ctx,
			`UPDATE scenarios SET status = $1, completed_at = $2 WHERE id = $3`,
			domain.ScenarioCompleted, at, scenarioID); err != nil {
			return nil, false, fmt.Errorf("close scenario: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit complete: %w", err)
	}
	return task, closed, nil
}

func (r *ScenarioRepo) SoftDelete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE scenarios SET is_deleted = TRUE WHERE id = $1 AND NOT is_deleted`, id)
	if err != nil {
		return fmt.Errorf("delete scenario: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return scenario.ErrNotFound
	}
	return nil
}
