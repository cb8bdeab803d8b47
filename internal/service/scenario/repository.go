package scenario

import (
	"context"
	"time"

	"github.com/ekklesia/commhub/internal/domain"
)

// Repository defines the data access contract for scenarios.
// Deleted scenarios are invisible to every read.
type Repository interface {
	// Create inserts the scenario and its tasks in one transaction.
	Create(ctx context.Context, s *domain.Scenario, tasks []domain.ScenarioTask) error

	// Get returns a live scenario with its task counts. Returns ErrNotFound
	// if it doesn't exist or was deleted.
	Get(ctx context.Context, id string) (*domain.Scenario, error)

	// List returns live scenarios, newest first. status may be empty.
	List(ctx context.Context, status string) ([]domain.Scenario, error)

	// Tasks returns the tasks of a scenario ordered by name.
	Tasks(ctx context.Context, scenarioID string) ([]domain.ScenarioTask, error)

	// CompleteTask marks a pending task done by userID at the given time. In
	// the same transaction, and holding a lock on the scenario row, it closes
	// the scenario when no task is left pending. It reports whether it did.
	// Returns ErrNotFound for a task outside the scenario or a deleted
	// scenario, and ErrAlreadyCompleted for a finished task.
	CompleteTask(ctx context.Context, scenarioID, taskID, userID string, at time.Time) (*domain.ScenarioTask, bool, error)

	// SoftDelete marks the scenario deleted.
	SoftDelete(ctx context.Context, id string) error
}

// ContactSource supplies the contacts a scenario is generated from.
type ContactSource interface {
	// ActiveByTags returns active contacts whose tags overlap tags.
	ActiveByTags(ctx context.Context, tags domain.Tags) ([]domain.Contact, error)
}
