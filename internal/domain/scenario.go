package domain

import "time"

// ScenarioStatus enumerates scenario lifecycle states.
type ScenarioStatus string

const (
	ScenarioActive    ScenarioStatus = "active"
	ScenarioCompleted ScenarioStatus = "completed"
)

// Scenario is a one-time follow-up task list generated from a tag filter.
type Scenario struct {
	ID          string         `json:"id" db:"id"`
	Name        string         `json:"name" db:"name"`
	Description *string        `json:"description" db:"description"`
	FilterTags  Tags           `json:"filter_tags" db:"filter_tags"`
	Status      ScenarioStatus `json:"status" db:"status"`
	IsDeleted   bool           `json:"is_deleted" db:"is_deleted"`
	CreatedBy   string         `json:"created_by" db:"created_by"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	CompletedAt *time.Time     `json:"completed_at" db:"completed_at"`

	// Read-only, populated by queries.
	TaskCount      int `json:"task_count" db:"task_count"`
	CompletedTasks int `json:"completed_tasks" db:"completed_tasks"`
}

// ScenarioTask is one contact to follow up, snapshotted at scenario creation.
type ScenarioTask struct {
	ID          string     `json:"id" db:"id"`
	ScenarioID  string     `json:"scenario_id" db:"scenario_id"`
	ContactID   string     `json:"contact_id" db:"contact_id"`
	Phone       string     `json:"phone" db:"phone"`
	Name        string     `json:"name" db:"name"`
	IsCompleted bool       `json:"is_completed" db:"is_completed"`
	CompletedBy *string    `json:"completed_by" db:"completed_by"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
}

// ScenarioStatistics summarizes task progress for a scenario.
type ScenarioStatistics struct {
	ScenarioID           string  `json:"scenario_id"`
	ScenarioName         string  `json:"scenario_name"`
	Total                int     `json:"total_tasks"`
	Completed            int     `json:"completed_tasks"`
	Pending              int     `json:"pending_tasks"`
	CompletionPercentage float64 `json:"completion_percentage"`
}
