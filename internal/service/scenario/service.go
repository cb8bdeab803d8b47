package scenario

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/pkg/logger"
)

// Service implements scenario business logic.
type Service struct {
	repo     Repository
	contacts ContactSource
	now      func() time.Time
}

// NewService creates a scenario service.
func NewService(repo Repository, contacts ContactSource) *Service {
	return &Service{repo: repo, contacts: contacts, now: func() time.Time { return time.Now().UTC() }}
}

// CreateInput holds the fields accepted when creating a scenario.
type CreateInput struct {
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	FilterTags  []string `json:"filter_tags"`
	CreatedBy   string   `json:"-"`
}

// CompleteResult is returned by CompleteTask.
type CompleteResult struct {
	Task              *domain.ScenarioTask `json:"task"`
	ScenarioCompleted bool                 `json:"scenario_completed"`
	Message           string               `json:"message"`
}

// Create stores a scenario with one task per active contact whose tags
// overlap the filter. The task list is a snapshot; contacts added or retagged
// later do not change it.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Scenario, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	tags := domain.NewTags(in.FilterTags...)
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: at least one filter tag is required", ErrValidation)
	}

	candidates, err := s.contacts.ActiveByTags(ctx, tags)
	if err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}

	sc := &domain.Scenario{
		ID:          uuid.New().String(),
		Name:        name,
		Description: in.Description,
		FilterTags:  tags,
		Status:      domain.ScenarioActive,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   s.now(),
	}
	tasks := make([]domain.ScenarioTask, 0, len(candidates))
	for _, c := range candidates {
		if c.Status != domain.ContactStatusActive || !c.Tags.Intersects(tags) {
			continue
		}
		tasks = append(tasks, domain.ScenarioTask{
			ID:         uuid.New().String(),
			ScenarioID: sc.ID,
			ContactID:  c.ID,
			Phone:      c.Phone,
			Name:       c.DisplayName(),
		})
	}
	sc.TaskCount = len(tasks)

	if err := s.repo.Create(ctx, sc, tasks); err != nil {
		return nil, err
	}
	logger.Info("scenario created", "scenario_id", sc.ID, "tasks", len(tasks), "filter_tags", strings.Join(tags, ","))
	return sc, nil
}

// Get returns a live scenario.
func (s *Service) Get(ctx context.Context, id string) (*domain.Scenario, error) {
	return s.repo.Get(ctx, id)
}

// List returns live scenarios, newest first.
func (s *Service) List(ctx context.Context, status string) ([]domain.Scenario, error) {
	switch domain.ScenarioStatus(status) {
	case "", domain.ScenarioActive, domain.ScenarioCompleted:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	return s.repo.List(ctx, status)
}

// Tasks returns the tasks of a live scenario.
func (s *Service) Tasks(ctx context.Context, id string) ([]domain.ScenarioTask, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Tasks(ctx, id)
}

// Statistics summarizes task progress of a live scenario.
func (s *Service) Statistics(ctx context.Context, id string) (*domain.ScenarioStatistics, error) {
	sc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	tasks, err := s.repo.Tasks(ctx, id)
	if err != nil {
		return nil, err
	}
	st := &domain.ScenarioStatistics{ScenarioID: sc.ID, ScenarioName: sc.Name, Total: len(tasks)}
	for _, t := range tasks {
		if t.IsCompleted {
			st.Completed++
		}
	}
	st.Pending = st.Total - st.Completed
	if st.Total > 0 {
		st.CompletionPercentage = math.Round(float64(st.Completed)/float64(st.Total)*10000) / 100
	}
	return st, nil
}

// CompleteTask marks a task done and closes the scenario when it was the
// last pending one.
func (s *Service) CompleteTask(ctx context.Context, scenarioID, taskID, userID string) (*CompleteResult, error) {
	task, closed, err := s.repo.CompleteTask(ctx, scenarioID, taskID, userID, s.now())
	if err != nil {
		return nil, err
	}
	if closed {
		logger.Info("scenario completed", "scenario_id", scenarioID)
	}
	return &CompleteResult{Task: task, ScenarioCompleted: closed, Message: "Task completed successfully"}, nil
}

// Delete soft-deletes a scenario.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.SoftDelete(ctx, id)
}
