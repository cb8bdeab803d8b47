package scenario_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/service/scenario"
)

type memRepo struct {
	mu        sync.Mutex
	scenarios map[string]*domain.Scenario
	tasks     map[string][]*domain.ScenarioTask
}

func newMemRepo() *memRepo {
	return &memRepo{
		scenarios: make(map[string]*domain.Scenario),
		tasks:     make(map[string][]*domain.ScenarioTask),
	}
}

func (r *memRepo) Create(_ context.Context, s *domain.Scenario, tasks []domain.ScenarioTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.scenarios[s.ID] = &cp
	for i := range tasks {
		t := tasks[i]
		r.tasks[s.ID] = append(r.tasks[s.ID], &t)
	}
	return nil
}

func (r *memRepo) live(id string) (*domain.Scenario, error) {
	s, ok := r.scenarios[id]
	if !ok || s.IsDeleted {
		return nil, scenario.ErrNotFound
	}
	return s, nil
}

func (r *memRepo) Get(_ context.Context, id string) (*domain.Scenario, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.live(id)
	if err != nil {
		return nil, err
	}
	cp := *s
	cp.TaskCount = len(r.tasks[id])
	for _, t := range r.tasks[id] {
		if t.IsCompleted {
			cp.CompletedTasks++
		}
	}
	return &cp, nil
}

func (r *memRepo) List(_ context.Context, status string) ([]domain.Scenario, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Scenario
	for _, s := range r.scenarios {
		if s.IsDeleted || (status != "" && string(s.Status) != status) {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memRepo) Tasks(_ context.Context, id string) ([]domain.ScenarioTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ScenarioTask, 0, len(r.tasks[id]))
	for _, t := range r.tasks[id] {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memRepo) CompleteTask(_ context.Context, scenarioID, taskID, userID string, at time.Time) (*domain.ScenarioTask, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.live(scenarioID)
	if err != nil {
		return nil, false, err
	}
	var task *domain.ScenarioTask
	for _, t := range r.tasks[scenarioID] {
		if t.ID == taskID {
			task = t
		}
	}
	if task == nil {
		return nil, false, scenario.ErrNotFound
	}
	if task.IsCompleted {
		return nil, false, scenario.ErrAlreadyCompleted
	}
	task.IsCompleted = true
	task.CompletedBy = &userID
	task.CompletedAt = &at

	for _, t := range r.tasks[scenarioID] {
		if !t.IsCompleted {
			cp := *task
			return &cp, false, nil
		}
	}
	s.Status = domain.ScenarioCompleted
	s.CompletedAt = &at
	cp := *task
	return &cp, true, nil
}

func (r *memRepo) SoftDelete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.live(id)
	if err != nil {
		return err
	}
	s.IsDeleted = true
	return nil
}

// contacts returns every contact it holds; the service does its own matching.
type contacts []domain.Contact

func (c contacts) ActiveByTags(context.Context, domain.Tags) ([]domain.Contact, error) {
	return c, nil
}

func person(id, name, status string, tags ...string) domain.Contact {
	return domain.Contact{
		ID:     id,
		Name:   &name,
		Phone:  "+2782000000" + id,
		Status: status,
		Tags:   domain.NewTags(tags...),
	}
}

func congregation() contacts {
	return contacts{
		person("1", "Anna", domain.ContactStatusActive, "kanana"),
		person("2", "Ben", domain.ContactStatusActive, "member", "youth"),
		person("3", "Cara", "inactive", "kanana"),
		person("4", "Dumi", domain.ContactStatusActive, "youth"),
		person("5", "Eli", domain.ContactStatusActive),
	}
}

func TestCreate_SnapshotsMatchingActiveContacts(t *testing.T) {
	repo := newMemRepo()
	svc := scenario.NewService(repo, congregation())

	sc, err := svc.Create(context.Background(), scenario.CreateInput{
		Name:       "Visit new members",
		FilterTags: []string{"Kanana", " member "},
		CreatedBy:  "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ScenarioActive, sc.Status)
	assert.Equal(t, domain.Tags{"kanana", "member"}, sc.FilterTags)
	assert.Equal(t, 2, sc.TaskCount)

	tasks, err := svc.Tasks(context.Background(), sc.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "Anna", tasks[0].Name)
	assert.Equal(t, "1", tasks[0].ContactID)
	assert.Equal(t, "+27820000001", tasks[0].Phone)
	assert.Equal(t, "Ben", tasks[1].Name)
	for _, task := range tasks {
		assert.False(t, task.IsCompleted)
		assert.Equal(t, sc.ID, task.ScenarioID)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := scenario.NewService(newMemRepo(), congregation())

	_, err := svc.Create(context.Background(), scenario.CreateInput{Name: "  ", FilterTags: []string{"kanana"}})
	assert.ErrorIs(t, err, scenario.ErrValidation)

	_, err = svc.Create(context.Background(), scenario.CreateInput{Name: "x", FilterTags: []string{" ", ""}})
	assert.ErrorIs(t, err, scenario.ErrValidation)
}

func TestCreate_NoMatchesStillCreates(t *testing.T) {
	svc := scenario.NewService(newMemRepo(), congregation())
	sc, err := svc.Create(context.Background(), scenario.CreateInput{Name: "Choir", FilterTags: []string{"choir"}})
	require.NoError(t, err)
	assert.Equal(t, 0, sc.TaskCount)
}

func TestCompleteTask_ClosesScenarioOnLastTask(t *testing.T) {
	ctx := context.Background()
	svc := scenario.NewService(newMemRepo(), congregation())
	sc, err := svc.Create(ctx, scenario.CreateInput{Name: "Follow up", FilterTags: []string{"kanana", "member"}})
	require.NoError(t, err)
	tasks, err := svc.Tasks(ctx, sc.ID)
	require.NoError(t, err)

	res, err := svc.CompleteTask(ctx, sc.ID, tasks[0].ID, "user-7")
	require.NoError(t, err)
	assert.False(t, res.ScenarioCompleted)
	assert.True(t, res.Task.IsCompleted)
	require.NotNil(t, res.Task.CompletedBy)
	assert.Equal(t, "user-7", *res.Task.CompletedBy)

	stats, err := svc.Statistics(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScenarioStatistics{
		ScenarioID: sc.ID, ScenarioName: "Follow up",
		Total: 2, Completed: 1, Pending: 1, CompletionPercentage: 50,
	}, *stats)

	require.NotNil(t, res.Task.CompletedAt)
	firstAt := *res.Task.CompletedAt

	_, err = svc.CompleteTask(ctx, sc.ID, tasks[0].ID, "user-9")
	assert.ErrorIs(t, err, scenario.ErrAlreadyCompleted)

	after, err := svc.Tasks(ctx, sc.ID)
	require.NoError(t, err)
	for _, task := range after {
		if task.ID != tasks[0].ID {
			continue
		}
		require.NotNil(t, task.CompletedBy)
		require.NotNil(t, task.CompletedAt)
		assert.Equal(t, "user-7", *task.CompletedBy)
		assert.True(t, firstAt.Equal(*task.CompletedAt))
	}

	res, err = svc.CompleteTask(ctx, sc.ID, tasks[1].ID, "user-7")
	require.NoError(t, err)
	assert.True(t, res.ScenarioCompleted)

	got, err := svc.Get(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScenarioCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	active, err := svc.List(ctx, string(domain.ScenarioActive))
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestKananaFollowUp(t *testing.T) {
	ctx := context.Background()
	thabo, lerato := "Thabo", "Lerato"
	people := contacts{
		{ID: "c1", Name: &thabo, Phone: "+27711234567", Status: domain.ContactStatusActive, Tags: domain.NewTags("kanana")},
		{ID: "c2", Name: &lerato, Phone: "+27821234568", Status: domain.ContactStatusActive, Tags: domain.NewTags("member")},
	}
	svc := scenario.NewService(newMemRepo(), people)

	sc, err := svc.Create(ctx, scenario.CreateInput{Name: "Kanana visits", FilterTags: []string{"kanana"}})
	require.NoError(t, err)
	assert.Equal(t, 1, sc.TaskCount)

	tasks, err := svc.Tasks(ctx, sc.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "c1", tasks[0].ContactID)
	assert.Equal(t, "+27711234567", tasks[0].Phone)

	res, err := svc.CompleteTask(ctx, sc.ID, tasks[0].ID, "user-1")
	require.NoError(t, err)
	assert.True(t, res.ScenarioCompleted)

	got, err := svc.Get(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScenarioCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	stats, err := svc.Statistics(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, stats.CompletionPercentage)
}

func TestCompleteTask_UnknownTask(t *testing.T) {
	ctx := context.Background()
	svc := scenario.NewService(newMemRepo(), congregation())
	sc, err := svc.Create(ctx, scenario.CreateInput{Name: "x", FilterTags: []string{"youth"}})
	require.NoError(t, err)

	_, err = svc.CompleteTask(ctx, sc.ID, "missing", "u")
	assert.ErrorIs(t, err, scenario.ErrNotFound)
}

func TestStatistics_ThirdsRoundToTwoPlaces(t *testing.T) {
	ctx := context.Background()
	people := contacts{
		person("1", "A", domain.ContactStatusActive, "cell"),
		person("2", "B", domain.ContactStatusActive, "cell"),
		person("3", "C", domain.ContactStatusActive, "cell"),
	}
	svc := scenario.NewService(newMemRepo(), people)
	sc, err := svc.Create(ctx, scenario.CreateInput{Name: "Cell", FilterTags: []string{"cell"}})
	require.NoError(t, err)
	tasks, err := svc.Tasks(ctx, sc.ID)
	require.NoError(t, err)
	_, err = svc.CompleteTask(ctx, sc.ID, tasks[0].ID, "u")
	require.NoError(t, err)

	stats, err := svc.Statistics(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, 33.33, stats.CompletionPercentage)
}

func TestDelete_HidesScenario(t *testing.T) {
	ctx := context.Background()
	svc := scenario.NewService(newMemRepo(), congregation())
	sc, err := svc.Create(ctx, scenario.CreateInput{Name: "x", FilterTags: []string{"youth"}})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, sc.ID))

	_, err = svc.Get(ctx, sc.ID)
	assert.ErrorIs(t, err, scenario.ErrNotFound)
	_, err = svc.Tasks(ctx, sc.ID)
	assert.ErrorIs(t, err, scenario.ErrNotFound)
	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.ErrorIs(t, svc.Delete(ctx, sc.ID), scenario.ErrNotFound)
}

func TestList_RejectsUnknownStatus(t *testing.T) {
	svc := scenario.NewService(newMemRepo(), congregation())
	_, err := svc.List(context.Background(), "archived")
	assert.ErrorIs(t, err, scenario.ErrValidation)
}
