package api

import (
	"net/http"

	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/pkg/httputil"
	"github.com/ekklesia/commhub/internal/service/scenario"
)

// ListScenarios returns scenarios, optionally filtered by status.
//
//	GET /api/scenarios?status=active|completed
func (h *Handlers) ListScenarios(w http.ResponseWriter, r *http.Request) {
	list, err := h.scenarios.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		respondError(w, err)
		return
	}
	if list == nil {
		list = []domain.Scenario{}
	}
	httputil.OK(w, list)
}

// CreateScenario creates a scenario and its task list.
//
//	POST /api/scenarios
func (h *Handlers) CreateScenario(w http.ResponseWriter, r *http.Request) {
	var in scenario.CreateInput
	if !decode(w, r, &in) {
		return
	}
	in.CreatedBy = userID(r)
	s, err := h.scenarios.Create(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}
	h.invalidateStats(r.Context())
	httputil.Created(w, s)
}

// GetScenario returns one scenario.
//
//	GET /api/scenarios/{id}
func (h *Handlers) GetScenario(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", scenario.ErrNotFound)
	if !ok {
		return
	}
	s, err := h.scenarios.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, s)
}

// DeleteScenario soft-deletes a scenario.
//
//	DELETE /api/scenarios/{id}
func (h *Handlers) DeleteScenario(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", scenario.ErrNotFound)
	if !ok {
		return
	}
	if err := h.scenarios.Delete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	h.invalidateStats(r.Context())
	respondMessage(w, "Scenario %s deleted", id)
}

// ScenarioTasks lists the tasks of a scenario.
//
//	GET /api/scenarios/{id}/tasks
func (h *Handlers) ScenarioTasks(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", scenario.ErrNotFound)
	if !ok {
		return
	}
	tasks, err := h.scenarios.Tasks(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if tasks == nil {
		tasks = []domain.ScenarioTask{}
	}
	httputil.OK(w, tasks)
}

// ScenarioStatistics returns task completion counts.
//
//	GET /api/scenarios/{id}/statistics
func (h *Handlers) ScenarioStatistics(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", scenario.ErrNotFound)
	if !ok {
		return
	}
	st, err := h.scenarios.Statistics(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, st)
}

// CompleteTask marks a task done and closes the scenario with its last task.
//
//	POST /api/scenarios/{id}/tasks/{taskID}/complete
func (h *Handlers) CompleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", scenario.ErrNotFound)
	if !ok {
		return
	}
	taskID, ok := pathID(w, r, "taskID", scenario.ErrNotFound)
	if !ok {
		return
	}
	res, err := h.scenarios.CompleteTask(r.Context(), id, taskID, userID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	if res.ScenarioCompleted {
		h.invalidateStats(r.Context())
	}
	httputil.OK(w, res)
}
