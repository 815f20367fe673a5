package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/shared"
	"github.com/desertthunder/curator/internal/tasks"
)

const (
	defaultListLimit = 50
	maxBodyBytes     = 1 << 20
)

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	Type     string          `json:"type"`
	Priority *int            `json:"priority,omitempty"`
	MBID     string          `json:"entity_mbid,omitempty"`
	EntityID *int64          `json:"entity_id,omitempty"`
	Name     string          `json:"entity_name,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Unique   bool            `json:"unique,omitempty"`
}

// Spec validates the request and decodes its payload for the requested type.
func (c CreateTaskRequest) Spec() (tasks.Spec, error) {
	t, err := models.ParseTaskType(c.Type)
	if err != nil {
		return tasks.Spec{}, err
	}
	if c.Priority != nil && (*c.Priority < models.MinPriority || *c.Priority > models.MaxPriority) {
		return tasks.Spec{}, fmt.Errorf("%w: priority %d outside %d-%d", shared.ErrInvalidInput, *c.Priority, models.MinPriority, models.MaxPriority)
	}
	payload, err := models.DecodePayload(t, c.Payload)
	if err != nil {
		return tasks.Spec{}, err
	}
	return tasks.Spec{
		Type:     t,
		Entity:   models.EntityRef{MBID: c.MBID, ID: c.EntityID, Name: c.Name},
		Payload:  payload,
		Priority: c.Priority,
		Unique:   c.Unique,
	}, nil
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// TaskHandler serves the task queue over JSON.
type TaskHandler struct {
	factory *tasks.Factory
	logger  *log.Logger
	mux     *http.ServeMux
}

// NewTaskHandler creates a [TaskHandler] over factory.
func NewTaskHandler(factory *tasks.Factory, logger *log.Logger) *TaskHandler {
	h := &TaskHandler{factory: factory, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /api/tasks", h.create)
	h.mux.HandleFunc("GET /api/tasks", h.list)
	h.mux.HandleFunc("GET /api/tasks/stats", h.stats)
	h.mux.HandleFunc("GET /api/tasks/{id}", h.get)
	h.mux.HandleFunc("POST /api/tasks/{id}/cancel", h.cancel)
	h.mux.HandleFunc("POST /api/tasks/{id}/retry", h.retry)
	return h
}

// Routes returns the HTTP routes this handler serves.
func (h *TaskHandler) Routes() []string {
	return []string{
		"POST /api/tasks",
		"GET /api/tasks",
		"GET /api/tasks/stats",
		"GET /api/tasks/{id}",
		"POST /api/tasks/{id}/cancel",
		"POST /api/tasks/{id}/retry",
	}
}

func (h *TaskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *TaskHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := decodeBody(r, &req); err != nil {
		fail(w, h.logger, err)
		return
	}

	spec, err := req.Spec()
	if err != nil {
		fail(w, h.logger, err)
		return
	}

	var task *models.Task
	created := true
	if spec.Unique {
		task, created, err = h.factory.CreateUnique(r.Context(), spec)
	} else {
		task, err = h.factory.CreateTask(r.Context(), spec)
	}
	if err != nil {
		fail(w, h.logger, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	h.logger.Info("task created via api", "task_id", task.ID, "task_type", task.Type, "created", created)
	writeJSON(w, status, task)
}

func (h *TaskHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := map[string]any{"limit": defaultListLimit}

	if s := q.Get("status"); s != "" {
		if !models.TaskStatus(s).Valid() {
			fail(w, h.logger, fmt.Errorf("%w: unknown status %q", shared.ErrInvalidArgument, s))
			return
		}
		criteria["status"] = s
	}
	if s := q.Get("type"); s != "" {
		if _, err := models.ParseTaskType(s); err != nil {
			fail(w, h.logger, err)
			return
		}
		criteria["type"] = s
	}
	if s := q.Get("entity_mbid"); s != "" {
		criteria["entity_mbid"] = s
	}
	for _, key := range []string{"entity_id", "limit"} {
		n, ok, err := queryInt(r, key)
		if err != nil {
			fail(w, h.logger, err)
			return
		}
		if ok {
			criteria[key] = n
		}
	}

	list, err := h.factory.List(r.Context(), criteria)
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	if list == nil {
		list = []*models.Task{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *TaskHandler) get(w http.ResponseWriter, r *http.Request) {
	task, err := h.factory.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeBody(r, &req); err != nil {
		fail(w, h.logger, err)
		return
	}

	task, err := h.factory.CancelTask(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) retry(w http.ResponseWriter, r *http.Request) {
	task, err := h.factory.RetryFailedTask(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.factory.GetTaskStatistics(r.Context())
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: request body: %v", shared.ErrInvalidInput, err)
	}
	return nil
}
