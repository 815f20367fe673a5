package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/curator/internal/shared"
	"github.com/desertthunder/curator/internal/tasks"
)

// NewAPI builds the router for the task API with request ID, logging and recovery middleware.
func NewAPI(db *sql.DB, factory *tasks.Factory, unmatched UnmatchedLister, logger *log.Logger) *BasicRouter {
	r := NewBasicRouter()
	r.Use(RequestID(), Logging(logger), Recovery(logger))

	r.Handler(NewTaskHandler(factory, logger))
	r.Handler(NewUnmatchedHandler(unmatched))
	r.HandleFunc(http.MethodGet, "/healthz", Health(db))
	return r
}

// Health reports 200 while the database answers pings.
func Health(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrTaskNotFound), errors.Is(err, shared.ErrEntityNotFound):
		return http.StatusNotFound
	case tasks.IsInvalidState(err), errors.Is(err, shared.ErrRetryLimit):
		return http.StatusConflict
	case errors.Is(err, shared.ErrInvalidTaskType),
		errors.Is(err, shared.ErrInvalidPayload),
		errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Internal errors are logged and not echoed to the client.
func fail(w http.ResponseWriter, logger *log.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, key string) (int64, bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s must be an integer", shared.ErrInvalidArgument, key)
	}
	return n, true, nil
}
