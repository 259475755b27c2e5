package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/chronos/internal/api/response"
	"github.com/kiranshivaraju/chronos/internal/normalize"
	"github.com/kiranshivaraju/chronos/internal/schedule"
	"github.com/kiranshivaraju/chronos/internal/tasks"
	"github.com/kiranshivaraju/chronos/pkg/models"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// TaskSubmitter accepts new observation tasks.
type TaskSubmitter interface {
	Submit(ctx context.Context, userID uuid.UUID, sub normalize.Submission) (*models.Task, error)
	Confirm(ctx context.Context, userID, taskID uuid.UUID) (*models.Task, error)
}

// TaskReader serves a user's view of their tasks.
type TaskReader interface {
	List(ctx context.Context, userID uuid.UUID, statuses []models.TaskStatus, limit int) ([]*models.Task, error)
	Get(ctx context.Context, userID, taskID uuid.UUID) (*tasks.Detail, error)
	Results(ctx context.Context, userID, taskID uuid.UUID) ([]*models.TaskResult, error)
	Schedule(ctx context.Context, telescopeID uuid.UUID, from, to time.Time) ([]schedule.Reservation, error)
}

// Operations is what telescope operators drive.
type Operations interface {
	UpdateStatus(ctx context.Context, operatorID, taskID uuid.UUID, to models.TaskStatus) (*models.Task, error)
	PushResult(ctx context.Context, operatorID, taskID uuid.UUID, up tasks.ResultUpload) (*models.TaskResult, error)
	Plan(ctx context.Context, operatorID, telescopeID uuid.UUID, jdn int) (*tasks.Plan, error)
	SetTelescopeStatus(ctx context.Context, operatorID, telescopeID uuid.UUID, status models.TelescopeStatus) (*models.Telescope, error)
}

type taskStatusResponse struct {
	TaskID uuid.UUID         `json:"task_id"`
	Status models.TaskStatus `json:"status"`
}

// NewSubmitTaskHandler returns an http.HandlerFunc for POST /api/v1/tasks.
func NewSubmitTaskHandler(svc TaskSubmitter, maxBody int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			response.Error(w, http.StatusRequestEntityTooLarge, "INVALID_REQUEST", "Request body too large", nil)
			return
		}
		sub, err := normalize.DecodeSubmission(body)
		if err != nil {
			writeError(w, r, err)
			return
		}

		task, err := svc.Submit(r.Context(), userID, sub)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, taskStatusResponse{TaskID: task.ID, Status: task.Status})
	}
}

// NewConfirmTaskHandler returns an http.HandlerFunc for
// POST /api/v1/tasks/{taskID}/confirm.
func NewConfirmTaskHandler(svc TaskSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		taskID, ok := uuidParam(w, r, "taskID")
		if !ok {
			return
		}

		task, err := svc.Confirm(r.Context(), userID, taskID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, taskStatusResponse{TaskID: task.ID, Status: task.Status})
	}
}

// NewListTasksHandler returns an http.HandlerFunc for GET /api/v1/tasks.
// ?status=created,received narrows the listing.
func NewListTasksHandler(svc TaskReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		var statuses []models.TaskStatus
		if raw := r.URL.Query().Get("status"); raw != "" {
			for _, s := range strings.Split(raw, ",") {
				st := models.TaskStatus(strings.TrimSpace(s))
				if !st.Valid() {
					invalid(w, "status", fmt.Sprintf("unknown status %q", st))
					return
				}
				statuses = append(statuses, st)
			}
		}

		limit := defaultListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				invalid(w, "limit", "must be a positive integer")
				return
			}
			limit = min(n, maxListLimit)
		}

		list, err := svc.List(r.Context(), userID, statuses, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if list == nil {
			list = []*models.Task{}
		}
		response.List(w, list, len(list), limit)
	}
}

// NewGetTaskHandler returns an http.HandlerFunc for GET /api/v1/tasks/{taskID}.
func NewGetTaskHandler(svc TaskReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		taskID, ok := uuidParam(w, r, "taskID")
		if !ok {
			return
		}

		detail, err := svc.Get(r.Context(), userID, taskID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, detail)
	}
}

// NewListResultsHandler returns an http.HandlerFunc for
// GET /api/v1/tasks/{taskID}/results.
func NewListResultsHandler(svc TaskReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		taskID, ok := uuidParam(w, r, "taskID")
		if !ok {
			return
		}

		results, err := svc.Results(r.Context(), userID, taskID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if results == nil {
			results = []*models.TaskResult{}
		}
		response.List(w, results, len(results), 0)
	}
}

// NewScheduleHandler returns an http.HandlerFunc for
// GET /api/v1/telescopes/{telescopeID}/schedule?from=&to= (RFC3339).
func NewScheduleHandler(svc TaskReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		telescopeID, ok := uuidParam(w, r, "telescopeID")
		if !ok {
			return
		}

		var from, to time.Time
		for _, p := range []struct {
			name string
			dst  *time.Time
		}{{"from", &from}, {"to", &to}} {
			raw := r.URL.Query().Get(p.name)
			if raw == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				invalid(w, p.name, "must be a valid RFC3339 timestamp")
				return
			}
			*p.dst = t.UTC()
		}
		if !from.IsZero() && !to.IsZero() && !from.Before(to) {
			invalid(w, "to", "must be after from")
			return
		}

		reservations, err := svc.Schedule(r.Context(), telescopeID, from, to)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if reservations == nil {
			reservations = []schedule.Reservation{}
		}
		response.List(w, reservations, len(reservations), 0)
	}
}

// NewUpdateStatusHandler returns an http.HandlerFunc for
// POST /api/v1/tasks/{taskID}/status.
func NewUpdateStatusHandler(svc Operations) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operatorID, ok := requireUser(w, r)
		if !ok {
			return
		}
		taskID, ok := uuidParam(w, r, "taskID")
		if !ok {
			return
		}

		var req struct {
			Status models.TaskStatus `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Status == "" {
			invalid(w, "status", "is required")
			return
		}

		task, err := svc.UpdateStatus(r.Context(), operatorID, taskID, req.Status)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, taskStatusResponse{TaskID: task.ID, Status: task.Status})
	}
}

// NewPushResultHandler returns an http.HandlerFunc for
// POST /api/v1/tasks/{taskID}/results. The multipart form carries point_id or
// frame_id and the file field "image".
func NewPushResultHandler(svc Operations, maxUpload int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operatorID, ok := requireUser(w, r)
		if !ok {
			return
		}
		taskID, ok := uuidParam(w, r, "taskID")
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
		if err := r.ParseMultipartForm(maxUpload); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(w, http.StatusRequestEntityTooLarge, "INVALID_REQUEST", "Image too large", nil)
				return
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid multipart body", nil)
			return
		}
		defer r.MultipartForm.RemoveAll()

		var up tasks.ResultUpload
		for _, ref := range []struct {
			name string
			dst  **uuid.UUID
		}{{"point_id", &up.PointID}, {"frame_id", &up.FrameID}} {
			raw := r.FormValue(ref.name)
			if raw == "" {
				continue
			}
			id, err := uuid.Parse(raw)
			if err != nil {
				invalid(w, ref.name, "must be a UUID")
				return
			}
			*ref.dst = &id
		}

		file, header, err := r.FormFile("image")
		if err == nil {
			defer file.Close()
			up.Body = file
			up.Filename = header.Filename
			up.ContentType = header.Header.Get("Content-Type")
		}

		result, err := svc.PushResult(r.Context(), operatorID, taskID, up)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, result)
	}
}

// NewPlanHandler returns an http.HandlerFunc for
// GET /api/v1/telescopes/{telescopeID}/plan?jdn=N.
func NewPlanHandler(svc Operations) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operatorID, ok := requireUser(w, r)
		if !ok {
			return
		}
		telescopeID, ok := uuidParam(w, r, "telescopeID")
		if !ok {
			return
		}

		raw := r.URL.Query().Get("jdn")
		if raw == "" {
			invalid(w, "jdn", "is required")
			return
		}
		jdn, err := strconv.Atoi(raw)
		if err != nil || jdn < 0 {
			invalid(w, "jdn", "must be a non-negative integer")
			return
		}

		plan, err := svc.Plan(r.Context(), operatorID, telescopeID, jdn)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, plan)
	}
}

// NewTelescopeStatusHandler returns an http.HandlerFunc for
// POST /api/v1/telescopes/{telescopeID}/status.
func NewTelescopeStatusHandler(svc Operations) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operatorID, ok := requireUser(w, r)
		if !ok {
			return
		}
		telescopeID, ok := uuidParam(w, r, "telescopeID")
		if !ok {
			return
		}

		var req struct {
			Status models.TelescopeStatus `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		telescope, err := svc.SetTelescopeStatus(r.Context(), operatorID, telescopeID, req.Status)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, telescope)
	}
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("%s must be a UUID", name), nil)
		return uuid.Nil, false
	}
	return id, true
}
