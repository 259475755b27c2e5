package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/chronos/internal/ledger"
	"github.com/kiranshivaraju/chronos/internal/normalize"
	"github.com/kiranshivaraju/chronos/internal/schedule"
	"github.com/kiranshivaraju/chronos/internal/store"
	"github.com/kiranshivaraju/chronos/internal/tasks"
	"github.com/kiranshivaraju/chronos/pkg/models"
)

// --- fake task service ---

type fakeTasks struct {
	submit       func(userID uuid.UUID, sub normalize.Submission) (*models.Task, error)
	confirm      func(userID, taskID uuid.UUID) (*models.Task, error)
	list         func(userID uuid.UUID, statuses []models.TaskStatus, limit int) ([]*models.Task, error)
	get          func(userID, taskID uuid.UUID) (*tasks.Detail, error)
	results      func(userID, taskID uuid.UUID) ([]*models.TaskResult, error)
	schedule     func(telescopeID uuid.UUID, from, to time.Time) ([]schedule.Reservation, error)
	updateStatus func(operatorID, taskID uuid.UUID, to models.TaskStatus) (*models.Task, error)
	pushResult   func(operatorID, taskID uuid.UUID, up tasks.ResultUpload) (*models.TaskResult, error)
	plan         func(operatorID, telescopeID uuid.UUID, jdn int) (*tasks.Plan, error)
	setStatus    func(operatorID, telescopeID uuid.UUID, status models.TelescopeStatus) (*models.Telescope, error)
}

func (f *fakeTasks) Submit(_ context.Context, userID uuid.UUID, sub normalize.Submission) (*models.Task, error) {
	return f.submit(userID, sub)
}

func (f *fakeTasks) Confirm(_ context.Context, userID, taskID uuid.UUID) (*models.Task, error) {
	return f.confirm(userID, taskID)
}

func (f *fakeTasks) List(_ context.Context, userID uuid.UUID, statuses []models.TaskStatus, limit int) ([]*models.Task, error) {
	return f.list(userID, statuses, limit)
}

func (f *fakeTasks) Get(_ context.Context, userID, taskID uuid.UUID) (*tasks.Detail, error) {
	return f.get(userID, taskID)
}

func (f *fakeTasks) Results(_ context.Context, userID, taskID uuid.UUID) ([]*models.TaskResult, error) {
	return f.results(userID, taskID)
}

func (f *fakeTasks) Schedule(_ context.Context, telescopeID uuid.UUID, from, to time.Time) ([]schedule.Reservation, error) {
	return f.schedule(telescopeID, from, to)
}

func (f *fakeTasks) UpdateStatus(_ context.Context, operatorID, taskID uuid.UUID, to models.TaskStatus) (*models.Task, error) {
	return f.updateStatus(operatorID, taskID, to)
}

func (f *fakeTasks) PushResult(_ context.Context, operatorID, taskID uuid.UUID, up tasks.ResultUpload) (*models.TaskResult, error) {
	return f.pushResult(operatorID, taskID, up)
}

func (f *fakeTasks) Plan(_ context.Context, operatorID, telescopeID uuid.UUID, jdn int) (*tasks.Plan, error) {
	return f.plan(operatorID, telescopeID, jdn)
}

func (f *fakeTasks) SetTelescopeStatus(_ context.Context, operatorID, telescopeID uuid.UUID, status models.TelescopeStatus) (*models.Telescope, error) {
	return f.setStatus(operatorID, telescopeID, status)
}

const pointsBody = `{
	"telescope_id": "6f1c8e1e-3c55-4b5e-9b1d-1f0f3c7a2b10",
	"task_type": "points",
	"payload": {"points": [{"dt": "2030-01-01T00:00:00Z", "alpha": 10, "beta": 20, "cs": "radec"}]}
}`

// --- submit ---

func TestSubmitTask_Created(t *testing.T) {
	user := uuid.New()
	var got normalize.Submission
	svc := &fakeTasks{submit: func(userID uuid.UUID, sub normalize.Submission) (*models.Task, error) {
		if userID != user {
			t.Errorf("unexpected user %s", userID)
		}
		got = sub
		return &models.Task{ID: uuid.New(), Status: models.TaskCreated}, nil
	}}

	rec := serve(NewSubmitTaskHandler(svc, 1<<20), newReq(t, http.MethodPost, "/api/v1/tasks", pointsBody, user, nil))

	data := decodeData[map[string]any](t, rec, http.StatusCreated)
	if data["status"] != "created" {
		t.Errorf("expected created, got %v", data["status"])
	}
	if data["task_id"] == "" {
		t.Error("missing task_id")
	}
	if got.Type != models.TaskPoints {
		t.Errorf("expected points submission, got %q", got.Type)
	}
}

func TestSubmitTask_MalformedIsValidationFailure(t *testing.T) {
	svc := &fakeTasks{submit: func(uuid.UUID, normalize.Submission) (*models.Task, error) {
		t.Fatal("service should not be called")
		return nil, nil
	}}

	rec := serve(NewSubmitTaskHandler(svc, 1<<20),
		newReq(t, http.MethodPost, "/api/v1/tasks", `{"task_type":"spiral"}`, uuid.New(), nil))

	got := decodeErr(t, rec, http.StatusUnprocessableEntity)
	if got.Code != "VALIDATION_FAILED" {
		t.Errorf("expected VALIDATION_FAILED, got %s", got.Code)
	}
	if !strings.Contains(string(got.Details), "task_type") {
		t.Errorf("details should name task_type: %s", got.Details)
	}
}

func TestSubmitTask_ServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"collision", &schedule.Collision{}, http.StatusConflict, "COLLISION"},
		{"insufficient balance", ledger.ErrInsufficient, http.StatusConflict, "INSUFFICIENT_BALANCE"},
		{"no access", ledger.ErrNoAccess, http.StatusForbidden, "NO_ACCESS"},
		{"unknown telescope", store.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeTasks{submit: func(uuid.UUID, normalize.Submission) (*models.Task, error) {
				return nil, tt.err
			}}
			rec := serve(NewSubmitTaskHandler(svc, 1<<20), newReq(t, http.MethodPost, "/api/v1/tasks", pointsBody, uuid.New(), nil))
			if got := decodeErr(t, rec, tt.status); got.Code != tt.code {
				t.Errorf("expected %s, got %s", tt.code, got.Code)
			}
		})
	}
}

func TestSubmitTask_Unauthenticated(t *testing.T) {
	rec := serve(NewSubmitTaskHandler(&fakeTasks{}, 1<<20), newReq(t, http.MethodPost, "/api/v1/tasks", pointsBody, uuid.Nil, nil))
	if got := decodeErr(t, rec, http.StatusUnauthorized); got.Code != "INVALID_TOKEN" {
		t.Errorf("expected INVALID_TOKEN, got %s", got.Code)
	}
}

func TestSubmitTask_BodyTooLarge(t *testing.T) {
	rec := serve(NewSubmitTaskHandler(&fakeTasks{}, 16), newReq(t, http.MethodPost, "/api/v1/tasks", pointsBody, uuid.New(), nil))
	decodeErr(t, rec, http.StatusRequestEntityTooLarge)
}

func TestConfirmTask(t *testing.T) {
	taskID := uuid.New()
	svc := &fakeTasks{confirm: func(_, id uuid.UUID) (*models.Task, error) {
		return &models.Task{ID: id, Status: models.TaskCreated}, nil
	}}

	rec := serve(NewConfirmTaskHandler(svc), newReq(t, http.MethodPost, "/", nil, uuid.New(), map[string]string{"taskID": taskID.String()}))
	data := decodeData[taskStatusResponse](t, rec, http.StatusOK)
	if data.TaskID != taskID || data.Status != models.TaskCreated {
		t.Errorf("unexpected response %+v", data)
	}
}

func TestConfirmTask_BadID(t *testing.T) {
	rec := serve(NewConfirmTaskHandler(&fakeTasks{}), newReq(t, http.MethodPost, "/", nil, uuid.New(), map[string]string{"taskID": "nope"}))
	decodeErr(t, rec, http.StatusBadRequest)
}

// --- reads ---

func TestListTasks_ParsesFilters(t *testing.T) {
	var (
		gotStatuses []models.TaskStatus
		gotLimit    int
	)
	svc := &fakeTasks{list: func(_ uuid.UUID, statuses []models.TaskStatus, limit int) ([]*models.Task, error) {
		gotStatuses, gotLimit = statuses, limit
		return nil, nil
	}}

	rec := serve(NewListTasksHandler(svc), newReq(t, http.MethodGet, "/api/v1/tasks?status=created,%20received&limit=5000", nil, uuid.New(), nil))
	data := decodeData[[]any](t, rec, http.StatusOK)
	if data == nil || len(data) != 0 {
		t.Errorf("expected empty list, got %v", data)
	}
	if len(gotStatuses) != 2 || gotStatuses[1] != models.TaskReceived {
		t.Errorf("unexpected statuses %v", gotStatuses)
	}
	if gotLimit != maxListLimit {
		t.Errorf("expected limit capped at %d, got %d", maxListLimit, gotLimit)
	}
}

func TestListTasks_RejectsUnknownStatus(t *testing.T) {
	rec := serve(NewListTasksHandler(&fakeTasks{}), newReq(t, http.MethodGet, "/api/v1/tasks?status=lost", nil, uuid.New(), nil))
	decodeErr(t, rec, http.StatusUnprocessableEntity)
}

func TestGetTask_NotVisible(t *testing.T) {
	svc := &fakeTasks{get: func(uuid.UUID, uuid.UUID) (*tasks.Detail, error) {
		return nil, &tasks.LifecycleError{Field: "task", Reason: "task is none", Err: store.ErrNotFound}
	}}
	rec := serve(NewGetTaskHandler(svc), newReq(t, http.MethodGet, "/", nil, uuid.New(), map[string]string{"taskID": uuid.NewString()}))
	got := decodeErr(t, rec, http.StatusNotFound)
	if !strings.Contains(string(got.Details), "task is none") {
		t.Errorf("expected guard details, got %s", got.Details)
	}
}

func TestListResults(t *testing.T) {
	pointID := uuid.New()
	svc := &fakeTasks{results: func(_, taskID uuid.UUID) ([]*models.TaskResult, error) {
		return []*models.TaskResult{{ID: uuid.New(), TaskID: taskID, PointID: &pointID, ImageURL: "mem://a"}}, nil
	}}
	rec := serve(NewListResultsHandler(svc), newReq(t, http.MethodGet, "/", nil, uuid.New(), map[string]string{"taskID": uuid.NewString()}))
	data := decodeData[[]models.TaskResult](t, rec, http.StatusOK)
	if len(data) != 1 || *data[0].PointID != pointID {
		t.Errorf("unexpected results %+v", data)
	}
}

func TestSchedule_ParsesRange(t *testing.T) {
	var gotFrom, gotTo time.Time
	svc := &fakeTasks{schedule: func(_ uuid.UUID, from, to time.Time) ([]schedule.Reservation, error) {
		gotFrom, gotTo = from, to
		return nil, nil
	}}
	rec := serve(NewScheduleHandler(svc), newReq(t, http.MethodGet,
		"/?from=2030-01-01T00:00:00Z&to=2030-01-02T00:00:00Z", nil, uuid.New(),
		map[string]string{"telescopeID": uuid.NewString()}))
	decodeData[[]schedule.Reservation](t, rec, http.StatusOK)
	if !gotFrom.Equal(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)) || !gotTo.Equal(time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected range %s..%s", gotFrom, gotTo)
	}
}

func TestSchedule_RejectsInvertedRange(t *testing.T) {
	rec := serve(NewScheduleHandler(&fakeTasks{}), newReq(t, http.MethodGet,
		"/?from=2030-01-02T00:00:00Z&to=2030-01-01T00:00:00Z", nil, uuid.New(),
		map[string]string{"telescopeID": uuid.NewString()}))
	decodeErr(t, rec, http.StatusUnprocessableEntity)
}

// --- operator ---

func TestUpdateStatus_InvalidTransition(t *testing.T) {
	svc := &fakeTasks{updateStatus: func(_, _ uuid.UUID, to models.TaskStatus) (*models.Task, error) {
		return nil, &tasks.LifecycleError{Field: "status", Reason: "invalid transition ready -> " + string(to), Err: tasks.ErrTransition}
	}}
	rec := serve(NewUpdateStatusHandler(svc), newReq(t, http.MethodPost, "/", map[string]string{"status": "received"},
		uuid.New(), map[string]string{"taskID": uuid.NewString()}))
	got := decodeErr(t, rec, http.StatusConflict)
	if got.Code != "INVALID_TRANSITION" || !strings.Contains(string(got.Details), `"field":"status"`) {
		t.Errorf("unexpected error %+v details=%s", got, got.Details)
	}
}

func TestUpdateStatus_MissingStatus(t *testing.T) {
	rec := serve(NewUpdateStatusHandler(&fakeTasks{}), newReq(t, http.MethodPost, "/", map[string]string{},
		uuid.New(), map[string]string{"taskID": uuid.NewString()}))
	decodeErr(t, rec, http.StatusUnprocessableEntity)
}

func multipartReq(t *testing.T, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mpw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mpw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if image != nil {
		fw, err := mpw.CreateFormFile("image", "frame.fits")
		if err != nil {
			t.Fatalf("create file: %v", err)
		}
		fw.Write(image)
	}
	mpw.Close()
	r := httptest.NewRequest(http.MethodPost, "/", &buf)
	r.Header.Set("Content-Type", mpw.FormDataContentType())
	return r
}

func TestPushResult_Multipart(t *testing.T) {
	operator, taskID, frameID := uuid.New(), uuid.New(), uuid.New()
	var (
		gotUp   tasks.ResultUpload
		gotBody []byte
	)
	svc := &fakeTasks{pushResult: func(_, id uuid.UUID, up tasks.ResultUpload) (*models.TaskResult, error) {
		gotUp = up
		gotBody, _ = io.ReadAll(up.Body)
		return &models.TaskResult{ID: uuid.New(), TaskID: id, FrameID: up.FrameID, ImageURL: "mem://x"}, nil
	}}

	r := withContext(multipartReq(t, map[string]string{"frame_id": frameID.String()}, []byte("SIMPLE  =   T")),
		operator, map[string]string{"taskID": taskID.String()})
	rec := serve(NewPushResultHandler(svc, 1<<20), r)

	data := decodeData[models.TaskResult](t, rec, http.StatusCreated)
	if data.TaskID != taskID {
		t.Errorf("unexpected task %s", data.TaskID)
	}
	if gotUp.FrameID == nil || *gotUp.FrameID != frameID || gotUp.PointID != nil {
		t.Errorf("unexpected references %+v", gotUp)
	}
	if gotUp.Filename != "frame.fits" || string(gotBody) != "SIMPLE  =   T" {
		t.Errorf("unexpected upload %q %q", gotUp.Filename, gotBody)
	}
}

func TestPushResult_BadReference(t *testing.T) {
	r := withContext(multipartReq(t, map[string]string{"point_id": "xyz"}, []byte("img")),
		uuid.New(), map[string]string{"taskID": uuid.NewString()})
	rec := serve(NewPushResultHandler(&fakeTasks{}, 1<<20), r)
	decodeErr(t, rec, http.StatusUnprocessableEntity)
}

func TestPushResult_Duplicate(t *testing.T) {
	svc := &fakeTasks{pushResult: func(uuid.UUID, uuid.UUID, tasks.ResultUpload) (*models.TaskResult, error) {
		return nil, tasks.ErrDuplicateResult
	}}
	r := withContext(multipartReq(t, map[string]string{"point_id": uuid.NewString()}, []byte("img")),
		uuid.New(), map[string]string{"taskID": uuid.NewString()})
	if got := decodeErr(t, serve(NewPushResultHandler(svc, 1<<20), r), http.StatusConflict); got.Code != "DUPLICATE" {
		t.Errorf("expected DUPLICATE, got %s", got.Code)
	}
}

func TestPlan_RequiresJDN(t *testing.T) {
	rec := serve(NewPlanHandler(&fakeTasks{}), newReq(t, http.MethodGet, "/", nil, uuid.New(), map[string]string{"telescopeID": uuid.NewString()}))
	got := decodeErr(t, rec, http.StatusUnprocessableEntity)
	if !strings.Contains(string(got.Details), "jdn") {
		t.Errorf("details should name jdn: %s", got.Details)
	}
}

func TestPlan_Success(t *testing.T) {
	telescopeID := uuid.New()
	svc := &fakeTasks{plan: func(_, id uuid.UUID, jdn int) (*tasks.Plan, error) {
		return &tasks.Plan{Telescope: tasks.PlanTelescope{ID: id, Code: 7}, JDN: jdn, Tasks: []tasks.Detail{}}, nil
	}}
	rec := serve(NewPlanHandler(svc), newReq(t, http.MethodGet, "/?jdn=2462503", nil, uuid.New(), map[string]string{"telescopeID": telescopeID.String()}))
	data := decodeData[tasks.Plan](t, rec, http.StatusOK)
	if data.JDN != 2462503 || data.Telescope.ID != telescopeID {
		t.Errorf("unexpected plan %+v", data)
	}
}

func TestPlan_NotOperator(t *testing.T) {
	svc := &fakeTasks{plan: func(uuid.UUID, uuid.UUID, int) (*tasks.Plan, error) {
		return nil, &tasks.LifecycleError{Field: "telescope", Reason: "telescope mismatch", Err: tasks.ErrNotOperator}
	}}
	rec := serve(NewPlanHandler(svc), newReq(t, http.MethodGet, "/?jdn=1", nil, uuid.New(), map[string]string{"telescopeID": uuid.NewString()}))
	decodeErr(t, rec, http.StatusForbidden)
}

func TestTelescopeStatus(t *testing.T) {
	svc := &fakeTasks{setStatus: func(_, id uuid.UUID, status models.TelescopeStatus) (*models.Telescope, error) {
		return &models.Telescope{ID: id, Status: status}, nil
	}}
	rec := serve(NewTelescopeStatusHandler(svc), newReq(t, http.MethodPost, "/", map[string]string{"status": "online"},
		uuid.New(), map[string]string{"telescopeID": uuid.NewString()}))
	data := decodeData[models.Telescope](t, rec, http.StatusOK)
	if data.Status != models.TelescopeOnline {
		t.Errorf("expected online, got %s", data.Status)
	}
}
