package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/chronos/internal/cache"
	"github.com/kiranshivaraju/chronos/internal/imagestore"
	"github.com/kiranshivaraju/chronos/internal/metrics"
	"github.com/kiranshivaraju/chronos/internal/store"
	"github.com/kiranshivaraju/chronos/internal/validation"
	"github.com/kiranshivaraju/chronos/pkg/models"
)

// ErrDuplicateResult means an image was already recorded for the point or
// frame.
var ErrDuplicateResult = errors.New("result already recorded")

// UpdateStatus applies an operator's status change. Operators claim created
// tasks (received) and close received ones (ready or failed).
func (s *Service) UpdateStatus(ctx context.Context, operatorID, taskID uuid.UUID, to models.TaskStatus) (*models.Task, error) {
	if err := checkOperatorStatus(to); err != nil {
		return nil, err
	}

	var (
		updated *models.Task
		from    models.TaskStatus
	)
	err := s.store.InTx(ctx, func(tx store.Store) error {
		task, err := tx.LockTask(ctx, taskID)
		if err != nil {
			return taskIsNone(err)
		}
		telescope, err := tx.GetTelescope(ctx, task.TelescopeID)
		if err != nil {
			return fmt.Errorf("get telescope: %w", err)
		}
		if err := checkOperator(telescope, operatorID); err != nil {
			return err
		}
		if err := checkTransition(task.Status, to); err != nil {
			return err
		}
		if err := tx.UpdateTaskStatus(ctx, task.ID, to); err != nil {
			return fmt.Errorf("update task status: %w", err)
		}

		from = task.Status
		task.Status = to
		task.UpdatedAt = s.opts.Now().UTC()
		updated = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTransition(string(from), string(to))
	if from == models.TaskCreated {
		s.invalidatePlans(ctx, updated.TelescopeID)
	}
	slog.Info("task status updated", "task_id", taskID, "operator_id", operatorID, "from", from, "to", to)
	return updated, nil
}

// ResultUpload is one captured image pushed by an operator. Exactly one of
// PointID and FrameID is set.
type ResultUpload struct {
	PointID     *uuid.UUID
	FrameID     *uuid.UUID
	Filename    string
	ContentType string
	Body        io.Reader
}

// PushResult stores an image for one point (points tasks) or frame (tracking
// tasks) of a received task.
func (s *Service) PushResult(ctx context.Context, operatorID, taskID uuid.UUID, up ResultUpload) (*models.TaskResult, error) {
	var errs validation.Errors
	switch {
	case up.PointID == nil && up.FrameID == nil:
		errs.Add("point_id", "one of point_id or frame_id is required")
	case up.PointID != nil && up.FrameID != nil:
		errs.Add("frame_id", "point_id and frame_id are mutually exclusive")
	}
	if up.Body == nil {
		errs.Add("image", "is required")
	}
	if len(errs) > 0 {
		return nil, errs.Err()
	}

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, taskIsNone(err)
	}
	if err := s.checkResultTarget(ctx, operatorID, task); err != nil {
		return nil, err
	}
	if err := s.checkReference(ctx, task, up); err != nil {
		return nil, err
	}

	result := &models.TaskResult{
		ID:        uuid.New(),
		TaskID:    task.ID,
		PointID:   up.PointID,
		FrameID:   up.FrameID,
		CreatedAt: s.opts.Now().UTC(),
	}
	h, err := s.images.Put(ctx, imagestore.ObjectKey(task.ID, result.ID, up.Filename), up.ContentType, up.Body)
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}
	result.ImageKey = h.Key
	result.ImageURL = h.URL

	err = s.store.InTx(ctx, func(tx store.Store) error {
		locked, err := tx.LockTask(ctx, task.ID)
		if err != nil {
			return taskIsNone(err)
		}
		if locked.Status != models.TaskReceived {
			return notReceived(locked.Status)
		}
		if err := tx.CreateResult(ctx, result); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				return fmt.Errorf("%w for this reference", ErrDuplicateResult)
			}
			return fmt.Errorf("create result: %w", err)
		}
		return nil
	})
	if err != nil {
		slog.Warn("result rejected after upload", "task_id", task.ID, "image_key", result.ImageKey, "error", err)
		return nil, err
	}

	metrics.RecordResult(string(task.Type))
	slog.Info("task result stored", "task_id", task.ID, "result_id", result.ID, "image_key", result.ImageKey)
	return result, nil
}

func (s *Service) checkResultTarget(ctx context.Context, operatorID uuid.UUID, task *models.Task) error {
	telescope, err := s.store.GetTelescope(ctx, task.TelescopeID)
	if err != nil {
		return fmt.Errorf("get telescope: %w", err)
	}
	if err := checkOperator(telescope, operatorID); err != nil {
		return err
	}
	if task.Status != models.TaskReceived {
		return notReceived(task.Status)
	}
	return nil
}

func notReceived(status models.TaskStatus) error {
	return &LifecycleError{
		Field:  "status",
		Reason: fmt.Sprintf("results are accepted only for received tasks, task is %s", status),
		Err:    ErrTransition,
	}
}

// checkReference verifies the point or frame belongs to task and matches its
// type, and that no image was recorded for it yet.
func (s *Service) checkReference(ctx context.Context, task *models.Task, up ResultUpload) error {
	var errs validation.Errors
	switch task.Type {
	case models.TaskPoints:
		if up.PointID == nil {
			errs.Add("point_id", "points tasks take point references")
			return errs.Err()
		}
		points, err := s.store.ListPoints(ctx, task.ID)
		if err != nil {
			return fmt.Errorf("list points: %w", err)
		}
		if !containsID(points, *up.PointID, func(p models.Point) uuid.UUID { return p.ID }) {
			errs.Add("point_id", "does not belong to this task")
		}
	case models.TaskTracking:
		if up.FrameID == nil {
			errs.Add("frame_id", "tracking tasks take frame references")
			return errs.Err()
		}
		frames, err := s.store.ListFrames(ctx, task.ID)
		if err != nil {
			return fmt.Errorf("list frames: %w", err)
		}
		if !containsID(frames, *up.FrameID, func(f models.Frame) uuid.UUID { return f.ID }) {
			errs.Add("frame_id", "does not belong to this task")
		}
	}
	if len(errs) > 0 {
		return errs.Err()
	}

	existing, err := s.store.ListResults(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("list results: %w", err)
	}
	for _, r := range existing {
		if sameRef(r.PointID, up.PointID) || sameRef(r.FrameID, up.FrameID) {
			return fmt.Errorf("%w for this reference", ErrDuplicateResult)
		}
	}
	return nil
}

func containsID[T any](items []T, id uuid.UUID, idOf func(T) uuid.UUID) bool {
	for _, it := range items {
		if idOf(it) == id {
			return true
		}
	}
	return false
}

func sameRef(a, b *uuid.UUID) bool {
	return a != nil && b != nil && *a == *b
}

// PlanTelescope is the site description sent with a plan.
type PlanTelescope struct {
	ID        uuid.UUID              `json:"id"`
	Code      int                    `json:"code"`
	Name      string                 `json:"name"`
	Status    models.TelescopeStatus `json:"status"`
	Latitude  float64                `json:"latitude"`
	Longitude float64                `json:"longitude"`
	Altitude  float64                `json:"altitude"`
	FOV       float64                `json:"fov"`
}

// Plan is what a telescope executes on one Julian day.
type Plan struct {
	Telescope PlanTelescope `json:"telescope"`
	JDN       int           `json:"jdn"`
	Tasks     []Detail      `json:"tasks"`
}

// Plan returns the created tasks of a telescope whose window starts on jdn.
// Plans are cached until a task enters or leaves created status or the
// telescope status changes.
func (s *Service) Plan(ctx context.Context, operatorID, telescopeID uuid.UUID, jdn int) (*Plan, error) {
	// The generation is read before anything it guards.
	gen, cacheable := s.planGeneration(ctx, telescopeID)

	telescope, err := s.store.GetTelescope(ctx, telescopeID)
	if err != nil {
		return nil, fmt.Errorf("telescope %s: %w", telescopeID, err)
	}
	if err := checkOperator(telescope, operatorID); err != nil {
		return nil, err
	}

	key := cache.PlanKey(telescopeID, jdn, gen)
	if cacheable {
		cached, found, err := cache.GetJSON[Plan](ctx, s.cache, key)
		if err != nil {
			slog.Warn("plan cache read failed", "key", key, "error", err)
		}
		if found {
			return &cached, nil
		}
	}

	created, err := s.store.ListTasks(ctx, store.TaskFilter{
		TelescopeID: telescopeID,
		Statuses:    []models.TaskStatus{models.TaskCreated},
		JDN:         &jdn,
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	plan := &Plan{
		Telescope: PlanTelescope{
			ID:        telescope.ID,
			Code:      telescope.Code,
			Name:      telescope.Name,
			Status:    telescope.Status,
			Latitude:  telescope.Latitude,
			Longitude: telescope.Longitude,
			Altitude:  telescope.Altitude,
			FOV:       telescope.FOV,
		},
		JDN:   jdn,
		Tasks: make([]Detail, 0, len(created)),
	}
	for _, t := range created {
		d, err := s.detail(ctx, t)
		if err != nil {
			return nil, err
		}
		plan.Tasks = append(plan.Tasks, *d)
	}

	if cacheable {
		if err := cache.SetJSON(ctx, s.cache, key, plan, s.opts.PlanCacheTTL); err != nil {
			slog.Warn("plan cache write failed", "key", key, "error", err)
		}
	}
	return plan, nil
}

// SetTelescopeStatus records the availability an operator reports for their
// telescope.
func (s *Service) SetTelescopeStatus(ctx context.Context, operatorID, telescopeID uuid.UUID, status models.TelescopeStatus) (*models.Telescope, error) {
	if !status.Valid() {
		var errs validation.Errors
		errs.Add("status", fmt.Sprintf("must be %q or %q", models.TelescopeOnline, models.TelescopeOffline))
		return nil, errs.Err()
	}

	telescope, err := s.store.GetTelescope(ctx, telescopeID)
	if err != nil {
		return nil, fmt.Errorf("telescope %s: %w", telescopeID, err)
	}
	if err := checkOperator(telescope, operatorID); err != nil {
		return nil, err
	}
	if err := s.store.UpdateTelescopeStatus(ctx, telescopeID, status); err != nil {
		return nil, fmt.Errorf("update telescope status: %w", err)
	}
	s.invalidatePlans(ctx, telescopeID)

	telescope.Status = status
	slog.Info("telescope status updated", "telescope_id", telescopeID, "status", status)
	return telescope, nil
}
