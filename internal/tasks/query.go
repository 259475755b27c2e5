package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/chronos/internal/schedule"
	"github.com/kiranshivaraju/chronos/internal/store"
	"github.com/kiranshivaraju/chronos/pkg/models"
)

// Detail is a task together with its sub-records.
type Detail struct {
	models.Task
	Points      []models.Point       `json:"points,omitempty"`
	Frames      []models.Frame       `json:"frames,omitempty"`
	TrackPoints []models.TrackPoint  `json:"track_points,omitempty"`
	Tracking    *models.TrackingData `json:"tracking_data,omitempty"`
	TLE         []models.TLEData     `json:"tle,omitempty"`
	Input       *models.InputData    `json:"input_data,omitempty"`
}

func (s *Service) detail(ctx context.Context, t *models.Task) (*Detail, error) {
	d := &Detail{Task: *t}
	var err error

	switch t.Type {
	case models.TaskPoints:
		if d.Points, err = s.store.ListPoints(ctx, t.ID); err != nil {
			return nil, fmt.Errorf("list points: %w", err)
		}
	case models.TaskTracking:
		if d.TrackPoints, err = s.store.ListTrackPoints(ctx, t.ID); err != nil {
			return nil, fmt.Errorf("list track points: %w", err)
		}
		d.Tracking, err = s.store.GetTrackingData(ctx, t.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("get tracking data: %w", err)
		}
	}
	if d.Frames, err = s.store.ListFrames(ctx, t.ID); err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	if d.TLE, err = s.store.ListTLEData(ctx, t.ID); err != nil {
		return nil, fmt.Errorf("list tle data: %w", err)
	}
	d.Input, err = s.store.GetInputData(ctx, t.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get input data: %w", err)
	}
	return d, nil
}

// List returns the user's tasks, optionally narrowed by status.
func (s *Service) List(ctx context.Context, userID uuid.UUID, statuses []models.TaskStatus, limit int) ([]*models.Task, error) {
	tasks, err := s.store.ListTasks(ctx, store.TaskFilter{UserID: userID, Statuses: statuses, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Get returns a task with its sub-records. Only the submitting user and the
// operator of the task's telescope may read it.
func (s *Service) Get(ctx context.Context, userID, taskID uuid.UUID) (*Detail, error) {
	task, err := s.visibleTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, task)
}

// Results lists the images captured for a task.
func (s *Service) Results(ctx context.Context, userID, taskID uuid.UUID) ([]*models.TaskResult, error) {
	if _, err := s.visibleTask(ctx, userID, taskID); err != nil {
		return nil, err
	}
	results, err := s.store.ListResults(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return results, nil
}

func (s *Service) visibleTask(ctx context.Context, userID, taskID uuid.UUID) (*models.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, taskIsNone(err)
	}
	if task.UserID == userID {
		return task, nil
	}
	telescope, err := s.store.GetTelescope(ctx, task.TelescopeID)
	if err != nil {
		return nil, fmt.Errorf("get telescope: %w", err)
	}
	if telescope.OperatedBy(userID) {
		return task, nil
	}
	// Other users' tasks are reported as missing.
	return nil, taskIsNone(store.ErrNotFound)
}

// Schedule lists the windows reserved on a telescope. A zero from or to
// leaves that side open.
func (s *Service) Schedule(ctx context.Context, telescopeID uuid.UUID, from, to time.Time) ([]schedule.Reservation, error) {
	if _, err := s.store.GetTelescope(ctx, telescopeID); err != nil {
		return nil, fmt.Errorf("telescope %s: %w", telescopeID, err)
	}
	reservations, err := reservationsOf(ctx, s.store, telescopeID)
	if err != nil {
		return nil, err
	}
	if from.IsZero() && to.IsZero() {
		return reservations, nil
	}
	if from.IsZero() {
		from = time.Unix(0, 0).UTC()
	}
	if to.IsZero() {
		to = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	return schedule.Between(reservations, from, to), nil
}
