// Package tasks runs the task lifecycle: submission, confirmation, operator
// claims and result pushes.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/chronos/internal/cache"
	"github.com/kiranshivaraju/chronos/internal/config"
	"github.com/kiranshivaraju/chronos/internal/imagestore"
	"github.com/kiranshivaraju/chronos/internal/ledger"
	"github.com/kiranshivaraju/chronos/internal/metrics"
	"github.com/kiranshivaraju/chronos/internal/normalize"
	"github.com/kiranshivaraju/chronos/internal/schedule"
	"github.com/kiranshivaraju/chronos/internal/store"
	"github.com/kiranshivaraju/chronos/internal/validation"
	"github.com/kiranshivaraju/chronos/pkg/models"
)

// Options tunes a Service.
type Options struct {
	// ConfirmMode is config.ConfirmImmediate or config.ConfirmExplicit.
	ConfirmMode  string
	PlanCacheTTL time.Duration
	Now          func() time.Time
}

// Service coordinates the task lifecycle.
type Service struct {
	store      store.Store
	normalizer *normalize.Normalizer
	images     imagestore.Store
	cache      cache.Cache
	opts       Options
}

// NewService creates a Service. c may be nil to disable plan caching.
func NewService(s store.Store, n *normalize.Normalizer, images imagestore.Store, c cache.Cache, opts Options) *Service {
	if opts.ConfirmMode == "" {
		opts.ConfirmMode = config.ConfirmImmediate
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: s, normalizer: n, images: images, cache: c, opts: opts}
}

// Submit normalizes sub and stores it. In immediate mode the task is
// reserved, debited and created in one transaction; in explicit mode it is
// stored as a draft awaiting Confirm.
func (s *Service) Submit(ctx context.Context, userID uuid.UUID, sub normalize.Submission) (*models.Task, error) {
	task, err := s.submit(ctx, userID, sub)
	metrics.RecordSubmission(string(sub.Type), submissionOutcome(task, err))
	if err != nil {
		return nil, err
	}

	slog.Info("task submitted",
		"task_id", task.ID, "user_id", userID, "telescope_id", task.TelescopeID,
		"status", task.Status, "minutes", task.DurationMinutes)
	return task, nil
}

func (s *Service) submit(ctx context.Context, userID uuid.UUID, sub normalize.Submission) (*models.Task, error) {
	telescope, err := s.store.GetTelescope(ctx, sub.TelescopeID)
	if err != nil {
		return nil, fmt.Errorf("telescope %s: %w", sub.TelescopeID, err)
	}

	nt, err := s.normalizer.Normalize(ctx, telescope, userID, sub)
	if err != nil {
		return nil, err
	}
	if err := s.checkSatellites(ctx, nt); err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(tx store.Store) error {
		if s.opts.ConfirmMode == config.ConfirmImmediate {
			if err := s.reserve(ctx, tx, &nt.Task); err != nil {
				return err
			}
		}
		return persist(ctx, tx, nt)
	})
	if err != nil {
		return nil, err
	}

	if nt.Task.Status == models.TaskCreated {
		metrics.AddDebited(nt.Task.DurationMinutes)
		metrics.RecordTransition(string(models.TaskDraft), string(models.TaskCreated))
		s.invalidatePlans(ctx, nt.Task.TelescopeID)
	}
	return &nt.Task, nil
}

// Confirm moves a draft task to created, reserving its window and debiting
// its cost atomically.
func (s *Service) Confirm(ctx context.Context, userID, taskID uuid.UUID) (*models.Task, error) {
	var confirmed *models.Task
	err := s.store.InTx(ctx, func(tx store.Store) error {
		task, err := tx.LockTask(ctx, taskID)
		if err != nil {
			return taskIsNone(err)
		}
		if task.UserID != userID {
			return &LifecycleError{Field: "task", Reason: "task belongs to another user", Err: ErrNotOwner}
		}
		if err := checkTransition(task.Status, models.TaskCreated); err != nil {
			return err
		}
		if err := s.reserve(ctx, tx, task); err != nil {
			return err
		}
		if err := tx.UpdateTaskStatus(ctx, task.ID, task.Status); err != nil {
			return fmt.Errorf("update task status: %w", err)
		}
		confirmed = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.AddDebited(confirmed.DurationMinutes)
	metrics.RecordTransition(string(models.TaskDraft), string(models.TaskCreated))
	s.invalidatePlans(ctx, confirmed.TelescopeID)
	slog.Info("task confirmed", "task_id", confirmed.ID, "user_id", userID, "minutes", confirmed.DurationMinutes)
	return confirmed, nil
}

// reserve checks task's window against the telescope timeline, debits its
// cost and marks it created. The telescope row stays locked until tx ends,
// which serializes reservations per telescope.
func (s *Service) reserve(ctx context.Context, tx store.Store, task *models.Task) error {
	telescope, err := tx.LockTelescope(ctx, task.TelescopeID)
	if err != nil {
		return fmt.Errorf("lock telescope: %w", err)
	}
	if !telescope.Enabled {
		var errs validation.Errors
		errs.Add("telescope_id", "telescope is not enabled")
		return errs.Err()
	}

	start, end, ok := task.Window()
	if !ok {
		return &LifecycleError{Field: "task", Reason: "task has no observation window", Err: ErrTransition}
	}

	reservations, err := reservationsOf(ctx, tx, task.TelescopeID)
	if err != nil {
		return err
	}
	if c := schedule.FindCollision(reservations, start, end); c != nil {
		return c
	}

	if _, err := ledger.Debit(ctx, tx, task.UserID, task.TelescopeID, task.DurationMinutes); err != nil {
		return err
	}

	task.Status = models.TaskCreated
	task.UpdatedAt = s.opts.Now().UTC()
	return nil
}

func reservationsOf(ctx context.Context, st store.Store, telescopeID uuid.UUID) ([]schedule.Reservation, error) {
	active, err := st.ListTasks(ctx, store.TaskFilter{
		TelescopeID: telescopeID,
		Statuses:    []models.TaskStatus{models.TaskCreated, models.TaskReceived},
	})
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	tasks := make([]models.Task, len(active))
	for i, t := range active {
		tasks[i] = *t
	}
	return schedule.Reservations(tasks), nil
}

func (s *Service) checkSatellites(ctx context.Context, nt *normalize.Task) error {
	numbers := map[int]bool{}
	if nt.Task.SatelliteNumber != nil {
		numbers[*nt.Task.SatelliteNumber] = true
	}
	if nt.Tracking != nil && nt.Tracking.SatelliteNumber != nil {
		numbers[*nt.Tracking.SatelliteNumber] = true
	}
	for n := range numbers {
		if _, err := s.store.GetSatellite(ctx, n); err != nil {
			return fmt.Errorf("satellite %d: %w", n, err)
		}
	}
	return nil
}

func persist(ctx context.Context, tx store.Store, nt *normalize.Task) error {
	if err := tx.CreateTask(ctx, &nt.Task); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	if len(nt.Points) > 0 {
		if err := tx.CreatePoints(ctx, nt.Points); err != nil {
			return fmt.Errorf("create points: %w", err)
		}
	}
	if len(nt.Frames) > 0 {
		if err := tx.CreateFrames(ctx, nt.Frames); err != nil {
			return fmt.Errorf("create frames: %w", err)
		}
	}
	if len(nt.TrackPoints) > 0 {
		if err := tx.CreateTrackPoints(ctx, nt.TrackPoints); err != nil {
			return fmt.Errorf("create track points: %w", err)
		}
	}
	if nt.Tracking != nil {
		if err := tx.CreateTrackingData(ctx, nt.Tracking); err != nil {
			return fmt.Errorf("create tracking data: %w", err)
		}
	}
	if nt.TLE != nil {
		if err := tx.CreateTLEData(ctx, nt.TLE); err != nil {
			return fmt.Errorf("create tle data: %w", err)
		}
	}
	if err := tx.CreateInputData(ctx, &nt.Input); err != nil {
		return fmt.Errorf("create input data: %w", err)
	}
	return nil
}

func submissionOutcome(task *models.Task, err error) string {
	var collision *schedule.Collision
	switch {
	case err == nil && task.Status == models.TaskDraft:
		return metrics.OutcomeDraft
	case err == nil:
		return metrics.OutcomeAccepted
	case errors.Is(err, validation.ErrInvalid):
		return metrics.OutcomeInvalid
	case errors.As(err, &collision):
		return metrics.OutcomeCollision
	case errors.Is(err, ledger.ErrInsufficient):
		return metrics.OutcomeInsufficient
	case errors.Is(err, ledger.ErrNoAccess):
		return metrics.OutcomeNoAccess
	default:
		return metrics.OutcomeError
	}
}

// invalidatePlans bumps the plan generation of a telescope. Plans cached
// under an earlier generation are never read again, including one still
// being built from reads that predate the bump. Cache failures are logged
// and otherwise ignored; entries expire on their own.
func (s *Service) invalidatePlans(ctx context.Context, telescopeID uuid.UUID) {
	if s.cache == nil {
		return
	}
	key := cache.PlanGenerationKey(telescopeID)
	if _, err := s.cache.IncrWithExpiry(ctx, key, s.planGenerationTTL()); err != nil {
		slog.Warn("plan cache invalidation failed", "key", key, "error", err)
	}
}

// planGenerationTTL outlives every plan entry so an expired counter cannot
// bring an old generation back into use.
func (s *Service) planGenerationTTL() time.Duration {
	return max(24*time.Hour, 2*s.opts.PlanCacheTTL)
}

// planGeneration reports the current plan generation of a telescope, or
// false when it cannot be read and plans must bypass the cache.
func (s *Service) planGeneration(ctx context.Context, telescopeID uuid.UUID) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	key := cache.PlanGenerationKey(telescopeID)
	gen, err := cache.Counter(ctx, s.cache, key)
	if err != nil {
		slog.Warn("plan generation read failed", "key", key, "error", err)
		return 0, false
	}
	return gen, true
}
