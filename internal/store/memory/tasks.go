package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/chronos/internal/store"
	"github.com/kiranshivaraju/chronos/pkg/models"
)

func (s *Store) CreateTask(_ context.Context, t *models.Task) error {
	st := s.lock()
	defer s.unlock()

	if _, ok := st.tasks[t.ID]; ok {
		return store.ErrDuplicateKey
	}
	if _, ok := st.telescopes[t.TelescopeID]; !ok {
		return store.ErrNotFound
	}
	if t.SatelliteNumber != nil {
		if _, ok := st.satellites[*t.SatelliteNumber]; !ok {
			return store.ErrNotFound
		}
	}
	st.tasks[t.ID] = *t
	return nil
}

func (s *Store) GetTask(_ context.Context, id uuid.UUID) (*models.Task, error) {
	st := s.lock()
	defer s.unlock()

	t, ok := st.tasks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (s *Store) LockTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return s.GetTask(ctx, id)
}

func (s *Store) ListTasks(_ context.Context, filter store.TaskFilter) ([]*models.Task, error) {
	st := s.lock()
	defer s.unlock()

	var out []*models.Task
	for _, t := range st.tasks {
		t := t
		if filter.Matches(&t) {
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.StartDT != nil && b.StartDT != nil && !a.StartDT.Equal(*b.StartDT):
			return a.StartDT.Before(*b.StartDT)
		case a.StartDT == nil && b.StartDT != nil:
			return false
		case a.StartDT != nil && b.StartDT == nil:
			return true
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) UpdateTaskStatus(_ context.Context, id uuid.UUID, status models.TaskStatus) error {
	st := s.lock()
	defer s.unlock()

	t, ok := st.tasks[id]
	if !ok {
		return store.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	st.tasks[id] = t
	return nil
}

// --- Sub-records ---

func (s *Store) CreatePoints(_ context.Context, points []models.Point) error {
	st := s.lock()
	defer s.unlock()

	for _, p := range points {
		if _, ok := st.tasks[p.TaskID]; !ok {
			return store.ErrNotFound
		}
		st.points[p.TaskID] = append(append([]models.Point(nil), st.points[p.TaskID]...), p)
	}
	return nil
}

func (s *Store) CreateFrames(_ context.Context, frames []models.Frame) error {
	st := s.lock()
	defer s.unlock()

	for _, f := range frames {
		if _, ok := st.tasks[f.TaskID]; !ok {
			return store.ErrNotFound
		}
		st.frames[f.TaskID] = append(append([]models.Frame(nil), st.frames[f.TaskID]...), f)
	}
	return nil
}

func (s *Store) CreateTrackPoints(_ context.Context, points []models.TrackPoint) error {
	st := s.lock()
	defer s.unlock()

	for _, p := range points {
		if _, ok := st.tasks[p.TaskID]; !ok {
			return store.ErrNotFound
		}
		st.trackPoints[p.TaskID] = append(append([]models.TrackPoint(nil), st.trackPoints[p.TaskID]...), p)
	}
	return nil
}

func (s *Store) CreateTrackingData(_ context.Context, td *models.TrackingData) error {
	st := s.lock()
	defer s.unlock()

	if _, ok := st.tasks[td.TaskID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := st.tracking[td.TaskID]; ok {
		return store.ErrDuplicateKey
	}
	st.tracking[td.TaskID] = *td
	return nil
}

func (s *Store) CreateTLEData(_ context.Context, tle *models.TLEData) error {
	st := s.lock()
	defer s.unlock()

	if _, ok := st.tasks[tle.TaskID]; !ok {
		return store.ErrNotFound
	}
	st.tles[tle.TaskID] = append(append([]models.TLEData(nil), st.tles[tle.TaskID]...), *tle)
	return nil
}

func (s *Store) CreateInputData(_ context.Context, in *models.InputData) error {
	st := s.lock()
	defer s.unlock()

	if _, ok := st.tasks[in.TaskID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := st.inputs[in.TaskID]; ok {
		return store.ErrDuplicateKey
	}
	st.inputs[in.TaskID] = *in
	return nil
}

func (s *Store) ListPoints(_ context.Context, taskID uuid.UUID) ([]models.Point, error) {
	st := s.lock()
	defer s.unlock()

	out := append([]models.Point(nil), st.points[taskID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DT.Before(out[j].DT) })
	return out, nil
}

func (s *Store) ListFrames(_ context.Context, taskID uuid.UUID) ([]models.Frame, error) {
	st := s.lock()
	defer s.unlock()

	out := append([]models.Frame(nil), st.frames[taskID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DT.Before(out[j].DT) })
	return out, nil
}

func (s *Store) ListTrackPoints(_ context.Context, taskID uuid.UUID) ([]models.TrackPoint, error) {
	st := s.lock()
	defer s.unlock()

	out := append([]models.TrackPoint(nil), st.trackPoints[taskID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DT.Before(out[j].DT) })
	return out, nil
}

func (s *Store) GetTrackingData(_ context.Context, taskID uuid.UUID) (*models.TrackingData, error) {
	st := s.lock()
	defer s.unlock()

	td, ok := st.tracking[taskID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &td, nil
}

func (s *Store) ListTLEData(_ context.Context, taskID uuid.UUID) ([]models.TLEData, error) {
	st := s.lock()
	defer s.unlock()

	return append([]models.TLEData(nil), st.tles[taskID]...), nil
}

func (s *Store) GetInputData(_ context.Context, taskID uuid.UUID) (*models.InputData, error) {
	st := s.lock()
	defer s.unlock()

	in, ok := st.inputs[taskID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &in, nil
}

// --- Results ---

func (s *Store) CreateResult(_ context.Context, r *models.TaskResult) error {
	st := s.lock()
	defer s.unlock()

	if _, ok := st.tasks[r.TaskID]; !ok {
		return store.ErrNotFound
	}
	for _, existing := range st.results {
		if existing.ID == r.ID ||
			sameRef(existing.PointID, r.PointID) ||
			sameRef(existing.FrameID, r.FrameID) {
			return store.ErrDuplicateKey
		}
	}
	st.results = append(st.results, *r)
	return nil
}

func sameRef(a, b *uuid.UUID) bool {
	return a != nil && b != nil && *a == *b
}

func (s *Store) ListResults(_ context.Context, taskID uuid.UUID) ([]*models.TaskResult, error) {
	st := s.lock()
	defer s.unlock()

	var out []*models.TaskResult
	for _, r := range st.results {
		if r.TaskID == taskID {
			r := r
			out = append(out, &r)
		}
	}
	return out, nil
}
