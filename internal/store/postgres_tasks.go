package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kiranshivaraju/chronos/pkg/models"
)

// --- Tasks ---

const taskColumns = `id, status, task_type, user_id, telescope_id, satellite_number, duration_minutes,
	start_dt, end_dt, jdn, start_jd, end_jd, created_at, updated_at`

func scanTask(row scanner) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.Status, &t.Type, &t.UserID, &t.TelescopeID, &t.SatelliteNumber, &t.DurationMinutes,
		&t.StartDT, &t.EndDT, &t.JDN, &t.StartJD, &t.EndJD, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, t *models.Task) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tasks (id, status, task_type, user_id, telescope_id, satellite_number, duration_minutes,
		   start_dt, end_dt, jdn, start_jd, end_jd, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		t.ID, t.Status, t.Type, t.UserID, t.TelescopeID, t.SatelliteNumber, t.DurationMinutes,
		t.StartDT, t.EndDT, t.JDN, t.StartJD, t.EndJD, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrNotFound
		}
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return getOne(s.db.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id), scanTask, "get task")
}

func (s *PostgresStore) LockTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return getOne(s.db.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`+s.lockClause(), id), scanTask, "lock task")
}

func (s *PostgresStore) ListTasks(ctx context.Context, filter TaskFilter) ([]*models.Task, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if filter.UserID != uuid.Nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIdx))
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.TelescopeID != uuid.Nil {
		conditions = append(conditions, fmt.Sprintf("telescope_id = $%d", argIdx))
		args = append(args, filter.TelescopeID)
		argIdx++
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", argIdx))
		args = append(args, statuses)
		argIdx++
	}
	if filter.JDN != nil {
		conditions = append(conditions, fmt.Sprintf("jdn = $%d", argIdx))
		args = append(args, *filter.JDN)
		argIdx++
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY start_dt NULLS LAST, created_at`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return collect(rows, scanTask, "scan task")
}

func (s *PostgresStore) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status models.TaskStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE tasks SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Sub-records ---

func (s *PostgresStore) CreatePoints(ctx context.Context, points []models.Point) error {
	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(`INSERT INTO points (id, task_id, alpha, beta, cs_type, dt, jdn, jd) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			p.ID, p.TaskID, p.Alpha, p.Beta, p.CSType, p.DT, p.JDN, p.JD)
	}
	if err := s.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("create points: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateFrames(ctx context.Context, frames []models.Frame) error {
	batch := &pgx.Batch{}
	for _, f := range frames {
		batch.Queue(`INSERT INTO frames (id, task_id, mag, exposure, dt, jdn, jd) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			f.ID, f.TaskID, f.Mag, f.Exposure, f.DT, f.JDN, f.JD)
	}
	if err := s.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("create frames: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateTrackPoints(ctx context.Context, points []models.TrackPoint) error {
	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(`INSERT INTO track_points (id, task_id, alpha, beta, dt, jdn, jd) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			p.ID, p.TaskID, p.Alpha, p.Beta, p.DT, p.JDN, p.JD)
	}
	if err := s.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("create track points: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateTrackingData(ctx context.Context, td *models.TrackingData) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tracking_data (task_id, satellite_number, mag, step_sec, count) VALUES ($1, $2, $3, $4, $5)`,
		td.TaskID, td.SatelliteNumber, td.Mag, td.StepSec, td.Count)
	if err != nil {
		return fmt.Errorf("create tracking data: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateTLEData(ctx context.Context, tle *models.TLEData) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tle_data (id, task_id, satellite_number, header, line1, line2) VALUES ($1, $2, $3, $4, $5, $6)`,
		tle.ID, tle.TaskID, tle.SatelliteNumber, tle.Header, tle.Line1, tle.Line2)
	if err != nil {
		return fmt.Errorf("create tle data: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateInputData(ctx context.Context, in *models.InputData) error {
	var raw []byte
	if len(in.DataJSON) > 0 {
		raw = in.DataJSON
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO input_data (task_id, data_type, data_tle, data_json) VALUES ($1, $2, $3, $4::jsonb)`,
		in.TaskID, in.DataType, in.DataTLE, raw)
	if err != nil {
		return fmt.Errorf("create input data: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPoints(ctx context.Context, taskID uuid.UUID) ([]models.Point, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, task_id, alpha, beta, cs_type, dt, jdn, jd FROM points WHERE task_id = $1 ORDER BY dt, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list points: %w", err)
	}
	return collect(rows, func(row scanner) (models.Point, error) {
		var p models.Point
		err := row.Scan(&p.ID, &p.TaskID, &p.Alpha, &p.Beta, &p.CSType, &p.DT, &p.JDN, &p.JD)
		return p, err
	}, "scan point")
}

func (s *PostgresStore) ListFrames(ctx context.Context, taskID uuid.UUID) ([]models.Frame, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, task_id, mag, exposure, dt, jdn, jd FROM frames WHERE task_id = $1 ORDER BY dt, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	return collect(rows, func(row scanner) (models.Frame, error) {
		var f models.Frame
		err := row.Scan(&f.ID, &f.TaskID, &f.Mag, &f.Exposure, &f.DT, &f.JDN, &f.JD)
		return f, err
	}, "scan frame")
}

func (s *PostgresStore) ListTrackPoints(ctx context.Context, taskID uuid.UUID) ([]models.TrackPoint, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, task_id, alpha, beta, dt, jdn, jd FROM track_points WHERE task_id = $1 ORDER BY dt, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list track points: %w", err)
	}
	return collect(rows, func(row scanner) (models.TrackPoint, error) {
		var p models.TrackPoint
		err := row.Scan(&p.ID, &p.TaskID, &p.Alpha, &p.Beta, &p.DT, &p.JDN, &p.JD)
		return p, err
	}, "scan track point")
}

func (s *PostgresStore) GetTrackingData(ctx context.Context, taskID uuid.UUID) (*models.TrackingData, error) {
	return getOne(s.db.QueryRow(ctx,
		`SELECT task_id, satellite_number, mag, step_sec, count FROM tracking_data WHERE task_id = $1`, taskID),
		func(row scanner) (*models.TrackingData, error) {
			var td models.TrackingData
			if err := row.Scan(&td.TaskID, &td.SatelliteNumber, &td.Mag, &td.StepSec, &td.Count); err != nil {
				return nil, err
			}
			return &td, nil
		}, "get tracking data")
}

func (s *PostgresStore) ListTLEData(ctx context.Context, taskID uuid.UUID) ([]models.TLEData, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, task_id, satellite_number, header, line1, line2 FROM tle_data WHERE task_id = $1`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list tle data: %w", err)
	}
	return collect(rows, func(row scanner) (models.TLEData, error) {
		var t models.TLEData
		err := row.Scan(&t.ID, &t.TaskID, &t.SatelliteNumber, &t.Header, &t.Line1, &t.Line2)
		return t, err
	}, "scan tle data")
}

func (s *PostgresStore) GetInputData(ctx context.Context, taskID uuid.UUID) (*models.InputData, error) {
	return getOne(s.db.QueryRow(ctx,
		`SELECT task_id, data_type, data_tle, data_json FROM input_data WHERE task_id = $1`, taskID),
		func(row scanner) (*models.InputData, error) {
			var in models.InputData
			var raw []byte
			if err := row.Scan(&in.TaskID, &in.DataType, &in.DataTLE, &raw); err != nil {
				return nil, err
			}
			in.DataJSON = raw
			return &in, nil
		}, "get input data")
}

// --- Results ---

func (s *PostgresStore) CreateResult(ctx context.Context, r *models.TaskResult) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO task_results (id, task_id, point_id, frame_id, image_key, image_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.TaskID, r.PointID, r.FrameID, r.ImageKey, r.ImageURL, r.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create task result: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListResults(ctx context.Context, taskID uuid.UUID) ([]*models.TaskResult, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, task_id, point_id, frame_id, image_key, image_url, created_at
		 FROM task_results WHERE task_id = $1 ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task results: %w", err)
	}
	return collect(rows, func(row scanner) (*models.TaskResult, error) {
		var r models.TaskResult
		if err := row.Scan(&r.ID, &r.TaskID, &r.PointID, &r.FrameID, &r.ImageKey, &r.ImageURL, &r.CreatedAt); err != nil {
			return nil, err
		}
		return &r, nil
	}, "scan task result")
}

func (s *PostgresStore) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	return s.db.SendBatch(ctx, batch).Close()
}
