package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is a task's position in its lifecycle.
type TaskStatus string

const (
	TaskDraft    TaskStatus = "draft"
	TaskCreated  TaskStatus = "created"
	TaskReceived TaskStatus = "received"
	TaskReady    TaskStatus = "ready"
	TaskFailed   TaskStatus = "failed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskDraft, TaskCreated, TaskReceived, TaskReady, TaskFailed:
		return true
	}
	return false
}

// Reserving reports whether a task in status s holds its window on the
// telescope timeline.
func (s TaskStatus) Reserving() bool {
	return s == TaskCreated || s == TaskReceived
}

// TaskType selects which sub-record collections a task carries.
type TaskType string

const (
	TaskPoints   TaskType = "points"
	TaskTracking TaskType = "tracking"
)

// Valid reports whether t is a recognized task type.
func (t TaskType) Valid() bool {
	return t == TaskPoints || t == TaskTracking
}

// Task is the central scheduling unit. The window fields stay nil until the
// task's points and frames have been normalized.
type Task struct {
	ID              uuid.UUID  `db:"id"               json:"id"`
	Status          TaskStatus `db:"status"           json:"status"`
	Type            TaskType   `db:"task_type"        json:"task_type"`
	UserID          uuid.UUID  `db:"user_id"          json:"user_id"`
	TelescopeID     uuid.UUID  `db:"telescope_id"     json:"telescope_id"`
	SatelliteNumber *int       `db:"satellite_number" json:"satellite_number,omitempty"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	StartDT         *time.Time `db:"start_dt"         json:"start_dt,omitempty"`
	EndDT           *time.Time `db:"end_dt"           json:"end_dt,omitempty"`
	JDN             *int       `db:"jdn"              json:"jdn,omitempty"`
	StartJD         *float64   `db:"start_jd"         json:"start_jd,omitempty"`
	EndJD           *float64   `db:"end_jd"           json:"end_jd,omitempty"`
	CreatedAt       time.Time  `db:"created_at"       json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"       json:"updated_at"`
}

// Window returns the task's observation window, or ok=false when it has not
// been normalized yet.
func (t *Task) Window() (start, end time.Time, ok bool) {
	if t.StartDT == nil || t.EndDT == nil {
		return time.Time{}, time.Time{}, false
	}
	return *t.StartDT, *t.EndDT, true
}
