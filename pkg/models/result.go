package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskResult is one captured image. Exactly one of PointID and FrameID is set,
// matching the task's type.
type TaskResult struct {
	ID        uuid.UUID  `db:"id"         json:"id"`
	TaskID    uuid.UUID  `db:"task_id"    json:"task_id"`
	PointID   *uuid.UUID `db:"point_id"   json:"point_id,omitempty"`
	FrameID   *uuid.UUID `db:"frame_id"   json:"frame_id,omitempty"`
	ImageKey  string     `db:"image_key"  json:"image_key"`
	ImageURL  string     `db:"image_url"  json:"image_url"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
