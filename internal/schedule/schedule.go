// Package schedule detects overlapping reservations on a telescope timeline.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/chronos/pkg/models"
)

// ErrCollision is wrapped by every *Collision.
var ErrCollision = errors.New("schedule collision")

// Reservation is the window a task holds on its telescope.
type Reservation struct {
	TaskID uuid.UUID         `json:"task_id"`
	Status models.TaskStatus `json:"status"`
	Start  time.Time         `json:"start_dt"`
	End    time.Time         `json:"end_dt"`
}

// Collision describes the first reservation a candidate window overlaps and
// the span they share.
type Collision struct {
	Reservation  Reservation `json:"reservation"`
	OverlapStart time.Time   `json:"overlap_start"`
	OverlapEnd   time.Time   `json:"overlap_end"`
}

func (c *Collision) Error() string {
	return fmt.Sprintf("telescope is reserved by task %s from %s to %s",
		c.Reservation.TaskID,
		c.Reservation.Start.UTC().Format(time.RFC3339Nano),
		c.Reservation.End.UTC().Format(time.RFC3339Nano))
}

func (c *Collision) Unwrap() error { return ErrCollision }

// Overlaps reports whether the closed intervals [aStart, aEnd] and
// [bStart, bEnd] share at least one instant.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !aEnd.Before(bStart)
}

// Reservations returns the windows held by tasks in a reserving status,
// ordered by start. Tasks without a normalized window hold nothing.
func Reservations(tasks []models.Task) []Reservation {
	out := make([]Reservation, 0, len(tasks))
	for i := range tasks {
		t := &tasks[i]
		start, end, ok := t.Window()
		if !ok || !t.Status.Reserving() {
			continue
		}
		out = append(out, Reservation{TaskID: t.ID, Status: t.Status, Start: start, End: end})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// FindCollision returns the first reservation overlapping [start, end], or nil.
func FindCollision(reservations []Reservation, start, end time.Time) *Collision {
	for _, r := range reservations {
		if !Overlaps(start, end, r.Start, r.End) {
			continue
		}
		return &Collision{
			Reservation:  r,
			OverlapStart: latest(start, r.Start),
			OverlapEnd:   earliest(end, r.End),
		}
	}
	return nil
}

// Between returns the reservations that overlap [from, to].
func Between(reservations []Reservation, from, to time.Time) []Reservation {
	var out []Reservation
	for _, r := range reservations {
		if Overlaps(from, to, r.Start, r.End) {
			out = append(out, r)
		}
	}
	return out
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
