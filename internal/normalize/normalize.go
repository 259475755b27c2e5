// Package normalize turns a submission into a task with Julian-stamped
// points, frames and track points and a computed observation window.
package normalize

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/chronos/internal/orbit"
	"github.com/kiranshivaraju/chronos/internal/validation"
	"github.com/kiranshivaraju/chronos/pkg/julian"
	"github.com/kiranshivaraju/chronos/pkg/models"
)

// TLESource looks up the current element set of a catalogued satellite.
type TLESource interface {
	FetchTLE(ctx context.Context, catalogNumber int) (models.TLEData, error)
}

// Task is a normalized task and its sub-records, all stamped with the task id.
type Task struct {
	Task        models.Task
	Points      []models.Point
	Frames      []models.Frame
	TrackPoints []models.TrackPoint
	Tracking    *models.TrackingData
	TLE         *models.TLEData
	Input       models.InputData
}

// Normalizer builds tasks from submissions.
type Normalizer struct {
	tle TLESource
	now func() time.Time
}

// New creates a Normalizer. tle may be nil, in which case submissions asking
// for a published element set are rejected. now defaults to time.Now.
func New(tle TLESource, now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{tle: tle, now: now}
}

// window tracks the earliest and latest instant seen.
type window struct {
	start, end time.Time
	set        bool
}

func (w *window) observe(t time.Time) {
	if !w.set || t.Before(w.start) {
		w.start = t
	}
	if !w.set || t.After(w.end) {
		w.end = t
	}
	w.set = true
}

func momentOf(dt *time.Time) *julian.Moment {
	if dt == nil {
		return nil
	}
	m := julian.FromTime(*dt)
	return &m
}

type builder struct {
	n      *Normalizer
	now    time.Time
	taskID uuid.UUID
	errs   validation.Errors
	win    window
	out    *Task
}

// Normalize validates sub against telescope and returns the task in draft
// status. Every problem in every element is reported together in a
// *validation.Error; nothing is returned partially.
func (n *Normalizer) Normalize(ctx context.Context, telescope *models.Telescope, userID uuid.UUID, sub Submission) (*Task, error) {
	var errs validation.Errors
	if !telescope.Enabled {
		errs.Add("telescope_id", "telescope is not enabled")
	}
	if !sub.Type.Valid() {
		errs.Add("task_type", fmt.Sprintf("must be %q or %q, got %q", models.TaskPoints, models.TaskTracking, sub.Type))
	} else if sub.Payload == nil || sub.Payload.TaskType() != sub.Type {
		errs.Add("payload", fmt.Sprintf("does not match task type %q", sub.Type))
	}
	if len(errs) > 0 {
		return nil, errs.Err()
	}

	now := n.now().UTC()
	b := &builder{
		n:      n,
		now:    now,
		taskID: uuid.New(),
		out: &Task{
			Task: models.Task{
				Status:          models.TaskDraft,
				Type:            sub.Type,
				UserID:          userID,
				TelescopeID:     telescope.ID,
				SatelliteNumber: sub.SatelliteNumber,
				CreatedAt:       now,
				UpdatedAt:       now,
			},
		},
	}
	b.out.Task.ID = b.taskID

	switch p := sub.Payload.(type) {
	case *PointsPayload:
		b.points(p)
	case *TrackingPayload:
		b.tracking(ctx, telescope, p)
	}

	if sub.DurationMinutes != nil && *sub.DurationMinutes <= 0 {
		b.errs.Add("duration_minutes", fmt.Sprintf("must be positive, got %d", *sub.DurationMinutes))
	}
	if len(b.errs) > 0 {
		return nil, b.errs.Err()
	}

	b.stampWindow(sub.DurationMinutes)
	b.out.Input = inputData(b.taskID, sub, b.out)
	return b.out, nil
}

func (b *builder) points(p *PointsPayload) {
	if len(p.Points) == 0 {
		b.errs.Add("points", "at least one point is required")
	}

	commanded := len(p.Frames)
	for i, in := range p.Points {
		prefix := fmt.Sprintf("points[%d]", i)
		m := momentOf(in.DT)
		pointErrs := validation.Point(prefix, in.Alpha, in.Beta, in.CSType)
		pointErrs.Merge(validation.Moment(prefix, in.DT, m, b.now))

		combinedFrame := in.Mag != nil || in.Exposure != nil
		if combinedFrame {
			commanded++
			pointErrs.Merge(validation.Frame(prefix, in.Mag, in.Exposure))
		}
		b.adoptSatellite(&pointErrs, validation.Path(prefix, "satellite_id"), in.SatelliteNumber)

		b.errs.Merge(pointErrs)
		if len(pointErrs) > 0 {
			continue
		}

		dt := in.DT.UTC()
		b.win.observe(dt)
		b.out.Points = append(b.out.Points, models.Point{
			ID:     uuid.New(),
			TaskID: b.taskID,
			Alpha:  *in.Alpha,
			Beta:   *in.Beta,
			CSType: in.CSType,
			DT:     dt,
			JDN:    m.JDN,
			JD:     m.Fraction,
		})
		if combinedFrame {
			b.out.Frames = append(b.out.Frames, b.frame(dt, *m, *in.Mag, *in.Exposure))
		}
	}

	b.frames(p.Frames, nil)
	if commanded == 0 {
		b.errs.Add("frames", "at least one frame is required")
	}
}

func (b *builder) tracking(ctx context.Context, telescope *models.Telescope, p *TrackingPayload) {
	td := p.Tracking
	if td == nil {
		b.errs.Add("tracking_data", "is required")
		td = &TrackingInput{}
	} else {
		if td.Mag == nil {
			b.errs.Add("tracking_data.mag", "is required")
		}
		positive := func(field string, v *int) {
			switch {
			case v == nil:
				b.errs.Add(field, "is required")
			case *v <= 0:
				b.errs.Add(field, fmt.Sprintf("must be positive, got %d", *v))
			}
		}
		positive("tracking_data.step_sec", td.StepSec)
		positive("tracking_data.count", td.Count)
	}

	b.adoptSatellite(&b.errs, "tracking_data.satellite_id", td.SatelliteNumber)
	satellite := b.out.Task.SatelliteNumber

	if len(p.Frames) == 0 {
		b.errs.Add("frames", "at least one frame is required")
	}
	b.frames(p.Frames, td.Mag)

	for i, in := range p.TrackPoints {
		prefix := fmt.Sprintf("track_points[%d]", i)
		b.trackPoint(prefix, in.DT, in.Alpha, in.Beta)
	}

	tle := b.elementSet(ctx, p.TLE, td, satellite)
	b.out.TLE = tle
	if tle != nil && b.out.Task.SatelliteNumber == nil {
		b.out.Task.SatelliteNumber = tle.SatelliteNumber
	}

	if len(p.TrackPoints) == 0 {
		switch {
		case tle == nil:
			b.errs.Add("track_points", "at least one track point or an element set is required")
		case len(b.errs) == 0:
			b.synthesize(telescope, tle, *td.StepSec, *td.Count)
		}
	}

	if td.Mag != nil && td.StepSec != nil && td.Count != nil {
		b.out.Tracking = &models.TrackingData{
			TaskID:          b.taskID,
			SatelliteNumber: b.out.Task.SatelliteNumber,
			Mag:             *td.Mag,
			StepSec:         *td.StepSec,
			Count:           *td.Count,
		}
	}
}

// adoptSatellite records sat as the task's satellite, or reports field when
// it names a different one than already set.
func (b *builder) adoptSatellite(errs *validation.Errors, field string, sat *int) {
	switch cur := b.out.Task.SatelliteNumber; {
	case sat == nil:
	case cur == nil:
		b.out.Task.SatelliteNumber = sat
	case *cur != *sat:
		errs.Add(field, fmt.Sprintf("satellite %d conflicts with satellite_id %d", *sat, *cur))
	}
}

// elementSet resolves the element set of a tracking payload, either supplied
// inline or fetched from the configured source.
func (b *builder) elementSet(ctx context.Context, in *TLEInput, td *TrackingInput, satellite *int) *models.TLEData {
	if in != nil {
		errs := validation.TLE("tle", in.Header, in.Line1, in.Line2)
		if len(errs) > 0 {
			b.errs.Merge(errs)
			return nil
		}
		el, err := orbit.ParseTLE(in.Header, in.Line1, in.Line2)
		if err != nil {
			b.errs.Add("tle", err.Error())
			return nil
		}
		num := el.CatalogNumber
		if satellite != nil && num != *satellite {
			b.errs.Add("tle.line1", fmt.Sprintf("catalog number %d does not match satellite_id %d", num, *satellite))
			return nil
		}
		return &models.TLEData{
			ID:              uuid.New(),
			TaskID:          b.taskID,
			SatelliteNumber: &num,
			Header:          el.Header,
			Line1:           el.Line1,
			Line2:           el.Line2,
		}
	}

	if !td.FetchTLE {
		return nil
	}
	switch {
	case satellite == nil:
		b.errs.Add("tracking_data.satellite_id", "is required to fetch an element set")
		return nil
	case b.n.tle == nil:
		b.errs.Add("tracking_data.fetch_tle", "no element set source is configured")
		return nil
	}

	tle, err := b.n.tle.FetchTLE(ctx, *satellite)
	if err != nil {
		b.errs.Add("tracking_data.fetch_tle", fmt.Sprintf("fetching element set for %d: %v", *satellite, err))
		return nil
	}
	tle.ID = uuid.New()
	tle.TaskID = b.taskID
	return &tle
}

// synthesize samples the satellite's look angles from the telescope site
// every step seconds starting at the earliest frame.
func (b *builder) synthesize(telescope *models.Telescope, tle *models.TLEData, stepSec, count int) {
	el, err := orbit.ParseTLE(tle.Header, tle.Line1, tle.Line2)
	if err != nil {
		b.errs.Add("tle", err.Error())
		return
	}

	site := orbit.NewSite(telescope.Latitude, telescope.Longitude, telescope.Altitude)
	samples, err := el.Track(site, b.win.start, time.Duration(stepSec)*time.Second, count)
	if err != nil {
		b.errs.Add("track_points", err.Error())
		return
	}

	for i, s := range samples {
		dt := s.Time
		alpha, beta := s.Azimuth, s.Elevation
		b.trackPoint(fmt.Sprintf("track_points[%d]", i), &dt, &alpha, &beta)
	}
}

// trackPoint validates one track point in horizon coordinates and records it.
func (b *builder) trackPoint(prefix string, dt *time.Time, alpha, beta *float64) {
	m := momentOf(dt)
	errs := validation.Point(prefix, alpha, beta, models.CoordHorizon)
	errs.Merge(validation.Moment(prefix, dt, m, b.now))
	if len(errs) > 0 {
		b.errs.Merge(errs)
		return
	}

	t := dt.UTC()
	b.win.observe(t)
	b.out.TrackPoints = append(b.out.TrackPoints, models.TrackPoint{
		ID:     uuid.New(),
		TaskID: b.taskID,
		Alpha:  *alpha,
		Beta:   *beta,
		DT:     t,
		JDN:    m.JDN,
		JD:     m.Fraction,
	})
}

// frames validates explicit frames. sharedMag fills frames without their own
// magnitude.
func (b *builder) frames(in []FrameInput, sharedMag *float64) {
	for i, f := range in {
		prefix := fmt.Sprintf("frames[%d]", i)
		mag := f.Mag
		if mag == nil {
			mag = sharedMag
		}
		m := momentOf(f.DT)
		errs := validation.Frame(prefix, mag, f.Exposure)
		errs.Merge(validation.Moment(prefix, f.DT, m, b.now))
		if len(errs) > 0 {
			b.errs.Merge(errs)
			continue
		}

		dt := f.DT.UTC()
		b.win.observe(dt)
		b.out.Frames = append(b.out.Frames, b.frame(dt, *m, *mag, *f.Exposure))
	}
}

func (b *builder) frame(dt time.Time, m julian.Moment, mag, exposure float64) models.Frame {
	return models.Frame{
		ID:       uuid.New(),
		TaskID:   b.taskID,
		Mag:      mag,
		Exposure: exposure,
		DT:       dt,
		JDN:      m.JDN,
		JD:       m.Fraction,
	}
}

func (b *builder) stampWindow(duration *int) {
	start, end := b.win.start, b.win.end
	sm, em := julian.FromTime(start), julian.FromTime(end)
	startJD, endJD := sm.Float(), em.Float()
	jdn := sm.JDN

	t := &b.out.Task
	t.StartDT = &start
	t.EndDT = &end
	t.JDN = &jdn
	t.StartJD = &startJD
	t.EndJD = &endJD

	if duration != nil {
		t.DurationMinutes = *duration
	} else {
		t.DurationMinutes = WindowMinutes(start, end)
	}
}

// WindowMinutes is the observation cost of a window: whole minutes rounded
// up, at least one.
func WindowMinutes(start, end time.Time) int {
	m := int(math.Ceil(end.Sub(start).Minutes()))
	if m < 1 {
		return 1
	}
	return m
}

func inputData(taskID uuid.UUID, sub Submission, t *Task) models.InputData {
	in := models.InputData{
		TaskID:   taskID,
		DataType: models.InputJSON,
		DataJSON: sub.Raw,
	}
	if t.TLE != nil {
		in.DataTLE = t.TLE.Header + "\n" + t.TLE.Line1 + "\n" + t.TLE.Line2
		if p, ok := sub.Payload.(*TrackingPayload); ok && len(p.TrackPoints) == 0 {
			in.DataType = models.InputTLE
		}
	}
	if len(in.DataJSON) == 0 && in.DataTLE == "" {
		in.DataType = models.InputNone
	}
	return in
}
