package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CoordinateSystem tells how a point's beta angle is measured.
type CoordinateSystem string

const (
	CoordHorizon CoordinateSystem = "horizon"
	CoordSky     CoordinateSystem = "sky"
)

// MaxBeta returns the upper bound of the beta angle in c, or ok=false for an
// unrecognized system.
func (c CoordinateSystem) MaxBeta() (max float64, ok bool) {
	switch c {
	case CoordHorizon:
		return 90, true
	case CoordSky:
		return 180, true
	}
	return 0, false
}

// Point is one commanded pointing instant of a points task.
type Point struct {
	ID     uuid.UUID        `db:"id"      json:"id"`
	TaskID uuid.UUID        `db:"task_id" json:"task_id"`
	Alpha  float64          `db:"alpha"   json:"alpha"`
	Beta   float64          `db:"beta"    json:"beta"`
	CSType CoordinateSystem `db:"cs_type" json:"cs_type"`
	DT     time.Time        `db:"dt"      json:"dt"`
	JDN    int              `db:"jdn"     json:"jdn"`
	JD     float64          `db:"jd"      json:"jd"`
}

// Frame is one commanded exposure.
type Frame struct {
	ID       uuid.UUID `db:"id"       json:"id"`
	TaskID   uuid.UUID `db:"task_id"  json:"task_id"`
	Mag      float64   `db:"mag"      json:"mag"`
	Exposure float64   `db:"exposure" json:"exposure"`
	DT       time.Time `db:"dt"       json:"dt"`
	JDN      int       `db:"jdn"      json:"jdn"`
	JD       float64   `db:"jd"       json:"jd"`
}

// TrackPoint is one sampled pointing of a tracking task.
type TrackPoint struct {
	ID     uuid.UUID `db:"id"      json:"id"`
	TaskID uuid.UUID `db:"task_id" json:"task_id"`
	Alpha  float64   `db:"alpha"   json:"alpha"`
	Beta   float64   `db:"beta"    json:"beta"`
	DT     time.Time `db:"dt"      json:"dt"`
	JDN    int       `db:"jdn"     json:"jdn"`
	JD     float64   `db:"jd"      json:"jd"`
}

// TrackingData holds the sweep parameters of a tracking task.
type TrackingData struct {
	TaskID          uuid.UUID `db:"task_id"          json:"task_id"`
	SatelliteNumber *int      `db:"satellite_number" json:"satellite_number,omitempty"`
	Mag             float64   `db:"mag"              json:"mag"`
	StepSec         int       `db:"step_sec"         json:"step_sec"`
	Count           int       `db:"count"            json:"count"`
}

// TLEData is a two-line element set attached to a task.
type TLEData struct {
	ID              uuid.UUID `db:"id"               json:"id"`
	TaskID          uuid.UUID `db:"task_id"          json:"task_id"`
	SatelliteNumber *int      `db:"satellite_number" json:"satellite_number,omitempty"`
	Header          string    `db:"header"           json:"header"`
	Line1           string    `db:"line1"            json:"line1"`
	Line2           string    `db:"line2"            json:"line2"`
}

// InputDataType tells which raw payload an InputData row carries.
type InputDataType string

const (
	InputNone InputDataType = "none"
	InputTLE  InputDataType = "tle"
	InputJSON InputDataType = "json"
)

// InputData is the raw submitted payload of a task, kept as received.
type InputData struct {
	TaskID   uuid.UUID       `db:"task_id"   json:"task_id"`
	DataType InputDataType   `db:"data_type" json:"data_type"`
	DataTLE  string          `db:"data_tle"  json:"data_tle,omitempty"`
	DataJSON json.RawMessage `db:"data_json" json:"data_json,omitempty"`
}
