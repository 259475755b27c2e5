package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/chronos/internal/validation"
	"github.com/kiranshivaraju/chronos/pkg/models"
)

// Submission is a decoded task submission. Payload is a *PointsPayload or a
// *TrackingPayload according to Type.
type Submission struct {
	TelescopeID     uuid.UUID
	Type            models.TaskType
	SatelliteNumber *int
	DurationMinutes *int
	Payload         Payload

	// Raw is the payload exactly as received.
	Raw json.RawMessage
}

// Payload is the type-specific part of a submission.
type Payload interface {
	TaskType() models.TaskType
}

// PointsPayload lists commanded pointings. A point carrying mag or exposure
// also commands a frame at its instant.
type PointsPayload struct {
	Points []PointInput `json:"points"`
	Frames []FrameInput `json:"frames"`
}

func (*PointsPayload) TaskType() models.TaskType { return models.TaskPoints }

// PointInput is one entry of a points payload.
type PointInput struct {
	DT              *time.Time              `json:"dt"`
	Alpha           *float64                `json:"alpha"`
	Beta            *float64                `json:"beta"`
	CSType          models.CoordinateSystem `json:"cs_type"`
	SatelliteNumber *int                    `json:"satellite_id,omitempty"`
	Mag             *float64                `json:"mag,omitempty"`
	Exposure        *float64                `json:"exposure,omitempty"`
}

// FrameInput is one commanded exposure.
type FrameInput struct {
	DT       *time.Time `json:"dt"`
	Mag      *float64   `json:"mag,omitempty"`
	Exposure *float64   `json:"exposure"`
}

// TrackingPayload describes a satellite sweep. Track points may be given
// explicitly or derived from an element set.
type TrackingPayload struct {
	Tracking    *TrackingInput    `json:"tracking_data"`
	TLE         *TLEInput         `json:"tle,omitempty"`
	TrackPoints []TrackPointInput `json:"track_points"`
	Frames      []FrameInput      `json:"frames"`
}

func (*TrackingPayload) TaskType() models.TaskType { return models.TaskTracking }

// TrackingInput holds the sweep parameters.
type TrackingInput struct {
	SatelliteNumber *int     `json:"satellite_id"`
	Mag             *float64 `json:"mag"`
	StepSec         *int     `json:"step_sec"`
	Count           *int     `json:"count"`
	// FetchTLE asks for the current published element set of SatelliteNumber.
	FetchTLE bool `json:"fetch_tle,omitempty"`
}

// TLEInput is an element set supplied with the submission.
type TLEInput struct {
	Header string `json:"header"`
	Line1  string `json:"line1"`
	Line2  string `json:"line2"`
}

// TrackPointInput is one explicit pointing of a tracking payload.
type TrackPointInput struct {
	DT    *time.Time `json:"dt"`
	Alpha *float64   `json:"alpha"`
	Beta  *float64   `json:"beta"`
}

type envelope struct {
	TelescopeID     *uuid.UUID      `json:"telescope_id"`
	Type            models.TaskType `json:"task_type"`
	SatelliteNumber *int            `json:"satellite_id"`
	DurationMinutes *int            `json:"duration_minutes"`
	Payload         json.RawMessage `json:"payload"`
}

// DecodeSubmission parses a submission body and dispatches its payload on
// task_type. Malformed input is reported as a *validation.Error.
func DecodeSubmission(body []byte) (Submission, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Submission{}, decodeError("", err).Err()
	}

	var errs validation.Errors
	if env.TelescopeID == nil {
		errs.Add("telescope_id", "is required")
	}
	switch {
	case env.Type == "":
		errs.Add("task_type", "is required")
	case !env.Type.Valid():
		errs.Add("task_type", fmt.Sprintf("must be %q or %q, got %q", models.TaskPoints, models.TaskTracking, env.Type))
	}
	if len(bytes.TrimSpace(env.Payload)) == 0 || bytes.Equal(bytes.TrimSpace(env.Payload), []byte("null")) {
		errs.Add("payload", "is required")
	}
	if len(errs) > 0 {
		return Submission{}, errs.Err()
	}

	var payload Payload
	switch env.Type {
	case models.TaskPoints:
		payload = &PointsPayload{}
	case models.TaskTracking:
		payload = &TrackingPayload{}
	}
	if err := json.Unmarshal(env.Payload, payload); err != nil {
		return Submission{}, decodeError("payload", err).Err()
	}

	return Submission{
		TelescopeID:     *env.TelescopeID,
		Type:            env.Type,
		SatelliteNumber: env.SatelliteNumber,
		DurationMinutes: env.DurationMinutes,
		Payload:         payload,
		Raw:             env.Payload,
	}, nil
}

func decodeError(prefix string, err error) validation.Errors {
	var errs validation.Errors

	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	var timeErr *time.ParseError
	switch {
	case errors.As(err, &typeErr) && typeErr.Field != "":
		errs.Add(validation.Path(prefix, typeErr.Field), fmt.Sprintf("must be a %s", typeErr.Type))
	case errors.As(err, &syntaxErr):
		errs.Add("body", fmt.Sprintf("invalid JSON at offset %d", syntaxErr.Offset))
	case errors.As(err, &timeErr):
		errs.Add(validation.Path(prefix, "dt"), "must be an RFC 3339 timestamp")
	default:
		field := prefix
		if field == "" {
			field = "body"
		}
		errs.Add(field, err.Error())
	}
	return errs
}
