// Package validation checks candidate points, frames, moments and element
// sets and reports every problem as an ordered list of field errors.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/chronos/internal/orbit"
	"github.com/kiranshivaraju/chronos/pkg/julian"
	"github.com/kiranshivaraju/chronos/pkg/models"
)

// ErrInvalid is wrapped by every *Error.
var ErrInvalid = errors.New("validation failed")

const (
	maxTLEHeader = 25
	maxTLELine   = 70
)

// FieldError is one problem with one input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is an ordered collection of field errors. The zero value is empty
// and ready to use.
type Errors []FieldError

// Add appends a field error.
func (e *Errors) Add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

// Merge appends all of other to e.
func (e *Errors) Merge(other Errors) {
	*e = append(*e, other...)
}

// Has reports whether any error is recorded for field. A bare name such as
// "beta" also matches nested paths like "points[0].beta".
func (e Errors) Has(field string) bool {
	for _, fe := range e {
		if fe.Field == field || strings.HasSuffix(fe.Field, "."+field) {
			return true
		}
	}
	return false
}

// Err returns nil for an empty list and an *Error otherwise.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return &Error{Fields: e}
}

// Error carries the field errors of a rejected input.
type Error struct {
	Fields Errors
}

func (e *Error) Error() string {
	if len(e.Fields) == 1 {
		return fmt.Sprintf("%s: %s", e.Fields[0].Field, e.Fields[0].Message)
	}
	return fmt.Sprintf("%d invalid fields, first %s: %s", len(e.Fields), e.Fields[0].Field, e.Fields[0].Message)
}

func (e *Error) Unwrap() error { return ErrInvalid }

// Fields extracts the field errors from err, if it carries any.
func Fields(err error) Errors {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}

// Path joins a prefix and a field name into a dotted field path.
func Path(prefix, field string) string {
	if prefix == "" {
		return field
	}
	return prefix + "." + field
}

// Point checks a pointing direction. Alpha must lie in [0,360); beta in
// [0,90] for horizon coordinates or [0,180] for sky coordinates.
func Point(prefix string, alpha, beta *float64, cs models.CoordinateSystem) Errors {
	var errs Errors

	if alpha == nil {
		errs.Add(Path(prefix, "alpha"), "is required")
	} else if *alpha < 0 || *alpha >= 360 {
		errs.Add(Path(prefix, "alpha"), fmt.Sprintf("must be in [0, 360), got %g", *alpha))
	}

	maxBeta, known := cs.MaxBeta()
	switch {
	case cs == "":
		errs.Add(Path(prefix, "cs_type"), "is required")
	case !known:
		errs.Add(Path(prefix, "cs_type"), fmt.Sprintf("must be %q or %q, got %q", models.CoordHorizon, models.CoordSky, cs))
	}

	if beta == nil {
		errs.Add(Path(prefix, "beta"), "is required")
	} else if known && (*beta < 0 || *beta > maxBeta) {
		errs.Add(Path(prefix, "beta"), fmt.Sprintf("must be in [0, %g] for %s coordinates, got %g", maxBeta, cs, *beta))
	}

	return errs
}

// Moment checks an observation instant: dt must be strictly after now and the
// Julian fraction must lie in [0,1).
func Moment(prefix string, dt *time.Time, m *julian.Moment, now time.Time) Errors {
	var errs Errors

	if dt == nil {
		errs.Add(Path(prefix, "dt"), "is required")
	} else if !dt.After(now) {
		errs.Add(Path(prefix, "dt"), fmt.Sprintf("must be in the future, got %s", dt.UTC().Format(time.RFC3339)))
	}

	if m == nil {
		if dt != nil {
			errs.Add(Path(prefix, "jd"), "is required")
		}
		return errs
	}
	if m.JDN <= 0 {
		errs.Add(Path(prefix, "jdn"), fmt.Sprintf("must be positive, got %d", m.JDN))
	}
	if m.Fraction < 0 || m.Fraction >= 1 {
		errs.Add(Path(prefix, "jd"), fmt.Sprintf("must be in [0, 1), got %g", m.Fraction))
	}
	return errs
}

// Frame checks an exposure. Exposure must be strictly positive.
func Frame(prefix string, mag, exposure *float64) Errors {
	var errs Errors

	if mag == nil {
		errs.Add(Path(prefix, "mag"), "is required")
	}
	if exposure == nil {
		errs.Add(Path(prefix, "exposure"), "is required")
	} else if *exposure <= 0 {
		errs.Add(Path(prefix, "exposure"), fmt.Sprintf("must be positive, got %g", *exposure))
	}
	return errs
}

// TLE checks field lengths, line prefixes and checksum digits of an element set.
func TLE(prefix, header, line1, line2 string) Errors {
	var errs Errors

	if len(header) > maxTLEHeader {
		errs.Add(Path(prefix, "header"), fmt.Sprintf("must be at most %d characters", maxTLEHeader))
	}
	for i, line := range []string{line1, line2} {
		field := Path(prefix, fmt.Sprintf("line%d", i+1))
		switch {
		case line == "":
			errs.Add(field, "is required")
		case len(line) > maxTLELine:
			errs.Add(field, fmt.Sprintf("must be at most %d characters", maxTLELine))
		default:
			if err := orbit.ValidateLine(strings.TrimRight(line, " "), i+1); err != nil {
				errs.Add(field, err.Error())
			}
		}
	}
	return errs
}
