// Package julian converts civil UTC timestamps to Julian Day Numbers and
// day fractions counted from the astronomical (noon) day boundary.
package julian

import (
	"math"
	"time"
)

const microsPerDay = 86_400_000_000

// Moment is an observation instant expressed as a Julian Day Number plus the
// fraction of that Julian day elapsed since noon UTC. Fraction is always in [0,1).
type Moment struct {
	JDN      int     `json:"jdn"`
	Fraction float64 `json:"jd"`
}

// DayNumber returns the Julian Day Number of a Gregorian calendar date
// (the Julian day that begins at noon of that date).
func DayNumber(year, month, day int) int {
	a := (month - 14) / 12
	return (1461*(year+4800+a))/4 +
		(367*(month-2-12*a))/12 -
		(3*((year+4900+a)/100))/4 +
		day - 32075
}

// CivilDate returns the Gregorian calendar date whose noon starts Julian day jdn.
func CivilDate(jdn int) (year int, month time.Month, day int) {
	f := jdn + 1401 + (((4*jdn+274277)/146097)*3)/4 - 38
	e := 4*f + 3
	g := (e % 1461) / 4
	h := 5*g + 2
	d := (h%153)/5 + 1
	m := (h/153+2)%12 + 1
	y := e/1461 - 4716 + (14-m)/12
	return y, time.Month(m), d
}

// FromTime converts t to a Moment. The raw day fraction
// (hour-12)/24 + minute/1440 + second/86400 + µs/86_400_000_000 is negative
// before noon; such values are shifted into [0,1) by borrowing one day from
// the day number, so JDN+Fraction is always the true Julian date.
func FromTime(t time.Time) Moment {
	t = t.UTC()
	jdn := DayNumber(t.Year(), int(t.Month()), t.Day())
	frac := float64(t.Hour()-12)/24 +
		float64(t.Minute())/1440 +
		float64(t.Second())/86400 +
		float64(t.Nanosecond()/1000)/microsPerDay

	if frac < 0 {
		frac++
		jdn--
	}
	if frac >= 1 {
		frac--
		jdn++
	}
	return Moment{JDN: jdn, Fraction: frac}
}

// Time reconstructs the UTC instant of m, rounded to the microsecond.
func (m Moment) Time() time.Time {
	y, mo, d := CivilDate(m.JDN)
	noon := time.Date(y, mo, d, 12, 0, 0, 0, time.UTC)
	micros := math.Round(m.Fraction * microsPerDay)
	return noon.Add(time.Duration(micros) * time.Microsecond)
}

// Float returns the combined Julian date. It loses sub-millisecond precision
// for contemporary dates and is meant for display and telescope plans only.
func (m Moment) Float() float64 {
	return float64(m.JDN) + m.Fraction
}

// Compare orders moments by day number, then by fraction.
// It returns -1, 0 or +1.
func (m Moment) Compare(other Moment) int {
	switch {
	case m.JDN < other.JDN:
		return -1
	case m.JDN > other.JDN:
		return 1
	case m.Fraction < other.Fraction:
		return -1
	case m.Fraction > other.Fraction:
		return 1
	}
	return 0
}
