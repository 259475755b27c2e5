// Package orbit turns two-line element sets into topocentric pointing for a
// telescope site using the SGP4 model from go-satellite.
package orbit

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

var (
	// ErrInvalidTLE is returned when element lines fail format or checksum checks.
	ErrInvalidTLE = errors.New("invalid TLE")
	// ErrPropagation is returned when SGP4 produces an unusable state vector.
	ErrPropagation = errors.New("sgp4 propagation failed")
)

// WGS-84 ellipsoid.
const (
	wgs84A  = 6378137.0
	wgs84F  = 1.0 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)

	kmToM   = 1000.0
	lineLen = 69
)

// Elements is a parsed, SGP4-initialized element set.
type Elements struct {
	Header        string
	Line1         string
	Line2         string
	CatalogNumber int

	sat satellite.Satellite
}

// Site is an observer on the WGS-84 ellipsoid with its ECEF position precomputed.
type Site struct {
	latRad, lonRad float64
	x, y, z        float64 // meters
}

// Look is the direction from a site to a satellite.
type Look struct {
	Azimuth   float64 // degrees, 0 = north, clockwise
	Elevation float64 // degrees above the horizon
	RangeKm   float64
}

// Sample is one point of a sampled track.
type Sample struct {
	Time time.Time
	Look
}

// Checksum computes the modulo-10 TLE checksum over the first 68 characters
// of line: digits count their value, minus signs count one.
func Checksum(line string) int {
	sum := 0
	for i := 0; i < len(line) && i < lineLen-1; i++ {
		c := line[i]
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

// ValidateLine checks the length, line number prefix and checksum digit of a
// single element line. n is 1 or 2.
func ValidateLine(line string, n int) error {
	if len(line) != lineLen {
		return fmt.Errorf("line%d length %d, expected %d", n, len(line), lineLen)
	}
	if !strings.HasPrefix(line, strconv.Itoa(n)+" ") {
		return fmt.Errorf("line%d must start with %q", n, strconv.Itoa(n)+" ")
	}
	last := line[lineLen-1]
	if last < '0' || last > '9' {
		return fmt.Errorf("line%d checksum %q is not a digit", n, last)
	}
	if want := Checksum(line); int(last-'0') != want {
		return fmt.Errorf("line%d checksum %c, computed %d", n, last, want)
	}
	return nil
}

// ParseTLE validates the element lines and initializes the SGP4 model.
// Lines are checked before go-satellite sees them since it exits the process
// on malformed input.
func ParseTLE(header, line1, line2 string) (*Elements, error) {
	line1 = strings.TrimRight(line1, "\r\n ")
	line2 = strings.TrimRight(line2, "\r\n ")

	if err := ValidateLine(line1, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTLE, err)
	}
	if err := ValidateLine(line2, 2); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTLE, err)
	}

	num1, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return nil, fmt.Errorf("%w: catalog number %q", ErrInvalidTLE, line1[2:7])
	}
	num2, err := strconv.Atoi(strings.TrimSpace(line2[2:7]))
	if err != nil || num1 != num2 {
		return nil, fmt.Errorf("%w: catalog numbers of line1 and line2 differ", ErrInvalidTLE)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	if sat.Error != 0 {
		return nil, fmt.Errorf("%w: sgp4 init code=%d %s", ErrInvalidTLE, sat.Error, sat.ErrorStr)
	}

	return &Elements{
		Header:        strings.TrimSpace(header),
		Line1:         line1,
		Line2:         line2,
		CatalogNumber: num1,
		sat:           sat,
	}, nil
}

// NewSite builds a Site from geodetic latitude and longitude in degrees and
// altitude in meters above the ellipsoid.
func NewSite(latDeg, lonDeg, altM float64) Site {
	lat := latDeg * math.Pi / 180
	lon := lonDeg * math.Pi / 180
	sinLat, cosLat := math.Sin(lat), math.Cos(lat)

	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	return Site{
		latRad: lat,
		lonRad: lon,
		x:      (n + altM) * cosLat * math.Cos(lon),
		y:      (n + altM) * cosLat * math.Sin(lon),
		z:      (n*(1-wgs84E2) + altM) * sinLat,
	}
}

// LookAngles propagates e to t (whole seconds, UTC) and returns the direction
// from site to the satellite.
func (e *Elements) LookAngles(site Site, t time.Time) (Look, error) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	pos, _ := satellite.Propagate(e.sat, year, int(month), day, hour, min, sec)
	if err := checkPosition(pos); err != nil {
		return Look{}, fmt.Errorf("catalog %d at %s: %w", e.CatalogNumber, t.Format(time.RFC3339), err)
	}

	gmst := satellite.ThetaG_JD(satellite.JDay(year, int(month), day, hour, min, sec))
	ecef := satellite.ECIToECEF(pos, gmst)
	return site.look(ecef.X*kmToM, ecef.Y*kmToM, ecef.Z*kmToM), nil
}

// Track samples count look angles every step starting at start.
func (e *Elements) Track(site Site, start time.Time, step time.Duration, count int) ([]Sample, error) {
	if count <= 0 {
		return nil, fmt.Errorf("track count must be positive, got %d", count)
	}
	if step <= 0 {
		return nil, fmt.Errorf("track step must be positive, got %s", step)
	}

	start = start.UTC().Truncate(time.Second)
	samples := make([]Sample, 0, count)
	for i := 0; i < count; i++ {
		t := start.Add(time.Duration(i) * step)
		look, err := e.LookAngles(site, t)
		if err != nil {
			return nil, err
		}
		samples = append(samples, Sample{Time: t, Look: look})
	}
	return samples, nil
}

func checkPosition(pos satellite.Vector3) error {
	for _, v := range []float64{pos.X, pos.Y, pos.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: output is NaN/Inf", ErrPropagation)
		}
	}
	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	if mag < 6200 || mag > 50000 {
		return fmt.Errorf("%w: position magnitude %.1f km", ErrPropagation, mag)
	}
	return nil
}

// look rotates the site-to-satellite vector into the south-east-zenith frame.
func (s Site) look(x, y, z float64) Look {
	rx, ry, rz := x-s.x, y-s.y, z-s.z

	sinLat, cosLat := math.Sin(s.latRad), math.Cos(s.latRad)
	sinLon, cosLon := math.Sin(s.lonRad), math.Cos(s.lonRad)

	south := sinLat*cosLon*rx + sinLat*sinLon*ry - cosLat*rz
	east := -sinLon*rx + cosLon*ry
	zenith := cosLat*cosLon*rx + cosLat*sinLon*ry + sinLat*rz
	rng := math.Sqrt(south*south + east*east + zenith*zenith)

	az := math.Atan2(east, -south)
	if az < 0 {
		az += 2 * math.Pi
	}
	return Look{
		Azimuth:   az * 180 / math.Pi,
		Elevation: math.Asin(zenith/rng) * 180 / math.Pi,
		RangeKm:   rng / kmToM,
	}
}
