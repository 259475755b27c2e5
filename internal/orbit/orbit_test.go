package orbit

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ISS-like elements with an epoch of 2026-10-17 and valid checksums.
const (
	issHeader = "ISS (ZARYA)"
	issLine1  = "1 25544U 98067A   26290.50000000  .00016717  00000-0  10270-3 0  9001"
	issLine2  = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    01"
)

func TestChecksum(t *testing.T) {
	assert.Equal(t, 1, Checksum(issLine1))
	assert.Equal(t, 1, Checksum(issLine2))
	assert.Equal(t, 1, Checksum("-"))
	assert.Equal(t, 0, Checksum("ABC "))
}

func TestParseTLE(t *testing.T) {
	el, err := ParseTLE("  "+issHeader+"  ", issLine1, issLine2+"\r\n")
	require.NoError(t, err)

	assert.Equal(t, issHeader, el.Header)
	assert.Equal(t, 25544, el.CatalogNumber)
	assert.Equal(t, issLine2, el.Line2)
}

func TestParseTLE_Invalid(t *testing.T) {
	tests := []struct {
		name         string
		line1, line2 string
	}{
		{"short line1", issLine1[:60], issLine2},
		{"swapped lines", issLine2, issLine1},
		{"bad checksum", issLine1[:68] + "7", issLine2},
		{"non-digit checksum", issLine1[:68] + "X", issLine2},
		{"catalog mismatch", issLine1, "2 25545" + issLine2[7:68] + "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTLE(issHeader, tt.line1, tt.line2)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTLE), "expected ErrInvalidTLE, got %v", err)
		})
	}
}

func TestNewSite_Equator(t *testing.T) {
	s := NewSite(0, 0, 0)
	assert.InDelta(t, wgs84A, s.x, 1e-6)
	assert.InDelta(t, 0, s.y, 1e-6)
	assert.InDelta(t, 0, s.z, 1e-6)
}

func TestSiteLook_Zenith(t *testing.T) {
	s := NewSite(0, 0, 0)
	l := s.look(wgs84A+500_000, 0, 0)

	assert.InDelta(t, 90, l.Elevation, 1e-9)
	assert.InDelta(t, 500, l.RangeKm, 1e-9)
}

func TestSiteLook_Cardinal(t *testing.T) {
	s := NewSite(0, 0, 0)

	north := s.look(wgs84A, 0, 1_000_000)
	assert.InDelta(t, 0, north.Azimuth, 1e-9)
	assert.InDelta(t, 0, north.Elevation, 1e-9)

	east := s.look(wgs84A, 1_000_000, 0)
	assert.InDelta(t, 90, east.Azimuth, 1e-9)

	west := s.look(wgs84A, -1_000_000, 0)
	assert.InDelta(t, 270, west.Azimuth, 1e-9)
}

func TestLookAngles_NearEpoch(t *testing.T) {
	el, err := ParseTLE(issHeader, issLine1, issLine2)
	require.NoError(t, err)

	site := NewSite(55.75, 37.62, 150)
	l, err := el.LookAngles(site, time.Date(2026, 10, 17, 13, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, l.Azimuth, 0.0)
	assert.Less(t, l.Azimuth, 360.0)
	assert.GreaterOrEqual(t, l.Elevation, -90.0)
	assert.LessOrEqual(t, l.Elevation, 90.0)
	// Low earth orbit: never closer than its altitude, never farther than the earth's far side.
	assert.Greater(t, l.RangeKm, 350.0)
	assert.Less(t, l.RangeKm, 14000.0)
}

func TestTrack(t *testing.T) {
	el, err := ParseTLE(issHeader, issLine1, issLine2)
	require.NoError(t, err)

	start := time.Date(2026, 10, 17, 20, 0, 0, 250_000, time.UTC)
	samples, err := el.Track(NewSite(48.85, 2.35, 35), start, 10*time.Second, 6)
	require.NoError(t, err)
	require.Len(t, samples, 6)

	assert.Equal(t, start.Truncate(time.Second), samples[0].Time)
	for i := 1; i < len(samples); i++ {
		assert.Equal(t, 10*time.Second, samples[i].Time.Sub(samples[i-1].Time))
		// Orbital speed bounds the per-step range change.
		assert.Less(t, math.Abs(samples[i].RangeKm-samples[i-1].RangeKm), 100.0)
	}
}

func TestTrack_RejectsBadParameters(t *testing.T) {
	el, err := ParseTLE(issHeader, issLine1, issLine2)
	require.NoError(t, err)

	_, err = el.Track(NewSite(0, 0, 0), time.Now(), time.Second, 0)
	assert.Error(t, err)
	_, err = el.Track(NewSite(0, 0, 0), time.Now(), 0, 3)
	assert.Error(t, err)
}

// At its epoch the satellite sits on its ascending node (right ascension 100°),
// which at 2026-10-17 12:00 UTC is over longitude -106° on the equator.
func TestLookAngles_OverheadAtEpoch(t *testing.T) {
	el, err := ParseTLE(issHeader, issLine1, issLine2)
	require.NoError(t, err)

	epoch := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	overhead, err := el.LookAngles(NewSite(0, -106.006, 0), epoch)
	require.NoError(t, err)
	assert.Greater(t, overhead.Elevation, 80.0)
	assert.InDelta(t, 416, overhead.RangeKm, 30)

	antipode, err := el.LookAngles(NewSite(0, 73.994, 0), epoch)
	require.NoError(t, err)
	assert.Less(t, antipode.Elevation, -80.0)
}
