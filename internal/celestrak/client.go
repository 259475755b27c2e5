// Package celestrak fetches published two-line element sets.
package celestrak

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/chronos/internal/cache"
	"github.com/kiranshivaraju/chronos/internal/metrics"
	"github.com/kiranshivaraju/chronos/internal/orbit"
	"github.com/kiranshivaraju/chronos/pkg/models"
)

// Sentinel errors for element set lookups.
var (
	ErrUnreachable     = errors.New("celestrak unreachable")
	ErrNotFound        = errors.New("no element set published")
	ErrTimeout         = errors.New("celestrak request timeout")
	ErrInvalidResponse = errors.New("celestrak returned an invalid element set")
)

const maxHeader = 25

// Source looks up the current element set of a catalogued satellite.
type Source interface {
	FetchTLE(ctx context.Context, catalogNumber int) (models.TLEData, error)
}

// HTTPClient implements Source using the CelesTrak GP query API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a new CelesTrak HTTP client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) FetchTLE(ctx context.Context, catalogNumber int) (models.TLEData, error) {
	params := url.Values{
		"CATNR":  {strconv.Itoa(catalogNumber)},
		"FORMAT": {"TLE"},
	}
	u := fmt.Sprintf("%s/NORAD/elements/gp.php?%s", c.baseURL, params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.TLEData{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Accept", "text/plain")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		metrics.RecordTLEFetch("remote", "error")
		return models.TLEData{}, classifyError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		metrics.RecordTLEFetch("remote", "not_found")
		return models.TLEData{}, fmt.Errorf("%w: catalog number %d", ErrNotFound, catalogNumber)
	case resp.StatusCode != http.StatusOK:
		metrics.RecordTLEFetch("remote", "error")
		return models.TLEData{}, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	tle, err := parseTLE(io.LimitReader(resp.Body, 4096), catalogNumber)
	if err != nil {
		outcome := "invalid"
		if errors.Is(err, ErrNotFound) {
			outcome = "not_found"
		}
		metrics.RecordTLEFetch("remote", outcome)
		return models.TLEData{}, err
	}
	metrics.RecordTLEFetch("remote", "ok")
	return tle, nil
}

// parseTLE reads a three-line element set. CelesTrak answers unknown
// catalog numbers with 200 and a "No GP data found" body.
func parseTLE(r io.Reader, catalogNumber int) (models.TLEData, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), " \r"); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return models.TLEData{}, fmt.Errorf("reading celestrak response: %w", err)
	}

	if len(lines) == 0 || strings.Contains(strings.ToLower(lines[0]), "no gp data found") {
		return models.TLEData{}, fmt.Errorf("%w: catalog number %d", ErrNotFound, catalogNumber)
	}
	if len(lines) < 3 {
		return models.TLEData{}, fmt.Errorf("%w: expected 3 lines, got %d", ErrInvalidResponse, len(lines))
	}

	header := strings.TrimSpace(lines[0])
	if len(header) > maxHeader {
		header = strings.TrimSpace(header[:maxHeader])
	}
	el, err := orbit.ParseTLE(header, lines[1], lines[2])
	if err != nil {
		return models.TLEData{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if el.CatalogNumber != catalogNumber {
		return models.TLEData{}, fmt.Errorf("%w: asked for %d, got %d", ErrInvalidResponse, catalogNumber, el.CatalogNumber)
	}

	return models.TLEData{
		SatelliteNumber: &catalogNumber,
		Header:          el.Header,
		Line1:           el.Line1,
		Line2:           el.Line2,
	}, nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// Cached serves element sets from the cache and falls back to src on a miss.
type Cached struct {
	src   Source
	cache cache.Cache
	ttl   time.Duration
}

func NewCached(src Source, c cache.Cache, ttl time.Duration) *Cached {
	return &Cached{src: src, cache: c, ttl: ttl}
}

func (c *Cached) FetchTLE(ctx context.Context, catalogNumber int) (models.TLEData, error) {
	key := cache.TLEKey(catalogNumber)

	tle, found, err := cache.GetJSON[models.TLEData](ctx, c.cache, key)
	if err != nil {
		slog.Warn("tle cache read failed", "key", key, "error", err)
	}
	if found {
		metrics.RecordTLEFetch("cache", "hit")
		return tle, nil
	}
	metrics.RecordTLEFetch("cache", "miss")

	tle, err = c.src.FetchTLE(ctx, catalogNumber)
	if err != nil {
		return models.TLEData{}, err
	}
	if err := cache.SetJSON(ctx, c.cache, key, tle, c.ttl); err != nil {
		slog.Warn("tle cache write failed", "key", key, "error", err)
	}
	return tle, nil
}
