package streetview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/JakeFAU/streetview-harvester/internal/harvest"
	"github.com/JakeFAU/streetview-harvester/internal/ratelimit"
	"go.uber.org/zap"
)

// ErrMalformedResponse reports a payload whose shape could not be decoded.
var ErrMalformedResponse = errors.New("malformed response")

const searchCallback = "callbackfunc"

var jsonpPattern = regexp.MustCompile(`(?s)` + searchCallback + `\(\s*(.*?)\s*\)\s*;?\s*$`)

// SearchClient implements harvest.PanoramaSearcher over the GeoPhoto
// single image search endpoint.
type SearchClient struct {
	cfg Config
	t   *transport
}

var _ harvest.PanoramaSearcher = (*SearchClient)(nil)

// NewSearchClient builds a SearchClient. hc may be nil.
func NewSearchClient(cfg Config, hc *http.Client, limiter *ratelimit.Limiter, logger *zap.Logger) *SearchClient {
	cfg = cfg.withDefaults()
	return &SearchClient{cfg: cfg, t: newTransport(cfg, hc, limiter, logger)}
}

// SearchURL returns the lookup URL for a coordinate.
func (c *SearchClient) SearchURL(lat, lon float64) string {
	return c.cfg.SearchEndpoint +
		"?pb=!1m5!1sapiv3!5sUS!11m2!1m1!1b0!2m4!1m2!3d" + formatCoord(lat) +
		"!4d" + formatCoord(lon) +
		"!2d" + strconv.Itoa(c.cfg.SearchRadius) +
		"!3m10!2m2!1sen!2sGB!9m1!1e2!11m4!1m3!1e2!2b1!3e2!4m10!1e1!1e2!1e3!1e4!1e8!1e6!5m1!1e2!6m1!1e2" +
		"&callback=" + searchCallback
}

// Search returns the panoramas near (lat, lon). An empty slice with a nil
// error means the service found none.
func (c *SearchClient) Search(ctx context.Context, lat, lon float64) ([]harvest.Panorama, error) {
	body, err := c.t.get(ctx, ServiceSearch, c.SearchURL(lat, lon))
	if err != nil {
		return nil, fmt.Errorf("search %s,%s: %w", formatCoord(lat), formatCoord(lon), err)
	}
	panos, err := ParseSearchResponse(body)
	if err != nil {
		return nil, fmt.Errorf("search %s,%s: %w", formatCoord(lat), formatCoord(lon), err)
	}
	return panos, nil
}

// ParseSearchResponse decodes a JSONP search payload.
//
// The payload is a deeply nested positional array. Panoramas sit at
// data[1][5][0][3][0] and capture dates at data[1][5][0][8]; both are listed
// oldest first and the dates only cover the trailing panoramas, so the two
// lists are reversed before pairing.
func ParseSearchResponse(body []byte) ([]harvest.Panorama, error) {
	m := jsonpPattern.FindSubmatch(bytes.TrimSpace(body))
	if m == nil {
		return nil, fmt.Errorf("%w: missing %s wrapper", ErrMalformedResponse, searchCallback)
	}
	var data []any
	if err := json.Unmarshal(m[1], &data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if noImages(data) {
		return []harvest.Panorama{}, nil
	}

	subset, ok := at(data, 1, 5, 0).([]any)
	if !ok {
		return nil, fmt.Errorf("%w: no result subset", ErrMalformedResponse)
	}
	rawPanos, ok := at(subset, 3, 0).([]any)
	if !ok {
		return nil, fmt.Errorf("%w: no panorama list", ErrMalformedResponse)
	}
	var rawDates []any
	if len(subset) >= 9 {
		rawDates, _ = subset[8].([]any)
	}

	dates := make([]string, 0, len(rawDates))
	for i := len(rawDates) - 1; i >= 0; i-- {
		year, okY := number(at(rawDates[i], 1, 0))
		month, okM := number(at(rawDates[i], 1, 1))
		if !okY || !okM {
			return nil, fmt.Errorf("%w: bad date entry %d", ErrMalformedResponse, i)
		}
		dates = append(dates, fmt.Sprintf("%d-%02d", int(year), int(month)))
	}

	panos := make([]harvest.Panorama, 0, len(rawPanos))
	for i := len(rawPanos) - 1; i >= 0; i-- {
		p, err := parsePano(rawPanos[i])
		if err != nil {
			return nil, err
		}
		if n := len(panos); n < len(dates) {
			p.Date = harvest.StringPtr(dates[n])
		}
		panos = append(panos, p)
	}
	return panos, nil
}

func parsePano(raw any) (harvest.Panorama, error) {
	id, ok := at(raw, 0, 1).(string)
	if !ok || id == "" {
		return harvest.Panorama{}, fmt.Errorf("%w: panorama without id", ErrMalformedResponse)
	}
	lat, okLat := number(at(raw, 2, 0, 2))
	lon, okLon := number(at(raw, 2, 0, 3))
	if !okLat || !okLon {
		return harvest.Panorama{}, fmt.Errorf("%w: panorama %s without location", ErrMalformedResponse, id)
	}
	orientation, _ := at(raw, 2, 2).([]any)
	p := harvest.Panorama{ID: id, Lat: lat, Lon: lon}
	if len(orientation) > 0 {
		p.Heading, _ = number(orientation[0])
	}
	if len(orientation) > 1 {
		p.Pitch, _ = number(orientation[1])
	}
	if len(orientation) > 2 {
		p.Roll, _ = number(orientation[2])
	}
	return p, nil
}

// noImages matches the service's [[5,"generic","Search returned no images."]] reply.
func noImages(data []any) bool {
	if len(data) != 1 {
		return false
	}
	inner, ok := data[0].([]any)
	if !ok || len(inner) != 3 {
		return false
	}
	code, _ := number(inner[0])
	kind, _ := inner[1].(string)
	return code == 5 && kind == "generic"
}

// at walks nested arrays by index and returns nil when any step is missing.
func at(v any, path ...int) any {
	for _, idx := range path {
		arr, ok := v.([]any)
		if !ok || idx < 0 || idx >= len(arr) {
			return nil
		}
		v = arr[idx]
	}
	return v
}

func number(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
