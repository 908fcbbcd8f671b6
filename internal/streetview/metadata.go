package streetview

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/JakeFAU/streetview-harvester/internal/harvest"
	"github.com/JakeFAU/streetview-harvester/internal/ratelimit"
	"go.uber.org/zap"
)

// Metadata API statuses.
const (
	StatusOK          = "OK"
	StatusZeroResults = "ZERO_RESULTS"
	StatusNotFound    = "NOT_FOUND"
)

// APIError carries a non-OK metadata status.
type APIError struct {
	Status  string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "metadata status " + e.Status
	}
	return fmt.Sprintf("metadata status %s: %s", e.Status, e.Message)
}

type metadataResponse struct {
	Status       string `json:"status"`
	Date         string `json:"date"`
	Copyright    string `json:"copyright"`
	PanoID       string `json:"pano_id"`
	ErrorMessage string `json:"error_message"`
}

// MetadataClient implements harvest.MetadataFetcher over the Street View
// metadata endpoint.
type MetadataClient struct {
	cfg Config
	t   *transport
}

var _ harvest.MetadataFetcher = (*MetadataClient)(nil)

// NewMetadataClient builds a MetadataClient. cfg.APIKey must be set.
func NewMetadataClient(cfg Config, hc *http.Client, limiter *ratelimit.Limiter, logger *zap.Logger) *MetadataClient {
	cfg = cfg.withDefaults()
	return &MetadataClient{cfg: cfg, t: newTransport(cfg, hc, limiter, logger)}
}

func (c *MetadataClient) metadataURL(panoID string) string {
	q := url.Values{}
	q.Set("pano", panoID)
	q.Set("key", c.cfg.APIKey)
	return c.cfg.MetadataEndpoint + "?" + q.Encode()
}

// Metadata returns the capture date and copyright for panoID. Panoramas the
// service does not know yield an empty Metadata and no error.
func (c *MetadataClient) Metadata(ctx context.Context, panoID string) (harvest.Metadata, error) {
	body, err := c.t.get(ctx, ServiceMetadata, c.metadataURL(panoID))
	if err != nil {
		return harvest.Metadata{}, fmt.Errorf("metadata %s: %w", panoID, err)
	}
	var resp metadataResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return harvest.Metadata{}, fmt.Errorf("metadata %s: %w: %w", panoID, ErrMalformedResponse, err)
	}
	switch resp.Status {
	case StatusOK:
		return harvest.Metadata{
			Date:      harvest.StringPtr(resp.Date),
			Copyright: harvest.StringPtr(resp.Copyright),
		}, nil
	case StatusZeroResults, StatusNotFound:
		return harvest.Metadata{}, nil
	default:
		return harvest.Metadata{}, fmt.Errorf("metadata %s: %w", panoID, &APIError{Status: resp.Status, Message: resp.ErrorMessage})
	}
}
