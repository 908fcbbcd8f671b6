package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/streetview-harvester/internal/clock/system"
	"github.com/JakeFAU/streetview-harvester/internal/harvest"
	"github.com/JakeFAU/streetview-harvester/internal/report"
)

type fakeSource struct {
	counts harvest.Counts
	zones  []harvest.ZoneCount
	err    error
}

func (f *fakeSource) Counts(context.Context) (harvest.Counts, error) {
	return f.counts, f.err
}

func (f *fakeSource) ZoneCounts(context.Context) ([]harvest.ZoneCount, error) {
	return f.zones, f.err
}

func newTestServer(src *fakeSource) *Server {
	return NewServer(src, system.Fixed(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)), zap.NewNop())
}

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(&fakeSource{}), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(&fakeSource{}), "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, newTestServer(&fakeSource{err: errors.New("database is locked")}), "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "task store unavailable")
}

func TestServer_Progress(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		counts: harvest.Counts{TotalPoints: 10, UnsearchedPoints: 6, TotalPanoramas: 8, PanoramasWithMetadata: 2},
		zones:  []harvest.ZoneCount{{Zone: "East", Points: 10, Searched: 4}},
	}
	rec := serve(t, newTestServer(src), "/v1/progress")
	require.Equal(t, http.StatusOK, rec.Code)

	var got report.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, int64(4), got.SearchedPoints)
	require.InDelta(t, 2.0, got.PanoramasPerPoint, 1e-9)
	require.InDelta(t, 20.0, got.ProjectedPanoramas, 1e-9)
	require.Empty(t, got.Zones)
	require.Equal(t, 2024, got.GeneratedAt.Year())

	rec = serve(t, newTestServer(src), "/v1/progress/zones")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Zones, 1)
	require.InDelta(t, 0.4, got.Zones[0].Progress, 1e-9)
}

func TestServer_ProgressStoreError(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(&fakeSource{err: errors.New("boom")}), "/v1/progress")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(&fakeSource{}), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "# HELP")
}

func TestServer_RequestIDPropagates(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	s := NewServer(&fakeSource{}, system.Fixed{}, zap.New(core))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	require.Equal(t, "req-123", entries[0].ContextMap()["request_id"])
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	h := recoverMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newTestServer(&fakeSource{}).ListenAndServe(ctx, port) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}
}
