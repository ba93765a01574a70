package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/obscan/internal/application"
	"github.com/sawpanic/obscan/internal/domain"
	"github.com/sawpanic/obscan/internal/metrics"
	"github.com/sawpanic/obscan/internal/report"
	"github.com/sawpanic/obscan/internal/scanner"
)

type fakeRunner struct {
	res      *application.Result
	err      error
	deadline bool
}

func (f *fakeRunner) Run(ctx context.Context) (*application.Result, error) {
	_, f.deadline = ctx.Deadline()
	return f.res, f.err
}

func newTestServer(t *testing.T, runner ScanRunner, m *metrics.Registry) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(DefaultServerConfig(), runner, m).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{}, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Len(t, resp.Header.Get("X-Request-ID"), 8)

	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
}

func TestRequestIDPropagated(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{}, nil)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "abc123", resp.Header.Get("X-Request-ID"))
}

func TestScan(t *testing.T) {
	ratio := 4.0
	res := &application.Result{
		StartedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Stats:     scanner.Stats{Candidates: 3, Alerted: 1},
		Report: &report.Report{
			ScanID: "scan-1",
			Alerts: []domain.AlertRecord{{Symbol: "foo", InReferenceB: true, ImbalanceRatio: &ratio}},
		},
		Delivered: true,
	}

	tests := []struct {
		name       string
		runner     *fakeRunner
		wantStatus int
		wantCode   string
	}{
		{"ok", &fakeRunner{res: res}, http.StatusOK, ""},
		{"busy", &fakeRunner{err: application.ErrScanInProgress}, http.StatusConflict, "scan_in_progress"},
		{"universe failure", &fakeRunner{err: errors.New("universe: boom")}, http.StatusServiceUnavailable, "scan_failed"},
		{"delivery failure", &fakeRunner{res: res, err: errors.New("deliver: telegram")}, http.StatusBadGateway, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.runner, nil)

			resp, err := http.Post(srv.URL+"/scan", "application/json", nil)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.True(t, tt.runner.deadline, "scan context should carry a deadline")

			if tt.wantCode != "" {
				var body ErrorResponse
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, tt.wantCode, body.Code)
				assert.NotEmpty(t, body.RequestID)
				return
			}
			var body application.Result
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			require.NotNil(t, body.Report)
			assert.Equal(t, "scan-1", body.Report.ScanID)
			assert.Equal(t, 3, body.Stats.Candidates)
		})
	}
}

func TestScanRequiresPost(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{}, nil)

	resp, err := http.Get(srv.URL + "/scan")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestNotFound(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{}, nil)

	resp, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "endpoint_not_found", body.Code)
}

func TestMetrics(t *testing.T) {
	m := metrics.NewRegistry()
	m.ObserveScan(time.Second, time.Now())
	srv := newTestServer(t, &fakeRunner{}, m)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "obscan_scans_total 1")
}

func TestMetricsDisabled(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{}, nil)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
