package metrics

import (
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ObserveScan(t *testing.T) {
	r := NewRegistry()
	finished := time.Unix(1700000000, 0)

	r.ObserveScan(3*time.Second, finished)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Scans))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(r.LastScan))
}

func TestRegistry_ObserveDelivery(t *testing.T) {
	r := NewRegistry()
	r.ObserveDelivery("telegram", nil)
	r.ObserveDelivery("telegram", errors.New("429"))
	r.ObserveDelivery("telegram", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Deliveries.WithLabelValues("telegram", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Deliveries.WithLabelValues("telegram", "error")))
}

func TestRegistry_NilSafe(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.ObserveScan(time.Second, time.Now())
		r.ObserveDelivery("log", nil)
	})
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.Alerted.Add(2)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "obscan_alerts_total 2")
}

func TestRegistry_WriteTextfile(t *testing.T) {
	r := NewRegistry()
	r.Candidates.Add(7)

	path := filepath.Join(t.TempDir(), "obscan.prom")
	require.NoError(t, r.WriteTextfile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "obscan_candidates_total 7"))
}
