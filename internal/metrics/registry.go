package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the scanner's Prometheus metrics on a private registry
type Registry struct {
	reg *prometheus.Registry

	Scans        prometheus.Counter
	Candidates   prometheus.Counter
	Fetched      prometheus.Counter
	Evaluated    prometheus.Counter
	Signaled     prometheus.Counter
	Alerted      prometheus.Counter
	TaskErrors   *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
	ScanDuration prometheus.Histogram
	LastScan     prometheus.Gauge
	Deliveries   *prometheus.CounterVec
}

// NewRegistry creates and registers every scanner metric
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		Scans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "obscan_scans_total",
			Help: "Total number of scans run",
		}),
		Candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "obscan_candidates_total",
			Help: "Candidates dispatched to scan tasks",
		}),
		Fetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "obscan_orderbooks_fetched_total",
			Help: "Orderbook snapshots fetched successfully",
		}),
		Evaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "obscan_snapshots_evaluated_total",
			Help: "Snapshots evaluated by the signal heuristics",
		}),
		Signaled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "obscan_signals_triggered_total",
			Help: "Candidates with both bid-wall and imbalance signals",
		}),
		Alerted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "obscan_alerts_total",
			Help: "Alert records produced",
		}),
		TaskErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "obscan_task_errors_total",
			Help: "Scan task failures by stage",
		}, []string{"stage"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "obscan_task_duration_seconds",
			Help:    "Duration of one candidate task",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"result"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "obscan_scan_duration_seconds",
			Help:    "Wall time of a full scan",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		LastScan: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "obscan_last_scan_timestamp_seconds",
			Help: "Unix time the last scan finished",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "obscan_report_deliveries_total",
			Help: "Report deliveries by sink and outcome",
		}, []string{"sink", "status"}),
	}

	r.reg.MustRegister(
		r.Scans, r.Candidates, r.Fetched, r.Evaluated, r.Signaled, r.Alerted,
		r.TaskErrors, r.TaskDuration, r.ScanDuration, r.LastScan, r.Deliveries,
	)
	return r
}

// ObserveScan records a finished scan
func (r *Registry) ObserveScan(dur time.Duration, finished time.Time) {
	if r == nil {
		return
	}
	r.Scans.Inc()
	r.ScanDuration.Observe(dur.Seconds())
	r.LastScan.Set(float64(finished.Unix()))
}

// ObserveDelivery records one sink delivery attempt
func (r *Registry) ObserveDelivery(sink string, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.Deliveries.WithLabelValues(sink, status).Inc()
}

// Gatherer exposes the underlying registry
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry for the node_exporter textfile collector
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
