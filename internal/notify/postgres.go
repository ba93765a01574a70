package notify

import (
	"context"
	"time"

	"github.com/sawpanic/obscan/internal/domain"
	"github.com/sawpanic/obscan/internal/report"
)

// AlertStore persists the alerts of one scan
type AlertStore interface {
	InsertScan(ctx context.Context, scanID string, generatedAt time.Time, alerts []domain.AlertRecord) error
}

// PostgresSink appends delivered alerts to the alert log table
type PostgresSink struct {
	store AlertStore
}

func NewPostgresSink(store AlertStore) *PostgresSink {
	return &PostgresSink{store: store}
}

func (p *PostgresSink) Name() string { return "postgres" }

func (p *PostgresSink) Notify(ctx context.Context, r *report.Report) error {
	return p.store.InsertScan(ctx, r.ScanID, r.GeneratedAt, r.Alerts)
}
