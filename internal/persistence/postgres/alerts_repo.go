package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/obscan/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS obscan_alerts (
	id               BIGSERIAL PRIMARY KEY,
	scan_id          TEXT             NOT NULL,
	generated_at     TIMESTAMPTZ      NOT NULL,
	symbol           TEXT             NOT NULL,
	in_reference_a   BOOLEAN          NOT NULL,
	in_reference_b   BOOLEAN          NOT NULL,
	bid_wall_price   DOUBLE PRECISION NOT NULL,
	bid_wall_amount  DOUBLE PRECISION NOT NULL,
	imbalance_ratio  DOUBLE PRECISION,
	reference_price  DOUBLE PRECISION NOT NULL,
	target_price     DOUBLE PRECISION NOT NULL,
	divergence_pct   DOUBLE PRECISION NOT NULL,
	created_at       TIMESTAMPTZ      NOT NULL DEFAULT now(),
	UNIQUE (scan_id, symbol)
)`

const insertAlert = `
	INSERT INTO obscan_alerts (scan_id, generated_at, symbol, in_reference_a, in_reference_b,
		bid_wall_price, bid_wall_amount, imbalance_ratio, reference_price, target_price, divergence_pct)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// ErrDuplicateAlert is returned when a scan's alerts were already stored
var ErrDuplicateAlert = errors.New("duplicate alert")

// AlertsRepo is a write-only log of delivered alerts. Nothing in a scan reads it.
type AlertsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects to Postgres using a lib/pq DSN and verifies the connection
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(time.Minute)
	return db, nil
}

func NewAlertsRepo(db *sqlx.DB, timeout time.Duration) *AlertsRepo {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AlertsRepo{db: db, timeout: timeout}
}

// EnsureSchema creates the alert table when missing
func (r *AlertsRepo) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create alert table: %w", err)
	}
	return nil
}

// InsertScan stores every alert of one scan atomically
func (r *AlertsRepo) InsertScan(ctx context.Context, scanID string, generatedAt time.Time, alerts []domain.AlertRecord) error {
	if len(alerts) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, insertAlert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range alerts {
		var ratio sql.NullFloat64
		if a.ImbalanceRatio != nil {
			ratio = sql.NullFloat64{Float64: *a.ImbalanceRatio, Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			scanID, generatedAt, a.Symbol, a.InReferenceA, a.InReferenceB,
			a.BidWallPrice, a.BidWallAmount, ratio, a.ReferencePrice, a.TargetPrice, a.DivergencePct)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return fmt.Errorf("%w: scan %s symbol %s", ErrDuplicateAlert, scanID, a.Symbol)
			}
			return fmt.Errorf("insert alert %s: %w", a.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit alerts: %w", err)
	}
	return nil
}
