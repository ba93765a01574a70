// Package report turns a scan's alert records into a deliverable report.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/obscan/internal/domain"
)

// Report is the aggregated output of one scan
type Report struct {
	ScanID      string               `json:"scan_id"`
	GeneratedAt time.Time            `json:"generated_at"`
	Alerts      []domain.AlertRecord `json:"alerts"`
}

// Aggregator builds reports
type Aggregator struct {
	now   func() time.Time
	newID func() string
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
}

// Build returns nil for no records, otherwise a report with the records
// sorted by symbol. The input slice is not modified.
func (a *Aggregator) Build(records []domain.AlertRecord) *Report {
	if len(records) == 0 {
		return nil
	}
	alerts := append([]domain.AlertRecord(nil), records...)
	sort.SliceStable(alerts, func(i, j int) bool { return alerts[i].Symbol < alerts[j].Symbol })

	return &Report{
		ScanID:      a.newID(),
		GeneratedAt: a.now(),
		Alerts:      alerts,
	}
}

const header = "📊 *ALERT BITGET MANIPULATION*\n\n"

// Format renders the report as Telegram Markdown. A nil report renders empty.
func Format(r *Report) string {
	if r == nil || len(r.Alerts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(header)
	for _, a := range r.Alerts {
		b.WriteString(formatAlert(a))
	}
	return b.String()
}

// FormatChunks renders the report in messages of at most maxLen bytes,
// splitting only between alerts. Every chunk repeats the header.
func FormatChunks(r *Report, maxLen int) []string {
	if r == nil || len(r.Alerts) == 0 {
		return nil
	}
	var (
		chunks []string
		b      strings.Builder
	)
	b.WriteString(header)
	for _, a := range r.Alerts {
		item := formatAlert(a)
		if b.Len() > len(header) && b.Len()+len(item) > maxLen {
			chunks = append(chunks, b.String())
			b.Reset()
			b.WriteString(header)
		}
		b.WriteString(item)
	}
	return append(chunks, b.String())
}

func formatAlert(a domain.AlertRecord) string {
	ratio := "n/a"
	if a.ImbalanceRatio != nil {
		ratio = num(*a.ImbalanceRatio)
	}
	return fmt.Sprintf("🔹 *%s*\n"+
		"• In HL: `%t`\n"+
		"• In Binance: `%t`\n"+
		"• Bid Wall Price: `%s`\n"+
		"• Bid Wall Amount: `%s`\n"+
		"• OB Imbalance: `%s`\n"+
		"• Binance Price: `%s`\n"+
		"• Bitget Price: `%s`\n"+
		"• Divergence: `%s%%`\n"+
		"\n",
		strings.ToUpper(a.Symbol),
		a.InReferenceA,
		a.InReferenceB,
		num(a.BidWallPrice),
		num(a.BidWallAmount),
		ratio,
		num(a.ReferencePrice),
		num(a.TargetPrice),
		strconv.FormatFloat(a.DivergencePct, 'f', 2, 64),
	)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteJSON writes v as indented JSON, creating parent directories
func WriteJSON(path string, v any) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
