package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/obscan/internal/domain"
)

func fixedAggregator() *Aggregator {
	return &Aggregator{
		now:   func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) },
		newID: func() string { return "scan-1" },
	}
}

func ratio(v float64) *float64 { return &v }

func fooAlert() domain.AlertRecord {
	return domain.AlertRecord{
		Symbol:         "foo",
		InReferenceA:   false,
		InReferenceB:   true,
		BidWallPrice:   9.9,
		BidWallAmount:  198,
		ImbalanceRatio: ratio(4),
		ReferencePrice: 10.05,
		TargetPrice:    10,
		DivergencePct:  0.4975,
	}
}

func TestBuild_Empty(t *testing.T) {
	agg := fixedAggregator()
	assert.Nil(t, agg.Build(nil))
	assert.Nil(t, agg.Build([]domain.AlertRecord{}))
	assert.Equal(t, "", Format(nil))
	assert.Nil(t, FormatChunks(nil, 4096))
}

func TestBuild_SortsWithoutMutatingInput(t *testing.T) {
	in := []domain.AlertRecord{{Symbol: "zed"}, {Symbol: "abc"}, {Symbol: "mno"}}

	r := fixedAggregator().Build(in)
	require.NotNil(t, r)
	assert.Equal(t, "scan-1", r.ScanID)
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), r.GeneratedAt)

	got := []string{r.Alerts[0].Symbol, r.Alerts[1].Symbol, r.Alerts[2].Symbol}
	assert.Equal(t, []string{"abc", "mno", "zed"}, got)
	assert.Equal(t, "zed", in[0].Symbol)
}

func TestBuild_UniqueScanIDs(t *testing.T) {
	agg := NewAggregator()
	a := agg.Build([]domain.AlertRecord{fooAlert()})
	b := agg.Build([]domain.AlertRecord{fooAlert()})
	assert.NotEqual(t, a.ScanID, b.ScanID)
	assert.Len(t, a.ScanID, 36)
}

func TestFormat_Foo(t *testing.T) {
	msg := Format(fixedAggregator().Build([]domain.AlertRecord{fooAlert()}))

	want := "📊 *ALERT BITGET MANIPULATION*\n\n" +
		"🔹 *FOO*\n" +
		"• In HL: `false`\n" +
		"• In Binance: `true`\n" +
		"• Bid Wall Price: `9.9`\n" +
		"• Bid Wall Amount: `198`\n" +
		"• OB Imbalance: `4`\n" +
		"• Binance Price: `10.05`\n" +
		"• Bitget Price: `10`\n" +
		"• Divergence: `0.50%`\n" +
		"\n"
	assert.Equal(t, want, msg)
}

func TestFormat_NilRatio(t *testing.T) {
	a := fooAlert()
	a.ImbalanceRatio = nil
	msg := Format(fixedAggregator().Build([]domain.AlertRecord{a}))
	assert.Contains(t, msg, "• OB Imbalance: `n/a`\n")
}

func TestFormatChunks(t *testing.T) {
	var records []domain.AlertRecord
	for _, s := range []string{"a", "b", "c", "d"} {
		r := fooAlert()
		r.Symbol = s
		records = append(records, r)
	}
	rep := fixedAggregator().Build(records)
	single := Format(rep)

	chunks := FormatChunks(rep, len(single))
	require.Len(t, chunks, 1)
	assert.Equal(t, single, chunks[0])

	itemLen := (len(single) - len(header)) / 4
	chunks = FormatChunks(rep, len(header)+2*itemLen)
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.True(t, strings.HasPrefix(c, header))
		assert.LessOrEqual(t, len(c), len(header)+2*itemLen)
	}

	// an item larger than the limit still goes out on its own
	chunks = FormatChunks(rep, 10)
	assert.Len(t, chunks, 4)
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "report.json")
	rep := fixedAggregator().Build([]domain.AlertRecord{fooAlert()})

	require.NoError(t, WriteJSON(path, rep))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var back Report
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "scan-1", back.ScanID)
	require.Len(t, back.Alerts, 1)
	assert.Equal(t, "foo", back.Alerts[0].Symbol)
	assert.Equal(t, 0.4975, back.Alerts[0].DivergencePct)
}
