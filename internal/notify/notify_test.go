package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/obscan/internal/domain"
	"github.com/sawpanic/obscan/internal/metrics"
	"github.com/sawpanic/obscan/internal/report"
)

func ratio(v float64) *float64 { return &v }

func testReport(symbols ...string) *report.Report {
	r := &report.Report{ScanID: "scan-1", GeneratedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}
	for _, s := range symbols {
		r.Alerts = append(r.Alerts, domain.AlertRecord{
			Symbol: s, InReferenceB: true, BidWallPrice: 9.9, BidWallAmount: 198,
			ImbalanceRatio: ratio(4), ReferencePrice: 10.05, TargetPrice: 10, DivergencePct: 0.4975,
		})
	}
	return r
}

type recordingSink struct {
	name  string
	err   error
	calls int
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Notify(context.Context, *report.Report) error {
	s.calls++
	return s.err
}

func TestFanout_SkipsEmptyReport(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	f := NewFanout(nil, sink)

	require.NoError(t, f.Notify(context.Background(), nil))
	require.NoError(t, f.Notify(context.Background(), &report.Report{}))
	assert.Zero(t, sink.calls)
}

func TestFanout_ContinuesPastFailures(t *testing.T) {
	boom := errors.New("telegram down")
	bad := &recordingSink{name: "telegram", err: boom}
	good := &recordingSink{name: "log"}
	reg := metrics.NewRegistry()

	err := NewFanout(reg, bad, good).Notify(context.Background(), testReport("foo"))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "telegram")
	assert.Equal(t, 1, good.calls)

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Deliveries.WithLabelValues("telegram", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Deliveries.WithLabelValues("log", "ok")))
}

func TestLogSink(t *testing.T) {
	r := testReport("foo")
	r.Alerts[0].ImbalanceRatio = nil
	assert.NoError(t, LogSink{}.Notify(context.Background(), r))
}

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func TestTelegramSink_ChatTargets(t *testing.T) {
	tests := []struct {
		chat        string
		wantID      int64
		wantChannel string
		wantErr     bool
	}{
		{chat: "123456", wantID: 123456},
		{chat: "-100200300", wantID: -100200300},
		{chat: "@obscan_alerts", wantChannel: "@obscan_alerts"},
		{chat: "not-a-chat", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.chat, func(t *testing.T) {
			bot := &fakeSender{}
			sink, err := newTelegramSink(bot, tt.chat)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, sink.Notify(context.Background(), testReport("foo")))

			require.Len(t, bot.sent, 1)
			msg := bot.sent[0]
			assert.Equal(t, tt.wantID, msg.ChatID)
			assert.Equal(t, tt.wantChannel, msg.ChannelUsername)
			assert.Equal(t, tgbotapi.ModeMarkdown, msg.ParseMode)
			assert.True(t, strings.HasPrefix(msg.Text, "📊 *ALERT BITGET MANIPULATION*"))
		})
	}
}

func TestTelegramSink_SplitsLongReports(t *testing.T) {
	var symbols []string
	for i := 0; i < 40; i++ {
		symbols = append(symbols, fmt.Sprintf("tok%02d", i))
	}
	bot := &fakeSender{}
	sink, err := newTelegramSink(bot, "1")
	require.NoError(t, err)

	require.NoError(t, sink.Notify(context.Background(), testReport(symbols...)))
	require.Greater(t, len(bot.sent), 1)
	for _, m := range bot.sent {
		assert.LessOrEqual(t, len(m.Text), telegramMaxLen)
	}
}

func TestTelegramSink_SendError(t *testing.T) {
	sink, err := newTelegramSink(&fakeSender{err: errors.New("Bad Request: chat not found")}, "1")
	require.NoError(t, err)
	assert.Error(t, sink.Notify(context.Background(), testReport("foo")))
}

func TestTelegramSink_BotAPI(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"obscan","username":"obscan_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
			assert.Equal(t, "42", r.FormValue("chat_id"))
			assert.Equal(t, "Markdown", r.FormValue("parse_mode"))
			mu.Lock()
			sent = append(sent, r.FormValue("text"))
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":1700000000,"chat":{"id":42,"type":"private"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	sink, err := NewTelegramSink("TOKEN", "42", srv.URL+"/bot%s/%s")
	require.NoError(t, err)
	require.NoError(t, sink.Notify(context.Background(), testReport("foo")))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "🔹 *FOO*")
}

type fakeStore struct {
	scanID string
	alerts []domain.AlertRecord
	err    error
}

func (f *fakeStore) InsertScan(_ context.Context, scanID string, _ time.Time, alerts []domain.AlertRecord) error {
	f.scanID, f.alerts = scanID, alerts
	return f.err
}

func TestPostgresSink(t *testing.T) {
	store := &fakeStore{}
	sink := NewPostgresSink(store)

	require.NoError(t, sink.Notify(context.Background(), testReport("foo", "bar")))
	assert.Equal(t, "scan-1", store.scanID)
	assert.Len(t, store.alerts, 2)
	assert.Equal(t, "postgres", sink.Name())

	store.err = errors.New("duplicate alert")
	assert.Error(t, sink.Notify(context.Background(), testReport("foo")))
}
