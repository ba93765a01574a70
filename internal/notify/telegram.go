package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sawpanic/obscan/internal/report"
)

// Telegram caps a message at 4096 characters
const telegramMaxLen = 4000

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink sends the Markdown report to one chat, split across messages
// when it is too long.
type TelegramSink struct {
	bot    sender
	chatID int64
	// channel is used instead of chatID for "@name" targets
	channel string
}

// NewTelegramSink authenticates against the Bot API. An empty endpoint uses
// the public API.
func NewTelegramSink(token, chat, endpoint string) (*TelegramSink, error) {
	var (
		bot *tgbotapi.BotAPI
		err error
	)
	if endpoint != "" {
		bot, err = tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	} else {
		bot, err = tgbotapi.NewBotAPI(token)
	}
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return newTelegramSink(bot, chat)
}

func newTelegramSink(bot sender, chat string) (*TelegramSink, error) {
	chat = strings.TrimSpace(chat)
	if strings.HasPrefix(chat, "@") {
		return &TelegramSink{bot: bot, channel: chat}, nil
	}
	id, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram chat id %q: %w", chat, err)
	}
	return &TelegramSink{bot: bot, chatID: id}, nil
}

func (t *TelegramSink) Name() string { return "telegram" }

func (t *TelegramSink) Notify(ctx context.Context, r *report.Report) error {
	for i, text := range report.FormatChunks(r, telegramMaxLen) {
		if err := ctx.Err(); err != nil {
			return err
		}
		var msg tgbotapi.MessageConfig
		if t.channel != "" {
			msg = tgbotapi.NewMessageToChannel(t.channel, text)
		} else {
			msg = tgbotapi.NewMessage(t.chatID, text)
		}
		msg.ParseMode = tgbotapi.ModeMarkdown
		msg.DisableWebPagePreview = true

		if _, err := t.bot.Send(msg); err != nil {
			return fmt.Errorf("send part %d: %w", i+1, err)
		}
	}
	return nil
}
