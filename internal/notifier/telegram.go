package notifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	logx "urlwatch/pkg/logx"
)

// Telegram caps a message at 4096 characters.
const telegramTextLimit = 4000

// botSender is the part of *tele.Bot used here.
type botSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type telegramNotifier struct {
	log      logx.Logger
	bot      botSender
	chat     tele.ChatID
	threadID int
}

func openTelegram(cfg Config, log logx.Logger) (Notifier, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is empty")
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(cfg.Channel), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram channel must be a numeric chat id: %w", err)
	}
	// Offline skips the getMe round trip; a bad token surfaces on Send.
	b, err := tele.NewBot(tele.Settings{Token: cfg.TelegramToken, Offline: true})
	if err != nil {
		return nil, err
	}
	return &telegramNotifier{log: log, bot: b, chat: tele.ChatID(chatID), threadID: cfg.TelegramThreadID}, nil
}

func (n *telegramNotifier) Notify(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := truncateText(msg.Text, telegramTextLimit)
	m, err := n.bot.Send(n.chat, text, &tele.SendOptions{
		DisableWebPagePreview: true,
		ThreadID:              n.threadID,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if m != nil {
		n.log.Debug("alert sent", logx.Int64("chat_id", int64(n.chat)), logx.Int("message_id", m.ID))
	}
	return nil
}

func (n *telegramNotifier) Close() error { return nil }

// truncateText cuts s to at most limit bytes on a rune boundary, marking the
// cut with "...". Telegram rejects text that is not valid UTF-8.
func truncateText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
