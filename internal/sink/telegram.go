package sink

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "stocknotify/pkg/logx"
)

// TelegramConfig configures the Telegram channel. Addresses are numeric
// chat ids rendered as strings, so the Sink interface stays uniform.
type TelegramConfig struct {
	Token string
}

type telegramSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type telegramSink struct {
	bot telegramSender
	log logx.Logger
}

// NewTelegram builds the Telegram sink. The bot is used send-only; no
// update polling is started.
func NewTelegram(cfg TelegramConfig, log logx.Logger) (Sink, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: true, // send-only; skip the getMe round-trip at startup
		Poller:  &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &telegramSink{bot: bot, log: log}, nil
}

func (s *telegramSink) Kind() Kind { return KindTelegram }

func (s *telegramSink) Deliver(ctx context.Context, text string, addrs []string) []Delivery {
	out := make([]Delivery, 0, len(addrs))
	for _, addr := range addrs {
		if err := ctx.Err(); err != nil {
			out = append(out, Delivery{Addr: addr, Err: err})
			continue
		}
		err := s.send(addr, text)
		if err != nil {
			s.log.Warn("telegram delivery failed", logx.String("chat", addr), logx.Err(err))
		}
		out = append(out, Delivery{Addr: addr, Err: err})
	}
	return out
}

func (s *telegramSink) send(addr, text string) error {
	chatID, err := strconv.ParseInt(addr, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", addr, err)
	}
	_, err = s.bot.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{DisableWebPagePreview: true})
	return err
}
