// Package notify доставляет операторам отчёт о запуске схемы.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/go-telegram/bot"

	"storekeeper/internal/schema"
)

// maxMessageLen - ограничение Telegram на длину текста сообщения.
const maxMessageLen = 4096

// Notifier отправляет текст операторам.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Nop ничего не отправляет.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, string) error { return nil }

// Telegram рассылает сообщения в чаты администраторов.
type Telegram struct {
	bot   *bot.Bot
	chats []int64
}

// NewTelegram создаёт отправителя. getMe не вызывается: проверка токена
// случится при первой отправке, а недоступный API не мешает запуску.
func NewTelegram(token string, chats []int64, opts ...bot.Option) (*Telegram, error) {
	if token == "" {
		return nil, errors.New("telegram token is empty")
	}
	if len(chats) == 0 {
		return nil, errors.New("no admin chats configured")
	}
	b, err := bot.New(token, append([]bot.Option{bot.WithSkipGetMe()}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{bot: b, chats: chats}, nil
}

// Notify отправляет текст в каждый чат. Ошибка по одному чату не мешает остальным.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	text = truncate(text, maxMessageLen)

	var errs []error
	for _, chat := range t.chats {
		_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: chat, Text: text})
		if err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chat, err))
		}
	}
	return errors.Join(errs...)
}

// Startup отправляет сводку отчёта о запуске. Ошибки доставки только логируются.
func Startup(ctx context.Context, n Notifier, log *slog.Logger, rep *schema.Report) {
	if n == nil || rep == nil {
		return
	}
	title := "✅ storekeeper: schema ready"
	if rep.Err != "" {
		title = "❌ storekeeper: schema startup failed"
	}
	if err := n.Notify(ctx, title+"\n\n"+rep.Summary()); err != nil {
		log.Warn("failed to notify operators", "run_id", rep.RunID, "error", err)
	}
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}
