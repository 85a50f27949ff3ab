package dispatch

import (
	"math/rand/v2"
	"strings"
	"unicode/utf8"

	"github.com/Aryainguz/tldev-backend/internal/domain"
)

// decorations используются как префиксы заголовка уведомления.
var decorations = []string{"💡", "⚡", "🔥", "🧠", "🚀", "🛠️", "✨"}

const maxBodyRunes = 178

// Formatter собирает уведомление из совета.
type Formatter struct {
	// pick возвращает индекс в [0, n).
	pick func(n int) int
}

// NewFormatter создаёт форматтер со случайным выбором префикса.
func NewFormatter() Formatter {
	return Formatter{pick: rand.IntN}
}

// Title возвращает заголовок уведомления.
func (f Formatter) Title(tip domain.Tip) string {
	pick := f.pick
	if pick == nil {
		pick = rand.IntN
	}
	headline := strings.TrimSpace(tip.Headline)
	return decorations[pick(len(decorations))] + " " + headline
}

// Body возвращает текст уведомления: краткое описание, обрезанное по границе слова.
func (f Formatter) Body(tip domain.Tip) string {
	return truncate(strings.TrimSpace(tip.Summary), maxBodyRunes)
}

// Message строит уведомление для одного получателя.
func (f Formatter) Message(tip domain.Tip, title, token string) domain.PushMessage {
	msg := domain.PushMessage{
		To:    token,
		Title: title,
		Body:  f.Body(tip),
		Data: map[string]any{
			"tip_id": tip.ID,
			"url":    "tldev://tips/" + tip.ID,
		},
	}
	if tip.Image != nil {
		msg.ImageURL = tip.Image.URL
		msg.Data["image"] = tip.Image.URL
	}
	return msg
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)[:limit]
	cut := string(runes)
	if i := strings.LastIndexByte(cut, ' '); i >= 0 && utf8.RuneCountInString(cut[:i]) > limit/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}
