package telegram

import (
	"strings"
	"testing"
)

func TestSplitPrefersNewlines(t *testing.T) {
	text := strings.Repeat("a", 3000) + "\n\n" + strings.Repeat("b", 2000) + "\n" + strings.Repeat("c", 500)

	parts := Split(text, MessageLimit)
	if len(parts) != 2 {
		t.Fatalf("ожидали 2 части, получили %d", len(parts))
	}
	for i, part := range parts {
		if n := len([]rune(part)); n > MessageLimit {
			t.Fatalf("часть %d длиннее лимита: %d", i, n)
		}
	}
	if parts[0] != strings.Repeat("a", 3000) {
		t.Fatalf("неожиданное содержимое первой части")
	}
	if parts[1] != strings.Repeat("b", 2000)+"\n"+strings.Repeat("c", 500) {
		t.Fatalf("неожиданное содержимое второй части")
	}
}

func TestSplitWithoutNewlines(t *testing.T) {
	parts := Split(strings.Repeat("я", 25), 10)
	if len(parts) != 3 || len([]rune(parts[2])) != 5 {
		t.Fatalf("ожидали части 10/10/5, получили %v", parts)
	}
}

func TestSplitEmpty(t *testing.T) {
	if parts := Split("  \n ", 10); parts != nil {
		t.Fatalf("пустой текст не должен давать частей: %v", parts)
	}
}
