package telegram

import "strings"

// MessageLimit задаёт максимальную длину сообщения Telegram в символах.
const MessageLimit = 4096

// Split режет текст на части не длиннее limit символов, по возможности по переводам строк.
func Split(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if limit <= 0 {
		limit = MessageLimit
	}
	runes := []rune(trimmed)
	if len(runes) <= limit {
		return []string{trimmed}
	}

	var parts []string
	for start := 0; start < len(runes); {
		end := min(start+limit, len(runes))
		cut := end
		if end < len(runes) {
			for i := end; i > start; i-- {
				if runes[i-1] == '\n' {
					cut = i
					break
				}
			}
		}
		if chunk := strings.Trim(string(runes[start:cut]), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}
		start = cut
		for start < len(runes) && runes[start] == '\n' {
			start++
		}
	}
	return parts
}
