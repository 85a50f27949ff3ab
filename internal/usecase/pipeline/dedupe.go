package pipeline

import (
	"strings"
	"unicode"

	"github.com/Aryainguz/tldev-backend/internal/domain"
)

// Причины отбраковки сгенерированных советов.
const (
	DropInvalid         = "invalid"
	DropTopicSlug       = "duplicate_topic_slug"
	DropTechnology      = "duplicate_technology"
	DropHeadlinePattern = "duplicate_headline_pattern"
	DropRecentTopic     = "recent_topic_slug"
)

// patternWords задаёт, сколько значимых слов заголовка образуют его шаблон.
const patternWords = 3

// patternStopWords не учитываются в шаблоне заголовка.
var patternStopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "how": {}, "to": {}, "why": {}, "what": {}, "when": {}, "your": {}, "you": {},
}

// Drop описывает отброшенный совет.
type Drop struct {
	Index    int    `json:"index"`
	Reason   string `json:"reason"`
	Key      string `json:"key,omitempty"`
	Headline string `json:"headline"`
}

// HeadlinePattern выводит шаблон заголовка: первые значимые слова в нижнем регистре, цифры заменены на '#'.
// Служебные слова пропускаются, заголовок только из них берётся целиком.
func HeadlinePattern(headline string) string {
	all := strings.FieldsFunc(strings.ToLower(headline), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := make([]string, 0, len(all))
	for _, w := range all {
		if _, ok := patternStopWords[w]; !ok {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		words = all
	}
	if len(words) > patternWords {
		words = words[:patternWords]
	}
	for i, w := range words {
		words[i] = strings.Map(func(r rune) rune {
			if unicode.IsDigit(r) {
				return '#'
			}
			return r
		}, w)
	}
	return strings.Join(words, " ")
}

func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Normalize приводит поля совета к каноническому виду и заполняет шаблон заголовка.
func Normalize(t domain.GeneratedTip) domain.GeneratedTip {
	t.Headline = strings.TrimSpace(t.Headline)
	t.Summary = strings.TrimSpace(t.Summary)
	t.Detail = strings.TrimSpace(t.Detail)
	t.CodeSample = strings.TrimSpace(t.CodeSample)
	t.Category = normalizeKey(t.Category)
	t.TopicSlug = normalizeKey(t.TopicSlug)
	t.Technology = normalizeKey(t.Technology)
	t.HeadlinePattern = normalizeKey(t.HeadlinePattern)
	if t.HeadlinePattern == "" {
		t.HeadlinePattern = HeadlinePattern(t.Headline)
	}
	tags := make([]string, 0, len(t.Tags))
	seen := make(map[string]struct{}, len(t.Tags))
	for _, tag := range t.Tags {
		tag = normalizeKey(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	t.Tags = tags
	return t
}

// Valid проверяет обязательные поля.
func Valid(t domain.GeneratedTip) bool {
	return t.Headline != "" && t.Summary != "" && t.Detail != "" && t.Category != "" &&
		t.TopicSlug != "" && len(t.Tags) > 0
}

// Dedupe оставляет первые вхождения по трём ключам уникальности: slug темы,
// основная технология и шаблон заголовка. Пустые значения ключей не сравниваются.
// Советы со slug из recent тоже отбрасываются.
func Dedupe(tips []domain.GeneratedTip, recent []domain.TopicKey) ([]domain.GeneratedTip, []Drop) {
	recentSlugs := make(map[string]struct{}, len(recent))
	for _, k := range recent {
		if slug := normalizeKey(k.TopicSlug); slug != "" {
			recentSlugs[slug] = struct{}{}
		}
	}
	slugs := map[string]struct{}{}
	techs := map[string]struct{}{}
	patterns := map[string]struct{}{}

	kept := make([]domain.GeneratedTip, 0, len(tips))
	var drops []Drop
	for i, raw := range tips {
		t := Normalize(raw)
		drop := func(reason, key string) {
			drops = append(drops, Drop{Index: i, Reason: reason, Key: key, Headline: t.Headline})
		}
		if !Valid(t) {
			drop(DropInvalid, "")
			continue
		}
		if _, ok := recentSlugs[t.TopicSlug]; ok {
			drop(DropRecentTopic, t.TopicSlug)
			continue
		}
		if _, ok := slugs[t.TopicSlug]; ok {
			drop(DropTopicSlug, t.TopicSlug)
			continue
		}
		if _, ok := techs[t.Technology]; ok && t.Technology != "" {
			drop(DropTechnology, t.Technology)
			continue
		}
		if _, ok := patterns[t.HeadlinePattern]; ok && t.HeadlinePattern != "" {
			drop(DropHeadlinePattern, t.HeadlinePattern)
			continue
		}
		slugs[t.TopicSlug] = struct{}{}
		if t.Technology != "" {
			techs[t.Technology] = struct{}{}
		}
		if t.HeadlinePattern != "" {
			patterns[t.HeadlinePattern] = struct{}{}
		}
		kept = append(kept, t)
	}
	return kept, drops
}
