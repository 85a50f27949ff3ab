// Package generator получает советы от языковой модели.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Aryainguz/tldev-backend/internal/domain"
	openai "github.com/Aryainguz/tldev-backend/internal/infra/openai"
)

const (
	defaultModel   = "gpt-4o-mini"
	maxExcludeKeys = 40
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI реализует domain.TipGenerator через Chat Completions.
// Таймаут задаёт вызывающий через контекст.
type OpenAI struct {
	client chatClient
	model  string
}

// NewOpenAI создаёт генератор советов.
func NewOpenAI(client chatClient, model string) *OpenAI {
	if model == "" {
		model = defaultModel
	}
	return &OpenAI{client: client, model: model}
}

var _ domain.TipGenerator = (*OpenAI)(nil)

type tipsPayload struct {
	Tips []domain.GeneratedTip `json:"tips"`
}

const systemPrompt = `You are a senior engineer writing short, practical developer tips for a mobile feed.
Every tip must be accurate, self-contained and actionable. Never repeat a topic.`

// Generate запрашивает req.Count советов, исключая перечисленные темы.
func (g *OpenAI) Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResponse, error) {
	if req.Count <= 0 {
		return domain.GenerateResponse{}, fmt.Errorf("generator: count must be positive")
	}
	chatReq := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: 0.9,
		MaxTokens:   600 * req.Count,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: systemPrompt},
			{Role: openai.RoleUser, Content: buildPrompt(req)},
		},
		ResponseFormat: openai.JSONObject(),
	}

	resp, err := g.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return domain.GenerateResponse{}, fmt.Errorf("openai completion: %w", err)
	}
	content, err := resp.Content()
	if err != nil {
		return domain.GenerateResponse{}, err
	}
	tips, err := parseTips(content)
	if err != nil {
		return domain.GenerateResponse{}, err
	}
	return domain.GenerateResponse{Tips: tips, Model: resp.Model}, nil
}

func buildPrompt(req domain.GenerateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write %d developer tips", req.Count)
	if c := strings.TrimSpace(req.Category); c != "" {
		fmt.Fprintf(&b, " about %s", c)
	}
	b.WriteString(`.
Return a JSON object {"tips": [...]} where each tip has:
headline (max 70 chars), summary (one or two sentences), detail (markdown, max 120 words),
code_sample (optional, short), category (one lowercase word), tags (2-4 lowercase strings),
topic_slug (kebab-case, unique), technology (primary library or tool), headline_pattern (first two words, lowercase).
Each tip must use a different topic_slug, technology and headline_pattern.`)

	exclude := req.Exclude
	if len(exclude) > maxExcludeKeys {
		exclude = exclude[:maxExcludeKeys]
	}
	if len(exclude) > 0 {
		b.WriteString("\nDo not write about these recent topics:\n")
		for _, k := range exclude {
			fmt.Fprintf(&b, "- %s", k.TopicSlug)
			if k.Technology != "" {
				fmt.Fprintf(&b, " (%s)", k.Technology)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// parseTips разбирает ответ модели. Допускается как объект {"tips": [...]}, так и голый массив.
func parseTips(content string) ([]domain.GeneratedTip, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "[") {
		var tips []domain.GeneratedTip
		if err := json.Unmarshal([]byte(content), &tips); err != nil {
			return nil, fmt.Errorf("decode model response: %w", err)
		}
		return tips, nil
	}
	var payload tipsPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	return payload.Tips, nil
}
