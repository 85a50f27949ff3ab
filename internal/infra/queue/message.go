package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DraftMessage описывает задание на обогащение одного черновика.
type DraftMessage struct {
	TipID string `json:"tip_id"`
}

// Handler обрабатывает одно задание.
type Handler func(ctx context.Context, msg DraftMessage) error

// Consumer читает задания, пока не отменён контекст.
type Consumer interface {
	Consume(ctx context.Context, handle Handler) error
}

var errEmptyTipID = errors.New("queue: tip_id is empty")

func encodeDraft(tipID string) ([]byte, error) {
	if strings.TrimSpace(tipID) == "" {
		return nil, errEmptyTipID
	}
	return json.Marshal(DraftMessage{TipID: tipID})
}

func decodeDraft(body []byte) (DraftMessage, error) {
	var msg DraftMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return DraftMessage{}, fmt.Errorf("decode draft message: %w", err)
	}
	if strings.TrimSpace(msg.TipID) == "" {
		return DraftMessage{}, errEmptyTipID
	}
	return msg, nil
}
