package dispatch

import (
	"context"
	"errors"

	"github.com/Aryainguz/tldev-backend/internal/domain"
)

const defaultChunkSize = 100

var (
	errMalformedToken = errors.New("malformed push token")
	errMissingTicket  = errors.New("provider returned no ticket")
)

type sendOutcome struct {
	sent    int
	invalid int
	errors  []domain.RecipientError
}

func (o *sendOutcome) addError(userID string, err error) {
	o.errors = append(o.errors, domain.RecipientError{UserID: userID, Message: err.Error()})
}

// send отбрасывает некорректные токены и отправляет остальные пачками.
// Сбой пачки засчитывается всем её получателям и не останавливает следующие.
func (s *Service) send(ctx context.Context, tip domain.Tip, title string, recipients []domain.PushRecipient) sendOutcome {
	var out sendOutcome
	valid := make([]domain.PushRecipient, 0, len(recipients))
	for _, r := range recipients {
		if !s.deps.Sender.ValidToken(r.Token) {
			out.invalid++
			out.addError(r.UserID, errMalformedToken)
			continue
		}
		valid = append(valid, r)
	}

	size := s.deps.Sender.ChunkSize()
	if size <= 0 {
		size = defaultChunkSize
	}
	for start := 0; start < len(valid); start += size {
		end := min(start+size, len(valid))
		chunk := valid[start:end]
		messages := make([]domain.PushMessage, 0, len(chunk))
		for _, r := range chunk {
			messages = append(messages, s.format.Message(tip, title, r.Token))
		}

		tickets, err := s.deps.Sender.SendBatch(ctx, messages)
		if err != nil {
			s.log.Warn().Err(err).Int("chunk_start", start).Int("chunk_size", len(chunk)).Msg("dispatch: chunk send failed")
			for _, r := range chunk {
				out.addError(r.UserID, err)
			}
			continue
		}
		for i, r := range chunk {
			if i >= len(tickets) {
				out.addError(r.UserID, errMissingTicket)
				continue
			}
			if tickets[i].Status != domain.PushTicketOK {
				msg := tickets[i].Message
				if msg == "" {
					msg = "push ticket status " + string(tickets[i].Status)
				}
				out.addError(r.UserID, errors.New(msg))
				continue
			}
			out.sent++
		}
	}
	return out
}
