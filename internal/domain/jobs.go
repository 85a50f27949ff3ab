package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus описывает статус запуска генерации.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job описывает попытку генерации советов. Новая запись создаётся на каждую попытку.
type Job struct {
	ID         string      `json:"id"`
	Status     JobStatus   `json:"status"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	TipsCount  int         `json:"tips_count"`
	Errors     []string    `json:"errors,omitempty"`
	Summary    *JobSummary `json:"summary,omitempty"`
}

// JobSummary содержит итоговую сводку генерации.
type JobSummary struct {
	Requested  int      `json:"requested"`
	Returned   int      `json:"returned"`
	Dropped    int      `json:"dropped"`
	Saved      int      `json:"saved"`
	Model      string   `json:"model,omitempty"`
	Category   string   `json:"category,omitempty"`
	TipIDs     []string `json:"tip_ids,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

// PushStatus описывает статус слота рассылки в журнале идемпотентности.
type PushStatus string

const (
	PushStatusSending   PushStatus = "sending"
	PushStatusCompleted PushStatus = "completed"
	PushStatusFailed    PushStatus = "failed"
)

// MaxStoredPushErrors ограничивает количество подробных ошибок в журнале.
const MaxStoredPushErrors = 10

// DailyPush — запись журнала идемпотентности, уникальная по (дата, слот).
type DailyPush struct {
	Date           string       `json:"date"`
	Slot           int          `json:"slot"`
	TipID          string       `json:"tip_id,omitempty"`
	CandidateCount int          `json:"candidate_count"`
	Status         PushStatus   `json:"status"`
	Attempts       int          `json:"attempts"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     *time.Time   `json:"finished_at,omitempty"`
	SentCount      int          `json:"sent_count"`
	ErrorCount     int          `json:"error_count"`
	Summary        *PushSummary `json:"summary,omitempty"`
}

// AcquirePushParams описывает попытку занять слот.
type AcquirePushParams struct {
	Date           string
	Slot           int
	TipID          string
	CandidateCount int
	Now            time.Time
	// StaleAfter задаёт, через сколько запись в статусе sending считается брошенной.
	StaleAfter time.Duration
}

// RecipientError описывает ошибку доставки конкретному получателю.
type RecipientError struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// SummaryKind задаёт вариант сводки.
type SummaryKind string

const (
	SummarySuccess SummaryKind = "success"
	SummaryFailure SummaryKind = "failure"
)

// PushSuccess содержит сводку завершённой рассылки.
type PushSuccess struct {
	TipID          string           `json:"tip_id"`
	Headline       string           `json:"headline"`
	Title          string           `json:"title"`
	Recipients     int              `json:"recipients"`
	InvalidTokens  int              `json:"invalid_tokens"`
	Sent           int              `json:"sent"`
	Errors         int              `json:"errors"`
	ErrorSample    []RecipientError `json:"error_sample,omitempty"`
	DurationMS     int64            `json:"duration_ms"`
	CandidateCount int              `json:"candidate_count"`
}

// PushFailure содержит сводку рассылки, упавшей до получения итогов.
type PushFailure struct {
	Stage      string `json:"stage"`
	Error      string `json:"error"`
	DurationMS int64  `json:"duration_ms"`
}

// PushSummary — размеченный вариант сводки журнала рассылок.
type PushSummary struct {
	Kind    SummaryKind  `json:"kind"`
	Success *PushSuccess `json:"success,omitempty"`
	Failure *PushFailure `json:"failure,omitempty"`
}

// NewPushSuccess строит сводку успеха, обрезая выборку ошибок.
func NewPushSuccess(s PushSuccess) PushSummary {
	if len(s.ErrorSample) > MaxStoredPushErrors {
		s.ErrorSample = append([]RecipientError(nil), s.ErrorSample[:MaxStoredPushErrors]...)
	}
	return PushSummary{Kind: SummarySuccess, Success: &s}
}

// NewPushFailure строит сводку неудачи.
func NewPushFailure(stage string, err error, duration time.Duration) PushSummary {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return PushSummary{Kind: SummaryFailure, Failure: &PushFailure{Stage: stage, Error: msg, DurationMS: duration.Milliseconds()}}
}

// Validate проверяет, что заполнен ровно тот вариант, который указан в Kind.
func (s PushSummary) Validate() error {
	switch s.Kind {
	case SummarySuccess:
		if s.Success == nil || s.Failure != nil {
			return fmt.Errorf("%w: success variant expected", ErrInvalidSummary)
		}
		if len(s.Success.ErrorSample) > MaxStoredPushErrors {
			return fmt.Errorf("%w: error sample exceeds %d", ErrInvalidSummary, MaxStoredPushErrors)
		}
	case SummaryFailure:
		if s.Failure == nil || s.Success != nil {
			return fmt.Errorf("%w: failure variant expected", ErrInvalidSummary)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSummary, s.Kind)
	}
	return nil
}

// MarshalSummary проверяет и сериализует сводку для хранения.
func MarshalSummary(s PushSummary) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// UnmarshalSummary разбирает сохранённую сводку. Пустое значение даёт nil.
func UnmarshalSummary(raw []byte) (*PushSummary, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s PushSummary
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// RunStatus описывает итог вызова оркестратора.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusSkipped RunStatus = "skipped"
	RunStatusFailed  RunStatus = "failed"
)

// Коды причин пропуска.
const (
	SkipOutOfWindow      = "out_of_window"
	SkipEmptyCandidates  = "empty_candidate_set"
	SkipAlreadyCompleted = "already_completed"
	SkipInFlight         = "in_flight"
	SkipAlreadyEnriched  = "already_enriched"
	SkipNoDrafts         = "no_drafts"
)

// RunInfo содержит общие для всех стадий поля результата.
type RunInfo struct {
	Status     RunStatus `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`
}

// StartRun фиксирует время начала.
func StartRun(now time.Time) RunInfo {
	return RunInfo{StartedAt: now}
}

// Finish заполняет статус и длительность.
func (r *RunInfo) Finish(status RunStatus, reason string, err error, now time.Time) {
	r.Status = status
	r.Reason = reason
	if err != nil {
		r.Error = err.Error()
	}
	r.FinishedAt = now
	r.DurationMS = now.Sub(r.StartedAt).Milliseconds()
}

// JobResult содержит результат стадии генерации.
type JobResult struct {
	RunInfo
	JobID     string   `json:"job_id"`
	TipsCount int      `json:"tips_count"`
	TipIDs    []string `json:"tip_ids,omitempty"`
	Dropped   int      `json:"dropped"`
}

// ItemResult описывает итог обогащения одного совета.
type ItemResult struct {
	TipID    string    `json:"tip_id"`
	Status   RunStatus `json:"status"`
	Reason   string    `json:"reason,omitempty"`
	Error    string    `json:"error,omitempty"`
	HasImage bool      `json:"has_image"`
	HasLink  bool      `json:"has_link"`
}

// EnrichmentResult содержит результат стадии обогащения.
type EnrichmentResult struct {
	RunInfo
	Processed int          `json:"processed"`
	Published int          `json:"published"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
	Items     []ItemResult `json:"items"`
}

// Add учитывает итог одного совета.
func (r *EnrichmentResult) Add(item ItemResult) {
	r.Items = append(r.Items, item)
	switch item.Status {
	case RunStatusSuccess:
		r.Processed++
		r.Published++
	case RunStatusSkipped:
		r.Skipped++
	case RunStatusFailed:
		r.Processed++
		r.Failed++
	}
}

// DispatchResult содержит результат рассылки для слота.
type DispatchResult struct {
	RunInfo
	Date           string       `json:"date,omitempty"`
	Slot           int          `json:"slot"`
	TipID          string       `json:"tip_id,omitempty"`
	CandidateCount int          `json:"candidate_count"`
	SentCount      int          `json:"sent_count"`
	ErrorCount     int          `json:"error_count"`
	Previous       *PushSummary `json:"previous,omitempty"`
}
