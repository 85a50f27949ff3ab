// Package httpapi описывает HTTP-маршруты cron-эндпоинтов и мобильного клиента.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Aryainguz/tldev-backend/internal/domain"
	apphttp "github.com/Aryainguz/tldev-backend/internal/infra/http"
	"github.com/Aryainguz/tldev-backend/internal/usecase/actions"
	"github.com/Aryainguz/tldev-backend/internal/usecase/dispatch"
	"github.com/Aryainguz/tldev-backend/internal/usecase/feed"
	"github.com/Aryainguz/tldev-backend/internal/usecase/pipeline"
	"github.com/Aryainguz/tldev-backend/internal/usecase/slot"
	"github.com/Aryainguz/tldev-backend/internal/usecase/users"
)

const maxBodyBytes = 64 << 10

// Deps перечисляет сервисы маршрутов. Location задаёт дату по умолчанию для журнала рассылок.
type Deps struct {
	Pipeline   *pipeline.Service
	Dispatch   *dispatch.Service
	Feed       *feed.Service
	Actions    *actions.Service
	Users      *users.Service
	Jobs       domain.JobRepo
	Ledger     domain.DailyPushRepo
	CronSecret string
	Location   *time.Location
}

// Handlers содержит обработчики маршрутов.
type Handlers struct {
	deps Deps
	log  zerolog.Logger
}

// New создаёт обработчики.
func New(deps Deps, logger zerolog.Logger) *Handlers {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &Handlers{deps: deps, log: logger.With().Str("component", "httpapi").Logger()}
}

// Register подключает маршруты к роутеру.
func (h *Handlers) Register(r chi.Router) {
	r.Route("/api/cron", func(r chi.Router) {
		r.Use(apphttp.CronAuthMiddleware(h.deps.CronSecret))
		r.Post("/generate", h.generate)
		r.Post("/enrich", h.enrich)
		r.Post("/dispatch", h.dispatchNow)
		r.Post("/dispatch/{date}/{slot}", h.dispatchSlot)
		r.Get("/jobs", h.listJobs)
		r.Get("/pushes", h.listPushes)
	})
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apphttp.UserMiddleware)
		r.Get("/feed", h.listFeed)
		r.Get("/tips/{id}", h.getTip)
		r.Post("/users/device", h.registerDevice)
		r.Group(func(r chi.Router) {
			r.Use(apphttp.RequireUser)
			r.Post("/tips/{id}/actions/{kind}", h.applyAction)
			r.Put("/users/me/push-token", h.updatePushToken)
			r.Put("/users/me/interests", h.updateInterests)
			r.Get("/users/me/saved", h.listSaved)
		})
	})
}

// writeRun отдаёт результат стадии: failed превращается в 500, остальные статусы в 200.
func writeRun(w http.ResponseWriter, status domain.RunStatus, v any) {
	code := http.StatusOK
	if status == domain.RunStatusFailed {
		code = http.StatusInternalServerError
	}
	apphttp.WriteJSON(w, code, v)
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New("invalid " + name)
	}
	return v, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

func (h *Handlers) generate(w http.ResponseWriter, r *http.Request) {
	count, err := queryInt(r, "count")
	if err != nil {
		apphttp.WriteError(w, http.StatusBadRequest, err)
		return
	}
	res := h.deps.Pipeline.RunGeneration(r.Context(), count)
	writeRun(w, res.Status, res)
}

func (h *Handlers) enrich(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		apphttp.WriteError(w, http.StatusBadRequest, err)
		return
	}
	res := h.deps.Pipeline.RunEnrichment(r.Context(), pipeline.EnrichRequest{TipID: r.URL.Query().Get("tip_id"), Limit: limit})
	writeRun(w, res.Status, res)
}

func (h *Handlers) dispatchNow(w http.ResponseWriter, r *http.Request) {
	res := h.deps.Dispatch.RunDispatchNow(r.Context())
	writeRun(w, res.Status, res)
}

func (h *Handlers) dispatchSlot(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if err := slot.ParseDate(date); err != nil {
		apphttp.WriteError(w, http.StatusBadRequest, err)
		return
	}
	idx, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil || idx < 0 {
		apphttp.WriteError(w, http.StatusBadRequest, errors.New("invalid slot"))
		return
	}
	res := h.deps.Dispatch.RunDispatchForSlot(r.Context(), date, idx)
	writeRun(w, res.Status, res)
}

func (h *Handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		apphttp.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if limit == 0 || limit > 100 {
		limit = 20
	}
	jobs, err := h.deps.Jobs.ListRecentJobs(r.Context(), limit)
	if err != nil {
		h.internal(w, err)
		return
	}
	apphttp.WriteJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (h *Handlers) listPushes(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().In(h.deps.Location).Format(slot.DateLayout)
	}
	if err := slot.ParseDate(date); err != nil {
		apphttp.WriteError(w, http.StatusBadRequest, err)
		return
	}
	rows, err := h.deps.Ledger.ListDailyPushes(r.Context(), date)
	if err != nil {
		h.internal(w, err)
		return
	}
	apphttp.WriteJSON(w, http.StatusOK, map[string]any{"date": date, "pushes": rows})
}

func (h *Handlers) listFeed(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		apphttp.WriteError(w, http.StatusBadRequest, err)
		return
	}
	q := r.URL.Query()
	page, err := h.deps.Feed.List(r.Context(), feed.Query{
		UserID:   apphttp.UserID(r.Context()),
		Cursor:   q.Get("cursor"),
		Limit:    limit,
		Category: q.Get("category"),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	apphttp.WriteJSON(w, http.StatusOK, page)
}

func (h *Handlers) getTip(w http.ResponseWriter, r *http.Request) {
	tip, err := h.deps.Feed.Get(r.Context(), apphttp.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	apphttp.WriteJSON(w, http.StatusOK, tip)
}

func (h *Handlers) applyAction(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.Actions.Apply(r.Context(), apphttp.UserID(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "kind"))
	if err != nil {
		h.fail(w, err)
		return
	}
	apphttp.WriteJSON(w, http.StatusOK, res)
}

func (h *Handlers) registerDevice(w http.ResponseWriter, r *http.Request) {
	var body users.Device
	if err := decode(w, r, &body); err != nil {
		apphttp.WriteError(w, http.StatusBadRequest, err)
		return
	}
	user, err := h.deps.Users.RegisterDevice(r.Context(), body)
	if err != nil {
		h.fail(w, err)
		return
	}
	apphttp.WriteJSON(w, http.StatusOK, user)
}

type pushTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

func (h *Handlers) updatePushToken(w http.ResponseWriter, r *http.Request) {
	var body pushTokenRequest
	if err := decode(w, r, &body); err != nil {
		apphttp.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.deps.Users.UpdatePushToken(r.Context(), apphttp.UserID(r.Context()), body.Token, body.Platform); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type interestsRequest struct {
	Interests []string `json:"interests"`
}

func (h *Handlers) updateInterests(w http.ResponseWriter, r *http.Request) {
	var body interestsRequest
	if err := decode(w, r, &body); err != nil {
		apphttp.WriteError(w, http.StatusBadRequest, err)
		return
	}
	interests, err := h.deps.Users.UpdateInterests(r.Context(), apphttp.UserID(r.Context()), body.Interests)
	if err != nil {
		h.fail(w, err)
		return
	}
	apphttp.WriteJSON(w, http.StatusOK, interestsRequest{Interests: interests})
}

func (h *Handlers) listSaved(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		apphttp.WriteError(w, http.StatusBadRequest, err)
		return
	}
	tips, err := h.deps.Feed.ListSaved(r.Context(), apphttp.UserID(r.Context()), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	apphttp.WriteJSON(w, http.StatusOK, map[string]any{"tips": tips})
}

// fail переводит доменные ошибки в HTTP-статусы.
func (h *Handlers) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTipNotFound), errors.Is(err, domain.ErrUserNotFound):
		apphttp.WriteError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrInvalidActionKind), errors.Is(err, feed.ErrInvalidCursor), errors.Is(err, users.ErrInvalidDevice),
		errors.Is(err, actions.ErrInvalidUserID):
		apphttp.WriteError(w, http.StatusBadRequest, err)
	default:
		h.internal(w, err)
	}
}

func (h *Handlers) internal(w http.ResponseWriter, err error) {
	h.log.Error().Err(err).Msg("httpapi: request failed")
	apphttp.WriteError(w, http.StatusInternalServerError, errors.New("internal error"))
}
