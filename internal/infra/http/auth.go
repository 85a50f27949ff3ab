package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

var (
	// ErrCronSecretMissing возвращается, если секрет планировщика не настроен.
	ErrCronSecretMissing = errors.New("cron secret is not configured")
	// ErrUnauthorized возвращается, если учётные данные не совпали.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUserRequired возвращается, если запрос требует идентифицированного пользователя.
	ErrUserRequired = errors.New("user id required")
)

// UserIDHeader идентифицирует пользователя мобильного клиента.
const UserIDHeader = "X-User-ID"

type ctxKey int

const userIDKey ctxKey = iota

// CronAuthMiddleware пропускает только запросы с заголовком Authorization: Bearer <secret>.
// Без настроенного секрета все запросы отклоняются.
func CronAuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				WriteError(w, http.StatusServiceUnavailable, ErrCronSecretMissing)
				return
			}
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				WriteError(w, http.StatusUnauthorized, ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserMiddleware кладёт идентификатор пользователя из заголовка в контекст.
func UserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(UserIDHeader)); id != "" {
			r = r.WithContext(WithUserID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser отклоняет запросы без пользователя.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserID(r.Context()) == "" {
			WriteError(w, http.StatusUnauthorized, ErrUserRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithUserID сохраняет пользователя в контексте.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID возвращает пользователя из контекста.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// RequestID возвращает request ID из контекста chi.
func RequestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// ErrorResponse описывает ошибку.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteError отправляет JSON с ошибкой.
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteJSON(w, status, ErrorResponse{Error: err.Error()})
}

// WriteJSON отправляет JSON-ответ.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
