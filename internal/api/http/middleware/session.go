package middleware

import (
	"net/http"

	"github.com/shestoi/stockflow/internal/authctx"
)

// WithSessionID кладёт x-session-id в контекст, если заголовок передан
// Запросы без сессии пропускаются дальше: оформить заказ можно и без резервов
func WithSessionID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := authctx.WithSessionID(r.Context(), r.Header.Get(authctx.SessionHeader))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSessionID отвечает 401, если в контексте нет сессии
// Ставится после WithSessionID на маршруты резервирования
func RequireSessionID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := authctx.SessionIDFromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"session_id is required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
