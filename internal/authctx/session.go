package authctx

import (
	"context"
	"strings"
)

// SessionHeader заголовок, в котором клиент передаёт идентификатор сессии
const SessionHeader = "x-session-id"

type ctxKeySessionID struct{}

// WithSessionID сохраняет идентификатор сессии в контексте
// Пустой идентификатор не сохраняется
func WithSessionID(ctx context.Context, sid string) context.Context {
	sid = strings.TrimSpace(sid)
	if sid == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeySessionID{}, sid)
}

// SessionIDFromContext возвращает идентификатор сессии, если он был установлен
func SessionIDFromContext(ctx context.Context) (string, bool) {
	sid, ok := ctx.Value(ctxKeySessionID{}).(string)
	return sid, ok && sid != ""
}
