// Package middleware содержит HTTP middleware банковской системы.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/zeyadhelal16/bank-system/internal/model"
)

type contextKey string

const (
	actorKey contextKey = "actor"
	tokenKey contextKey = "token"
)

// SessionStore описывает контракт хранилища сессий, используемый middleware.
type SessionStore interface {
	Get(token string) (model.Actor, bool)
}

// AuthMiddleware проверяет bearer-токен запроса по хранилищу сессий.
type AuthMiddleware struct {
	sessions SessionStore
}

// NewAuthMiddleware создаёт AuthMiddleware поверх указанного хранилища сессий.
func NewAuthMiddleware(sessions SessionStore) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions}
}

// Middleware извлекает токен из заголовка Authorization и кладёт принципала
// активной сессии в контекст запроса. Запросы без действующей сессии отклоняются.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || scheme != "Bearer" || token == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		actor, ok := a.sessions.Get(token)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), actorKey, actor)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetActorFromContext извлекает принципала из контекста запроса.
func GetActorFromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(model.Actor)
	return actor, ok
}

// GetTokenFromContext извлекает сессионный токен из контекста запроса.
func GetTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok
}
