// Package middleware содержит HTTP middleware служебного API бота.
package middleware

import (
	"crypto/hmac"
	"net/http"
	"strings"
)

// AuthMiddleware проверяет статический bearer-токен служебного API.
// Пустой токен отключает проверку: API остаётся открытым для локальной
// отладки за файрволом.
type AuthMiddleware struct {
	token []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным токеном.
func NewAuthMiddleware(token string) *AuthMiddleware {
	return &AuthMiddleware{token: []byte(token)}
}

// Middleware проверяет заголовок Authorization и отклоняет запросы с неверным токеном.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(a.token) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		got, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || !hmac.Equal([]byte(got), a.token) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
