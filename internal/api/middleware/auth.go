package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"tradecore/pkg/crypto"
)

// Auth - middleware для аутентификации запросов к API
//
// Назначение:
// Проверяет bearer-токен из заголовка Authorization против bcrypt-хеша
// (API_TOKEN_HASH). Успешные проверки кешируются в TokenVerifier, поэтому
// bcrypt выполняется один раз на токен.
//
// Источники токена:
// - Authorization: Bearer <token>
// - X-API-Token: <token> (вебхуки, где нельзя задать Authorization)
// - ?token=<token> (только для WebSocket: браузер не умеет задавать заголовки)
//
// Если хеш не задан, аутентификация выключена и все запросы проходят.
func Auth(verifier *crypto.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !verifier.Enabled() || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing API token")
				return
			}
			if !verifier.Verify(token) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	if h := r.Header.Get("X-API-Token"); h != "" {
		return strings.TrimSpace(h)
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("token")
	}
	return ""
}

// DebugAuth - middleware для защиты /debug/pprof
//
// HTTP Basic Authentication с constant-time сравнением.
// Пустые credentials означают, что debug endpoints выключены (403).
func DebugAuth(username, password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if username == "" || password == "" {
				http.Error(w, "Debug endpoints disabled. Set DEBUG_USERNAME and DEBUG_PASSWORD.", http.StatusForbidden)
				return
			}

			user, pass, ok := r.BasicAuth()
			userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
			passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1
			if !ok || !userMatch || !passMatch {
				w.Header().Set("WWW-Authenticate", `Basic realm="Debug endpoints"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
