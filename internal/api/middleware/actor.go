// actor.go — middleware определения автора изменений.
// Аутентификация не выполняется: имя пользователя передаётся
// заголовком X-User-Name (проставляется обратным прокси) и попадает
// в историю изменений записей.
package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// HeaderUserName — заголовок с именем пользователя.
const HeaderUserName = "X-User-Name"

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeyActor — ключ контекста для имени пользователя.
const ContextKeyActor contextKey = "actor"

// maxActorLen — максимальная длина имени пользователя в рунах.
const maxActorLen = 100

// Actor возвращает middleware, помещающий имя пользователя из
// заголовка X-User-Name в контекст запроса. Значение может быть
// URL-кодировано (для кириллицы в заголовках).
func Actor() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := parseActor(r.Header.Get(HeaderUserName))
			if actor != "" {
				r = r.WithContext(context.WithValue(r.Context(), ContextKeyActor, actor))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ActorFromContext извлекает имя пользователя из контекста.
// Пустая строка означает, что автор не указан.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(ContextKeyActor).(string)
	return actor
}

func parseActor(raw string) string {
	if decoded, err := url.QueryUnescape(raw); err == nil {
		raw = decoded
	}
	raw = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, raw)
	raw = strings.TrimSpace(raw)

	if runes := []rune(raw); len(runes) > maxActorLen {
		raw = string(runes[:maxActorLen])
	}
	return raw
}
