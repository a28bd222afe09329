// Package middleware: обёртки HTTP-обработчиков служебного сервера (id запроса, паника, access-лог).
package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/logs"
)

const RequestIDHeader = "X-Request-Id"

type reqIDKey struct{}

// чужой id принимаем только короткий и из безопасных символов: он попадает в логи
var clientReqID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// RequestID берёт id из заголовка клиента или выдаёт новый uuid
// и кладёт его в контекст и в ответ.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !clientReqID.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, reqIDKey{}, id)
}

// RequestIDFrom: пустая строка, если запрос не прошёл через RequestID.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(reqIDKey{}).(string)
	return id
}

func GetRequestID(r *http.Request) string { return RequestIDFrom(r.Context()) }

// entry — логгер запроса с reqid, методом и URI.
func entry(r *http.Request) *logrus.Entry {
	return logs.Logger.WithFields(logrus.Fields{
		"reqid":  GetRequestID(r),
		"method": r.Method,
		"uri":    r.RequestURI,
	})
}
