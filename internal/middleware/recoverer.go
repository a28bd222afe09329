package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/models"
)

// Recoverer превращает панику обработчика в 500 application/problem+json.
// http.ErrAbortHandler пробрасывается дальше: это штатный обрыв ответа.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			entry(r).WithField("stack", string(debug.Stack())).Errorf("handler panic: %v", rec)
			models.WriteProblem(w, r, http.StatusInternalServerError,
				"unexpected server error, search logs by reqid",
				map[string]any{"reqid": GetRequestID(r)})
		}()
		next.ServeHTTP(w, r)
	})
}
