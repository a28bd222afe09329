package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/metrics"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) { w.status = code; w.ResponseWriter.WriteHeader(code) }
func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// LoggerMW пишет строку access-лога и, если m != nil, длительность запроса в гистограмму.
func LoggerMW(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(sw, r)
			d := time.Since(start)

			m.ObserveRequest(r.Method, sw.code(), d)
			entry(r).WithFields(logrus.Fields{
				"status": sw.code(),
				"bytes":  sw.bytes,
				"dur":    d.String(),
				"ip":     r.RemoteAddr,
				"ua":     r.UserAgent(),
			}).Info("http request")
		})
	}
}
