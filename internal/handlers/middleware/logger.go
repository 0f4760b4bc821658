package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type requestLogger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// LoggerMiddleware logs every request once it is served
// 5xx are logged as errors, 4xx (rejections included) as warnings
func LoggerMiddleware(l requestLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			log := l.Info
			switch {
			case status >= http.StatusInternalServerError:
				log = l.Error
			case status >= http.StatusBadRequest:
				log = l.Warn
			}

			log("HTTP request served",
				"method", r.Method,
				"uri", r.RequestURI,
				"client", ClientAddr(r),
				"request_id", chimw.GetReqID(r.Context()),
				"status", status,
				"size", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}
