package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/chatsync/internal/logger"
)

// RequestLog logs every gateway request: method, path, status and elapsed
// time (asynchronously, never blocking the handler).
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrap := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrap, r)
		logger.LogDuration(fmt.Sprintf("http %s %s %d", r.Method, r.URL.Path, wrap.status), start)
	})
}
