package middleware

import (
	"net"
	"net/http"
	"strings"
)

// GatewayAuth admits requests carrying X-Gateway-Secret == secret, or any
// request from a loopback/private address when no secret is configured. The
// gateway normally sits on localhost next to the console; the secret matters
// only when it is exposed on a shared network.
func GatewayAuth(secret string) func(http.Handler) http.Handler {
	secret = strings.TrimSpace(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret != "" {
				if r.Header.Get("X-Gateway-Secret") == secret {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				return
			}
			if isPrivateIP(clientIP(r)) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		})
	}
}

func clientIP(r *http.Request) string {
	ip := r.Header.Get("X-Real-Ip")
	if ip == "" {
		ip = r.Header.Get("X-Forwarded-For")
		if idx := strings.Index(ip, ","); idx > 0 {
			ip = strings.TrimSpace(ip[:idx])
		}
	}
	if ip == "" {
		ip, _, _ = net.SplitHostPort(r.RemoteAddr)
		if ip == "" {
			ip = r.RemoteAddr
		}
	}
	return ip
}

func isPrivateIP(s string) bool {
	ip := net.ParseIP(s)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate()
}
