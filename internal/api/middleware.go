package api

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

func (s *Server) apiAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Keep health checks simple for probes and local diagnostics.
		if r.URL.Path == "/api/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get(s.cfg.APIAuth.TokenHeader)
		if token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.APIAuth.Token)) == 1 {
			next.ServeHTTP(w, r)
			return
		}

		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

// writeAuthMiddleware protects mutating routes with signed bearer tokens.
// With no write secret configured the write API is disabled outright.
func (s *Server) writeAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIAuth.WriteSecret == "" {
			http.Error(w, "Write API disabled", http.StatusForbidden)
			return
		}

		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, prefix) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if err := verifyWriteToken(s.cfg.APIAuth.WriteSecret, s.cfg.APIAuth.WriteIssuer, header[len(prefix):]); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := s.clientIP(r)
		limiter := s.getRateLimiter(ip)
		if !limiter.Allow() {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) clientIP(r *http.Request) string {
	peerIP := peerIPFromRemoteAddr(r.RemoteAddr)
	trustProxy := peerIP != nil && (peerIP.IsLoopback() || peerIP.IsPrivate())
	if s != nil && s.cfg != nil && s.cfg.API.TrustProxy {
		trustProxy = true
	}

	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" && trustProxy {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	realIP := r.Header.Get("X-Real-IP")
	if realIP != "" && trustProxy {
		return realIP
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func peerIPFromRemoteAddr(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		// remoteAddr may already be just a host.
		host = remoteAddr
	}
	return net.ParseIP(host)
}

func (s *Server) getRateLimiter(ip string) *rate.Limiter {
	s.rateLimitMu.Lock()
	defer s.rateLimitMu.Unlock()

	if entry, ok := s.rateLimiters[ip]; ok {
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	ratePerMinute := 60
	if s.cfg.API.RateLimitPerMinute > 0 {
		ratePerMinute = s.cfg.API.RateLimitPerMinute
	}
	limit := rate.Limit(float64(ratePerMinute) / 60.0)
	burst := ratePerMinute
	limiter := rate.NewLimiter(limit, burst)
	s.rateLimiters[ip] = &rateLimiterEntry{limiter: limiter, lastSeen: time.Now()}

	if len(s.rateLimiters) > 1000 {
		cutoff := time.Now().Add(-5 * time.Minute)
		for key, entry := range s.rateLimiters {
			if entry.lastSeen.Before(cutoff) {
				delete(s.rateLimiters, key)
			}
		}
	}

	return limiter
}
