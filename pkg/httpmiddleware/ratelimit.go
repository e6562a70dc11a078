package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ThrottleConfig limits how often one client may hit a route.
type ThrottleConfig struct {
	// Max requests per Window. A non-positive Max disables throttling.
	Max    int
	Window time.Duration
	// KeyFunc identifies the client. Defaults to RemoteIP, or to ClientIP
	// when TrustProxyHeaders is set.
	KeyFunc func(*http.Request) string
	// TrustProxyHeaders allows the default key to come from client supplied
	// headers. Only safe behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

type window struct {
	start time.Time
	count int
}

type throttle struct {
	cfg ThrottleConfig
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

func newThrottle(cfg ThrottleConfig) *throttle {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = RemoteIP
		if cfg.TrustProxyHeaders {
			cfg.KeyFunc = ClientIP
		}
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &throttle{cfg: cfg, now: time.Now, windows: make(map[string]*window)}
}

// take counts one request for key and reports whether it is allowed along
// with the end of the current window.
func (t *throttle) take(key string) (bool, time.Time) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.windows[key]
	if !ok || now.Sub(w.start) >= t.cfg.Window {
		w = &window{start: now}
		t.windows[key] = w
	}
	reset := w.start.Add(t.cfg.Window)
	if w.count >= t.cfg.Max {
		return false, reset
	}
	w.count++
	return true, reset
}

func (t *throttle) evict() {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, w := range t.windows {
		if now.Sub(w.start) >= t.cfg.Window {
			delete(t.windows, k)
		}
	}
}

// Throttle rejects clients exceeding cfg.Max requests per window with 429.
// Expired windows are evicted in the background until ctx is done.
func Throttle(ctx context.Context, cfg ThrottleConfig) Middleware {
	if cfg.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	t := newThrottle(cfg)
	go func() {
		ticker := time.NewTicker(t.cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.evict()
			}
		}
	}()
	return t.middleware
}

func (t *throttle) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, reset := t.take(t.cfg.KeyFunc(r))
		if !ok {
			wait := math.Ceil(time.Until(reset).Seconds())
			w.Header().Set("Retry-After", strconv.Itoa(max(int(wait), 0)))
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the remote
// address host. The headers are set by the client unless a trusted proxy
// rewrites them, so never key limits on ClientIP for directly exposed
// servers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}
	return RemoteIP(r)
}

// RemoteIP returns the host of the connection peer address.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
