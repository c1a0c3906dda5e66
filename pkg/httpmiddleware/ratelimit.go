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

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Decision is the outcome of one Limiter.Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per key.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (Decision, error)
	Limit() int
}

// RateLimitConfig configures the RateLimit middleware.
type RateLimitConfig struct {
	Limiter Limiter
	// KeyFunc extracts the rate limit key from a request. The client IP is
	// used when nil.
	KeyFunc func(*http.Request) string
}

// RateLimit rejects requests over the limiter's budget with 429. Every
// response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset. A failing limiter lets the request through.
func RateLimit(cfg RateLimitConfig) Middleware {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientIP
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			d, err := cfg.Limiter.Allow(r.Context(), keyFunc(r), now)
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limiter failed", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limiter.Limit()))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				retryAfter := max(d.ResetAt.Sub(now), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// remote address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// window tracks request counts across two adjacent windows.
type window struct {
	prevCount float64
	currCount float64
	currStart time.Time
}

var _ Limiter = (*SlidingWindow)(nil)

// SlidingWindow is an in-process Limiter. The previous window's count is
// weighted by how much of it still overlaps the sliding window.
type SlidingWindow struct {
	max    int
	period time.Duration

	mu      sync.Mutex
	windows map[string]*window
}

// NewSlidingWindow allows max requests per period and key.
func NewSlidingWindow(max int, period time.Duration) *SlidingWindow {
	return &SlidingWindow{
		max:     max,
		period:  period,
		windows: make(map[string]*window),
	}
}

func (l *SlidingWindow) Limit() int { return l.max }

func (l *SlidingWindow) Allow(_ context.Context, key string, now time.Time) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		w = &window{currStart: now.Truncate(l.period)}
		l.windows[key] = w
	}

	if since := now.Sub(w.currStart); since >= l.period {
		w.prevCount = w.currCount
		if since >= 2*l.period {
			w.prevCount = 0
		}
		w.currCount = 0
		w.currStart = now.Truncate(l.period)
	}

	overlap := max(1-now.Sub(w.currStart).Seconds()/l.period.Seconds(), 0)
	effective := w.prevCount*overlap + w.currCount
	d := Decision{ResetAt: w.currStart.Add(l.period)}
	if effective >= float64(l.max) {
		return d, nil
	}

	w.currCount++
	d.Allowed = true
	d.Remaining = max(int(float64(l.max)-effective-1), 0)
	return d, nil
}

// Run evicts idle keys every two periods until ctx is done.
func (l *SlidingWindow) Run(ctx context.Context) {
	ticker := time.NewTicker(2 * l.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.evict(now)
		}
	}
}

func (l *SlidingWindow) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if now.Sub(w.currStart) >= 2*l.period {
			delete(l.windows, key)
		}
	}
}
