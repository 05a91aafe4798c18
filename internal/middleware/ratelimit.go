package middleware

import (
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const idleClientTTL = 10 * time.Minute

// RateLimiter is a per-client token bucket: requests per window, with a
// burst of the full window allowance.
type RateLimiter struct {
	limit  rate.Limit
	burst  int
	window time.Duration
	logger logrus.FieldLogger
	now    func() time.Time
	// proxies: адреса, которым разрешено передавать X-Forwarded-For
	proxies []netip.Prefix

	mu      sync.Mutex
	clients map[string]*visitor
	swept   time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter returns a disabled limiter when requests or window is not positive.
func NewRateLimiter(requests int, window time.Duration, logger logrus.FieldLogger) *RateLimiter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	rl := &RateLimiter{
		logger:  logger,
		now:     time.Now,
		clients: make(map[string]*visitor),
	}
	if requests > 0 && window > 0 {
		rl.limit = rate.Limit(float64(requests) / window.Seconds())
		rl.burst = requests
		rl.window = window
	}
	return rl
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if rl == nil || rl.burst == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.ClientKey(r)
		res := rl.reserve(key)
		if !res.OK() {
			rl.reject(w, r, key, rl.window)
			return
		}
		if delay := res.DelayFrom(rl.now()); delay > 0 {
			res.CancelAt(rl.now())
			rl.reject(w, r, key, delay)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) reject(w http.ResponseWriter, r *http.Request, key string, wait time.Duration) {
	rl.logger.WithFields(logrus.Fields{
		"client": key,
		"path":   r.URL.Path,
	}).Warn("rate limit exceeded")
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
}

func (rl *RateLimiter) reserve(key string) *rate.Reservation {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.swept) > idleClientTTL {
		for k, v := range rl.clients {
			if now.Sub(v.lastSeen) > idleClientTTL {
				delete(rl.clients, k)
			}
		}
		rl.swept = now
	}

	v, ok := rl.clients[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = v
	}
	v.lastSeen = now
	return v.limiter.ReserveN(now, 1)
}

// TrustProxies sets the addresses or CIDR ranges whose X-Forwarded-For
// header is honoured. Entries that do not parse are skipped.
func (rl *RateLimiter) TrustProxies(proxies ...string) *RateLimiter {
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(p); err == nil {
			rl.proxies = append(rl.proxies, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(p)
		if err != nil {
			rl.logger.WithField("proxy", p).Warn("ignoring invalid trusted proxy")
			continue
		}
		addr = addr.Unmap()
		rl.proxies = append(rl.proxies, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return rl
}

func (rl *RateLimiter) trusted(host string) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range rl.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientKey returns the remote host. X-Forwarded-For is consulted only when
// the connection comes from a trusted proxy; the hops are walked right to
// left and the first untrusted one is the client.
func (rl *RateLimiter) ClientKey(r *http.Request) string {
	host := remoteHost(r)
	if !rl.trusted(host) {
		return host
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !rl.trusted(hop) {
			return hop
		}
		host = hop
	}
	return host
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	return r.RemoteAddr
}
