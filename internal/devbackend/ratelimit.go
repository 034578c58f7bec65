package devbackend

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginAttempt es un intento de login: la cuenta y el origen que declara el cliente.
type LoginAttempt struct {
	Email  string
	Origin string
}

// key agrupa por cuenta y origen; sin origen todos los intentos de la cuenta comparten cupo.
func (a LoginAttempt) key() string {
	email := normalizeEmail(a.Email)
	if email == "" {
		return ""
	}
	origin := strings.ToLower(strings.TrimSpace(a.Origin))
	if origin == "" {
		origin = "-"
	}
	return email + "|" + origin
}

// LoginLimiter acota los intentos de login dentro de una ventana. Cuando el
// cupo se agota devuelve ok=false y el tiempo que falta para el proximo intento.
type LoginLimiter interface {
	Reserve(a LoginAttempt) (retryAfter time.Duration, ok bool)
}

type memoryLoginLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	now    func() time.Time
	hits   map[string][]time.Time
}

func NewMemoryLoginLimiter(window time.Duration, max int) LoginLimiter {
	return newMemoryLoginLimiter(window, max, time.Now)
}

func newMemoryLoginLimiter(window time.Duration, max int, now func() time.Time) *memoryLoginLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &memoryLoginLimiter{
		window: window,
		max:    max,
		now:    now,
		hits:   make(map[string][]time.Time),
	}
}

func (l *memoryLoginLimiter) Reserve(a LoginAttempt) (time.Duration, bool) {
	key := a.key()
	if key == "" {
		return l.window, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	kept := l.hits[key][:0]
	for _, ts := range l.hits[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.hits[key] = kept
		// Se libera un lugar cuando el intento mas viejo sale de la ventana.
		return kept[0].Add(l.window).Sub(now), false
	}
	l.hits[key] = append(kept, now)
	return 0, true
}

// Ventana fija: el primer intento abre el contador con su expiracion en ms y
// cada llamada devuelve {intentos, ms restantes}.
const redisLoginReserveScript = `
local current = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if current == 1 or ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type redisLoginLimiter struct {
	client  redisEvaler
	window  time.Duration
	max     int
	prefix  string
	timeout time.Duration
}

// NewRedisLoginLimiter comparte el contador entre instancias del backend.
// Si Redis falla deja pasar el intento.
func NewRedisLoginLimiter(client *redis.Client, window time.Duration, max int) LoginLimiter {
	if client == nil {
		return nil
	}
	return newRedisLoginLimiter(client, window, max)
}

func newRedisLoginLimiter(client redisEvaler, window time.Duration, max int) *redisLoginLimiter {
	if window < time.Millisecond {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisLoginLimiter{
		client:  client,
		window:  window,
		max:     max,
		prefix:  "gas-auth:login:",
		timeout: 500 * time.Millisecond,
	}
}

func (l *redisLoginLimiter) Reserve(a LoginAttempt) (time.Duration, bool) {
	key := a.key()
	if key == "" {
		return l.window, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	res, err := l.client.Eval(ctx, redisLoginReserveScript, []string{l.prefix + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil || len(res) != 2 {
		return 0, true
	}
	if res[0] <= int64(l.max) {
		return 0, true
	}
	return time.Duration(res[1]) * time.Millisecond, false
}
