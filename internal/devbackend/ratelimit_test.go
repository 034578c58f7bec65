package devbackend

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"gas-auth/internal/gas"
)

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time { return c.t }

func TestMemoryLoginLimiter_WindowAndRetryAfter(t *testing.T) {
	clock := &stepClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := newMemoryLoginLimiter(time.Minute, 2, clock.now)
	attempt := LoginAttempt{Email: "a@b.com", Origin: "http://localhost"}

	if _, ok := l.Reserve(attempt); !ok {
		t.Fatalf("expected first attempt allowed")
	}
	clock.t = clock.t.Add(20 * time.Second)
	if _, ok := l.Reserve(LoginAttempt{Email: " A@B.com ", Origin: "HTTP://localhost"}); !ok {
		t.Fatalf("expected second attempt allowed")
	}
	clock.t = clock.t.Add(10 * time.Second)
	wait, ok := l.Reserve(attempt)
	if ok {
		t.Fatalf("expected third attempt blocked")
	}
	if wait != 30*time.Second {
		t.Fatalf("expected wait until oldest attempt leaves the window, got %v", wait)
	}

	clock.t = clock.t.Add(30 * time.Second)
	if _, ok := l.Reserve(attempt); !ok {
		t.Fatalf("expected a slot after the oldest attempt expired")
	}
}

func TestMemoryLoginLimiter_KeyedByEmailAndOrigin(t *testing.T) {
	l := NewMemoryLoginLimiter(time.Minute, 1)
	if _, ok := l.Reserve(LoginAttempt{Email: "a@b.com", Origin: "http://one"}); !ok {
		t.Fatalf("expected first attempt allowed")
	}
	if _, ok := l.Reserve(LoginAttempt{Email: "a@b.com", Origin: "http://one"}); ok {
		t.Fatalf("expected same origin blocked")
	}
	if _, ok := l.Reserve(LoginAttempt{Email: "a@b.com", Origin: "http://two"}); !ok {
		t.Fatalf("another origin has its own budget")
	}
	if _, ok := l.Reserve(LoginAttempt{Email: "c@d.com", Origin: "http://one"}); !ok {
		t.Fatalf("another account has its own budget")
	}
	if _, ok := l.Reserve(LoginAttempt{Email: "  "}); ok {
		t.Fatalf("blank email must be rejected")
	}
}

func TestRedisLoginLimiter_Miniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisLoginLimiter(client, time.Minute, 2)
	attempt := LoginAttempt{Email: "a@b.com", Origin: "http://localhost"}
	for i := 0; i < 2; i++ {
		if _, ok := l.Reserve(attempt); !ok {
			t.Fatalf("attempt %d: expected allowed", i+1)
		}
	}
	wait, ok := l.Reserve(attempt)
	if ok {
		t.Fatalf("expected third attempt blocked")
	}
	if wait <= 0 || wait > time.Minute {
		t.Fatalf("expected wait within the window, got %v", wait)
	}
	if ttl := mr.TTL("gas-auth:login:a@b.com|http://localhost"); ttl <= 0 {
		t.Fatalf("expected counter ttl, got %v", ttl)
	}
	if _, ok := l.Reserve(LoginAttempt{Email: "a@b.com", Origin: "http://other"}); !ok {
		t.Fatalf("another origin has its own counter")
	}

	mr.FastForward(time.Minute)
	if _, ok := l.Reserve(attempt); !ok {
		t.Fatalf("expected counter reset after the window")
	}
	if _, ok := l.Reserve(LoginAttempt{Email: "  "}); ok {
		t.Fatalf("blank email must be rejected")
	}
	if NewRedisLoginLimiter(nil, time.Minute, 1) != nil {
		t.Fatalf("expected nil limiter without client")
	}
}

type failingEvaler struct{}

func (failingEvaler) Eval(ctx context.Context, _ string, _ []string, _ ...interface{}) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	cmd.SetErr(errors.New("eval failed"))
	return cmd
}

func TestRedisLoginLimiter_FailsOpen(t *testing.T) {
	l := newRedisLoginLimiter(failingEvaler{}, time.Minute, 1)
	for i := 0; i < 3; i++ {
		if _, ok := l.Reserve(LoginAttempt{Email: "a@b.com"}); !ok {
			t.Fatalf("redis errors must not block logins")
		}
	}
}

func TestExec_LoginRateLimited(t *testing.T) {
	_, r := newTestBackend(t, Options{Limiter: NewMemoryLoginLimiter(time.Minute, 1)})
	body := map[string]any{"action": "loginUser", "email": "admin@example.com", "password": "bad-pass", "origin": "http://localhost"}

	_, out := postExec(t, r, body)
	if out["message"] != "Credenciales incorrectas" {
		t.Fatalf("unexpected first response %+v", out)
	}
	body["password"] = "admin123"
	rec, out := postExec(t, r, body)
	if rec.Code != http.StatusOK || out["success"] != false {
		t.Fatalf("expected rate limited response, got %d %+v", rec.Code, out)
	}
	msg, _ := out["message"].(string)
	if !strings.Contains(msg, "intenta de nuevo en 60 s") {
		t.Fatalf("expected wait in message, got %q", msg)
	}
	if out["retryAfter"] != float64(60) {
		t.Fatalf("expected retryAfter 60, got %v", out["retryAfter"])
	}

	body["origin"] = "http://elsewhere"
	if _, out := postExec(t, r, body); out["success"] != true {
		t.Fatalf("another origin must not be limited, got %+v", out)
	}
}

func TestIntegration_RateLimitReachesClient(t *testing.T) {
	client := newIntegrationClient(t, Options{Limiter: NewMemoryLoginLimiter(time.Minute, 1)})
	ctx := context.Background()
	if _, err := client.LoginUser(ctx, "usuario@example.com", "usuario123"); err != nil {
		t.Fatalf("first login: %v", err)
	}
	_, err := client.LoginUser(ctx, "usuario@example.com", "usuario123")
	var appErr *gas.ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected application error, got %v", err)
	}
	if !strings.Contains(appErr.Message, "intenta de nuevo en") {
		t.Fatalf("expected wait in rejection, got %q", appErr.Message)
	}
}
