package devbackend

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newTestBackend(t *testing.T, opts Options) (*Backend, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	users, err := newUserDirectory(DefaultSeed, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("seed users: %v", err)
	}
	tokens := NewTokenService("test-secret", time.Hour, NewMemoryRevocationStore())
	b := NewBackend(zap.NewNop(), users, tokens, opts)
	return b, NewRouter(zap.NewNop(), b)
}

func postExec(t *testing.T, r http.Handler, body map[string]any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/exec", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func login(t *testing.T, r http.Handler, email, password string) string {
	t.Helper()
	_, out := postExec(t, r, map[string]any{"action": "loginUser", "email": email, "password": password})
	if out["success"] != true {
		t.Fatalf("login failed: %+v", out)
	}
	session, _ := out["session"].(map[string]any)
	token, _ := session["token"].(string)
	if token == "" {
		t.Fatalf("login without token: %+v", out)
	}
	return token
}

func TestExec_LoginSuccess(t *testing.T) {
	_, r := newTestBackend(t, Options{})
	_, out := postExec(t, r, map[string]any{"action": "loginUser", "email": " Admin@Example.com ", "password": "admin123"})
	if out["success"] != true {
		t.Fatalf("expected success, got %+v", out)
	}
	user, _ := out["user"].(map[string]any)
	if user["email"] != "admin@example.com" || user["role"] != "admin" {
		t.Fatalf("unexpected user %+v", user)
	}
}

func TestExec_LoginWrongPassword(t *testing.T) {
	_, r := newTestBackend(t, Options{})
	rec, out := postExec(t, r, map[string]any{"action": "loginUser", "email": "admin@example.com", "password": "nope123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("business errors travel with 200, got %d", rec.Code)
	}
	if out["success"] != false || out["message"] != "Credenciales incorrectas" {
		t.Fatalf("unexpected response %+v", out)
	}
}

func TestExec_ValidateAndLogout(t *testing.T) {
	_, r := newTestBackend(t, Options{})
	token := login(t, r, "usuario@example.com", "usuario123")

	_, out := postExec(t, r, map[string]any{"action": "validateSession", "token": token})
	if out["success"] != true {
		t.Fatalf("expected valid session, got %+v", out)
	}

	_, out = postExec(t, r, map[string]any{"action": "logoutUser", "token": token})
	if out["success"] != true {
		t.Fatalf("expected logout success, got %+v", out)
	}

	_, out = postExec(t, r, map[string]any{"action": "validateSession", "token": token})
	if out["success"] != false || out["message"] != "Sesión cerrada" {
		t.Fatalf("expected revoked session, got %+v", out)
	}
}

func TestExec_GetUsersAndUserData(t *testing.T) {
	_, r := newTestBackend(t, Options{})
	_, out := postExec(t, r, map[string]any{"action": "getUsers", "diagnostic": true, "includeRawData": true})
	users, _ := out["users"].([]any)
	if len(users) != len(DefaultSeed) {
		t.Fatalf("expected %d users, got %+v", len(DefaultSeed), out)
	}
	if _, ok := out["rawData"]; !ok {
		t.Fatalf("expected raw data when requested")
	}

	token := login(t, r, "moderador@example.com", "moderador123")
	_, out = postExec(t, r, map[string]any{"action": "getUserData", "token": token})
	user, _ := out["user"].(map[string]any)
	if user["role"] != "moderator" {
		t.Fatalf("unexpected user data %+v", out)
	}
}

func TestExec_UnknownAndMissingAction(t *testing.T) {
	_, r := newTestBackend(t, Options{})
	_, out := postExec(t, r, map[string]any{"action": "dropTables"})
	if out["success"] != false || !strings.Contains(out["message"].(string), "dropTables") {
		t.Fatalf("unexpected response %+v", out)
	}
	_, out = postExec(t, r, map[string]any{})
	if out["success"] != false {
		t.Fatalf("expected failure without action, got %+v", out)
	}
}

func TestExec_RejectPost(t *testing.T) {
	_, r := newTestBackend(t, Options{RejectPost: true})
	rec, _ := postExec(t, r, map[string]any{"action": "testConnection"})
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/exec?action=testConnection", nil)
	get := httptest.NewRecorder()
	r.ServeHTTP(get, req)
	if get.Code != http.StatusOK || !strings.Contains(get.Body.String(), `"success":true`) {
		t.Fatalf("GET must keep working, got %d %s", get.Code, get.Body.String())
	}
}

func TestExec_JSONPAndHTMLFormats(t *testing.T) {
	_, r := newTestBackend(t, Options{})
	q := url.Values{"action": {"testConnection"}, "callback": {"gas_cb_abc"}}

	req := httptest.NewRequest(http.MethodGet, "/exec?"+q.Encode(), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	body := rec.Body.String()
	if !strings.HasPrefix(body, "gas_cb_abc(") || !strings.HasSuffix(body, ");") {
		t.Fatalf("unexpected JSONP body %q", body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/javascript") {
		t.Fatalf("unexpected content type %q", ct)
	}

	req = httptest.NewRequest(http.MethodGet, "/exec?action=testConnection", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), "<pre>{&#34;") {
		t.Fatalf("expected escaped JSON inside HTML, got %q", rec.Body.String())
	}
}

func TestExec_RejectsUnsafeCallback(t *testing.T) {
	_, r := newTestBackend(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/exec?action=testConnection&callback="+url.QueryEscape("alert(1)//"), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestExec_GETQueryBooleans(t *testing.T) {
	_, r := newTestBackend(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/exec?action=getUsers&includeRawData=false", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := out["rawData"]; ok {
		t.Fatalf("raw data must not be included for \"false\"")
	}
}
