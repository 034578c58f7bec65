package devbackend

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultLoginAttempts = 10

var callbackPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$.]*$`)

type Options struct {
	// RejectPost responde 405 a todo POST, como un navegador que bloquea la peticion cross-origin.
	RejectPost bool
	// Limiter acota los intentos de login; nil usa un limitador en memoria.
	Limiter LoginLimiter
}

// Backend imita el endpoint /exec del script publicado.
type Backend struct {
	logger     *zap.Logger
	users      *UserDirectory
	tokens     *TokenService
	limiter    LoginLimiter
	rejectPost bool
	now        func() time.Time
}

func NewBackend(logger *zap.Logger, users *UserDirectory, tokens *TokenService, opts Options) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = NewMemoryLoginLimiter(time.Minute, defaultLoginAttempts)
	}
	return &Backend{
		logger:     logger,
		users:      users,
		tokens:     tokens,
		limiter:    limiter,
		rejectPost: opts.RejectPost,
		now:        time.Now,
	}
}

// NewRouter configura el router de Gin con middlewares y la ruta /exec.
func NewRouter(logger *zap.Logger, b *Backend) *gin.Engine {
	r := gin.New()
	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	r.GET("/exec", b.Exec)
	r.POST("/exec", b.Exec)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

// Exec maneja GET y POST /exec. Los errores de negocio viajan con status 200 y success=false.
func (b *Backend) Exec(c *gin.Context) {
	if c.Request.Method == http.MethodPost && b.rejectPost {
		c.AbortWithStatus(http.StatusMethodNotAllowed)
		return
	}

	params, err := readParams(c)
	if err != nil {
		b.logger.Warn("invalid exec request", zap.Error(err))
		b.render(c, failure("Solicitud inválida"))
		return
	}

	action := stringParam(params, "action")
	result := b.dispatch(action, params)
	b.logger.Info("exec",
		zap.String("action", action),
		zap.String("method", c.Request.Method),
		zap.Any("success", result["success"]),
	)
	b.render(c, result)
}

func (b *Backend) dispatch(action string, params map[string]any) gin.H {
	switch action {
	case "":
		return failure("Acción requerida")
	case "testConnection":
		return gin.H{
			"success":   true,
			"message":   "Conexión exitosa con el backend",
			"timestamp": b.now().UTC().Format(time.RFC3339),
		}
	case "loginUser":
		password, _ := params["password"].(string)
		attempt := LoginAttempt{Email: stringParam(params, "email"), Origin: stringParam(params, "origin")}
		return b.login(attempt, password)
	case "validateSession":
		return b.validate(stringParam(params, "token"))
	case "logoutUser":
		return b.logout(stringParam(params, "token"))
	case "getUsers":
		return b.listUsers(boolParam(params, "includeRawData"))
	case "getUserData":
		return b.userData(stringParam(params, "token"))
	default:
		return failure("Acción no válida: " + action)
	}
}

func (b *Backend) login(attempt LoginAttempt, password string) gin.H {
	email := normalizeEmail(attempt.Email)
	if email == "" || password == "" {
		return failure("Email y contraseña son requeridos")
	}
	if wait, ok := b.limiter.Reserve(attempt); !ok {
		secs := int(math.Ceil(wait.Seconds()))
		if secs < 1 {
			secs = 1
		}
		b.logger.Warn("login rate limited",
			zap.String("email", email),
			zap.String("origin", attempt.Origin),
			zap.Duration("retry_after", wait),
		)
		out := failure(fmt.Sprintf("Demasiados intentos, intenta de nuevo en %d s", secs))
		out["retryAfter"] = secs
		return out
	}
	user, err := b.users.Authenticate(email, password)
	if err != nil {
		b.logger.Info("login rejected", zap.String("email", email))
		return failure("Credenciales incorrectas")
	}
	token, err := b.tokens.Issue(user)
	if err != nil {
		b.logger.Error("issue token failed", zap.Error(err))
		return failure("No se pudo crear la sesión")
	}
	return gin.H{
		"success": true,
		"message": "Login exitoso",
		"user":    user,
		"session": gin.H{"token": token},
	}
}

func (b *Backend) validate(token string) gin.H {
	claims, err := b.tokens.Parse(token)
	if err != nil {
		return failure(sessionMessage(err))
	}
	user, err := b.users.Get(claims.Email)
	if err != nil {
		return failure("Usuario no encontrado")
	}
	return gin.H{"success": true, "message": "Sesión válida", "user": user}
}

func (b *Backend) logout(token string) gin.H {
	if err := b.tokens.Revoke(token); err != nil {
		return failure(sessionMessage(err))
	}
	return gin.H{"success": true, "message": "Sesión cerrada"}
}

func (b *Backend) listUsers(includeRaw bool) gin.H {
	users := b.users.List()
	out := gin.H{
		"success": true,
		"message": fmt.Sprintf("%d usuarios encontrados", len(users)),
		"users":   users,
		"count":   len(users),
	}
	if includeRaw {
		rows := make([][]string, 0, len(users)+1)
		rows = append(rows, []string{"email", "name", "role"})
		for _, u := range users {
			rows = append(rows, []string{u.Email, u.Name, string(u.Role)})
		}
		out["rawData"] = rows
	}
	return out
}

func (b *Backend) userData(token string) gin.H {
	claims, err := b.tokens.Parse(token)
	if err != nil {
		return failure(sessionMessage(err))
	}
	user, err := b.users.Get(claims.Email)
	if err != nil {
		return failure("Usuario no encontrado")
	}
	return gin.H{"success": true, "user": user}
}

// render elige el formato segun lo que pide el transporte: JSONP, documento HTML o JSON.
func (b *Backend) render(c *gin.Context, body gin.H) {
	payload, err := json.Marshal(body)
	if err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	if callback := c.Query("callback"); callback != "" {
		if !callbackPattern.MatchString(callback) {
			c.Data(http.StatusBadRequest, "application/json; charset=utf-8", []byte(`{"success":false,"message":"callback inválido"}`))
			return
		}
		c.Data(http.StatusOK, "application/javascript; charset=utf-8", []byte(callback+"("+string(payload)+");"))
		return
	}
	if strings.Contains(c.GetHeader("Accept"), "text/html") {
		doc := "<!DOCTYPE html><html><head><title>exec</title></head><body><pre>" +
			html.EscapeString(string(payload)) + "</pre></body></html>"
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(doc))
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

// readParams une la query string con el cuerpo JSON; el cuerpo gana.
func readParams(c *gin.Context) (map[string]any, error) {
	params := make(map[string]any)
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	if c.Request.Method != http.MethodPost || c.Request.ContentLength == 0 {
		return params, nil
	}
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, err
	}
	for k, v := range body {
		params[k] = v
	}
	return params, nil
}

func stringParam(params map[string]any, key string) string {
	switch v := params[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return fmt.Sprint(v)
	}
}

func boolParam(params map[string]any, key string) bool {
	switch v := params[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	default:
		return false
	}
}

func failure(msg string) gin.H {
	return gin.H{"success": false, "message": msg}
}

func sessionMessage(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "Sesión expirada"
	case errors.Is(err, ErrTokenRevoked):
		return "Sesión cerrada"
	default:
		return "Sesión inválida"
	}
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
