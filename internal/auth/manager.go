package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gas-auth/internal/domain"
	"gas-auth/internal/gas"
	"gas-auth/internal/storage"
)

// State es la etapa del ciclo de vida de la sesion.
type State string

const (
	StateLoggedOut State = "logged_out"
	StateRestoring State = "restoring"
	StateLoggedIn  State = "logged_in"
	StateExpired   State = "expired"
)

var (
	ErrSessionExpired    = errors.New("session expired")
	ErrNotLoggedIn       = errors.New("not logged in")
	ErrIncompleteSession = errors.New("login response without user or token")
)

const (
	defaultRememberMe     = 30 * 24 * time.Hour
	defaultSessionTimeout = time.Hour
	storageTimeout        = 2 * time.Second
)

type Options struct {
	// RememberMeDuration limita la vida del registro persistido.
	RememberMeDuration time.Duration
	// SessionTimeout es el intervalo por defecto de KeepAlive.
	SessionTimeout time.Duration
}

// Manager es el unico dueño de la sesion actual. Sincroniza la persistencia
// local con la validacion del backend y notifica cada transicion a los listeners.
type Manager struct {
	caller         gas.Caller
	store          storage.Store
	logger         *zap.Logger
	rememberFor    time.Duration
	sessionTimeout time.Duration
	now            func() time.Time

	mu      sync.RWMutex
	state   State
	session *domain.Session

	listeners listenerRegistry
}

func NewManager(caller gas.Caller, store storage.Store, logger *zap.Logger, opts Options) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = storage.NewMemoryStore()
	}
	if opts.RememberMeDuration <= 0 {
		opts.RememberMeDuration = defaultRememberMe
	}
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = defaultSessionTimeout
	}
	return &Manager{
		caller:         caller,
		store:          store,
		logger:         logger,
		rememberFor:    opts.RememberMeDuration,
		sessionTimeout: opts.SessionTimeout,
		now:            time.Now,
		state:          StateLoggedOut,
	}
}

// Subscribe registra un listener; la funcion devuelta lo da de baja.
func (m *Manager) Subscribe(l Listener) func() {
	return m.listeners.subscribe(l)
}

// Restore intenta recuperar la sesion recordada y la valida con el backend.
// Sin registro deja el estado en LoggedOut y devuelve nil. Si ctx termina
// durante la validacion devuelve ctx.Err() y conserva el registro.
func (m *Manager) Restore(ctx context.Context) error {
	rec, ok := m.loadRecord(ctx)
	if !ok {
		m.setState(StateLoggedOut, nil)
		return nil
	}
	if rec.Lapsed(m.now()) {
		m.logger.Info("remembered session lapsed", zap.String("email", rec.User.Email))
		m.expire(ctx)
		return ErrSessionExpired
	}

	m.setState(StateRestoring, nil)
	user, err := m.validateToken(ctx, rec.Token)
	if err != nil && ctx.Err() != nil {
		// Interrumpido: el registro sigue siendo valido para el proximo arranque.
		m.setState(StateLoggedOut, nil)
		return ctx.Err()
	}
	if err != nil {
		m.logger.Warn("restore validation failed", zap.String("email", rec.User.Email), zap.Error(err))
		m.expire(ctx)
		return fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}

	session := rec.Session()
	if user != nil {
		session.User = *user
		if session.User != rec.User {
			rec.User = session.User
			m.persist(ctx, rec)
		}
	}
	m.setState(StateLoggedIn, &session)
	m.logger.Info("session restored", zap.String("email", session.User.Email))

	u := session.User
	m.listeners.emit(Event{Type: EventLoginSuccess, User: &u})
	return nil
}

// Login valida localmente las credenciales y, si pasan, autentica contra el backend.
// Errores de validacion no generan trafico ni eventos. Si ya habia una sesion,
// su token se cierra en el backend una vez que el nuevo login tuvo exito.
func (m *Manager) Login(ctx context.Context, creds Credentials) (domain.User, error) {
	if verr := ValidateCredentials(creds); verr != nil {
		return domain.User{}, verr
	}

	previous := m.Token()
	session, err := m.remoteLogin(ctx, creds)
	if err != nil {
		msg := gas.UserMessage(err)
		m.logger.Warn("login failed", zap.String("email", creds.Email), zap.Error(err))
		m.listeners.emit(Event{Type: EventAuthError, Message: msg})
		return domain.User{}, err
	}

	if creds.RememberMe {
		m.persist(ctx, domain.PersistedSession{
			User:      session.User,
			Token:     session.Token,
			ExpiresAt: m.now().UTC().Add(m.rememberFor),
		})
	} else {
		m.clearRecord(ctx)
	}

	m.setState(StateLoggedIn, &session)
	if previous != "" && previous != session.Token {
		m.remoteLogout(ctx, previous)
	}
	m.logger.Info("login succeeded", zap.String("email", session.User.Email), zap.Bool("remember", creds.RememberMe))

	u := session.User
	m.listeners.emit(Event{Type: EventLoginSuccess, User: &u})
	return session.User, nil
}

func (m *Manager) remoteLogin(ctx context.Context, creds Credentials) (domain.Session, error) {
	resp, err := m.caller.Call(ctx, gas.ActionLogin, map[string]any{
		"email":    creds.Email,
		"password": creds.Password,
	})
	if err != nil {
		return domain.Session{}, err
	}
	var res gas.LoginResult
	if err := resp.Decode(&res); err != nil {
		return domain.Session{}, err
	}
	session := domain.Session{User: res.User, Token: res.Session.Token}
	if !session.Complete() {
		return domain.Session{}, ErrIncompleteSession
	}
	return session, nil
}

// Logout siempre termina la sesion local. El aviso al backend es best-effort.
func (m *Manager) Logout(ctx context.Context) {
	if token := m.Token(); token != "" {
		m.remoteLogout(ctx, token)
	}

	m.setState(StateLoggedOut, nil)
	m.clearRecord(ctx)
	m.logger.Info("logged out")
	m.listeners.emit(Event{Type: EventLogout})
}

// remoteLogout avisa al backend que el token ya no se usa. Es best-effort.
func (m *Manager) remoteLogout(ctx context.Context, token string) {
	if _, err := m.caller.Call(ctx, gas.ActionLogout, map[string]any{"token": token}); err != nil {
		m.logger.Warn("remote logout failed", zap.Error(err))
	}
}

// Validate vuelve a validar la sesion activa. Si el backend la rechaza o no
// responde, la sesion expira. Un contexto cancelado no expira la sesion.
func (m *Manager) Validate(ctx context.Context) error {
	m.mu.RLock()
	var token string
	if m.state == StateLoggedIn && m.session != nil {
		token = m.session.Token
	}
	m.mu.RUnlock()
	if token == "" {
		return ErrNotLoggedIn
	}

	user, err := m.validateToken(ctx, token)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.logger.Warn("session validation failed", zap.Error(err))
		if m.tokenIs(token) {
			m.expire(ctx)
		}
		return fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}

	if user != nil {
		m.mu.Lock()
		if m.session != nil && m.session.Token == token {
			m.session.User = *user
		}
		m.mu.Unlock()
	}
	return nil
}

// Expire fuerza el camino de expiracion si hay una sesion activa.
func (m *Manager) Expire(ctx context.Context) {
	if !m.IsLoggedIn() {
		return
	}
	m.expire(ctx)
}

// KeepAlive valida la sesion cada interval mientras haya una activa, hasta que ctx termine.
func (m *Manager) KeepAlive(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = m.sessionTimeout
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.IsLoggedIn() {
				continue
			}
			if err := m.Validate(ctx); err != nil && ctx.Err() == nil {
				m.logger.Info("keep-alive ended session", zap.Error(err))
			}
		}
	}
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) IsLoggedIn() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateLoggedIn && m.session != nil
}

// CurrentUser devuelve una copia del usuario autenticado.
func (m *Manager) CurrentUser() (domain.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return domain.User{}, false
	}
	return m.session.User, true
}

func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return ""
	}
	return m.session.Token
}

// HasRole es true solo con sesion activa y rol exactamente igual.
func (m *Manager) HasRole(role domain.Role) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session != nil && m.session.User.Role == role
}

func (m *Manager) setState(state State, session *domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.session = session
}

func (m *Manager) tokenIs(token string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session != nil && m.session.Token == token
}

// expire pasa por Expired hasta LoggedOut, limpia el registro y notifica una vez.
func (m *Manager) expire(ctx context.Context) {
	m.setState(StateExpired, nil)
	m.clearRecord(ctx)
	m.setState(StateLoggedOut, nil)
	m.listeners.emit(Event{Type: EventSessionExpired})
}

func (m *Manager) validateToken(ctx context.Context, token string) (*domain.User, error) {
	resp, err := m.caller.Call(ctx, gas.ActionValidateSession, map[string]any{"token": token})
	if err != nil {
		return nil, err
	}
	var res gas.ValidateResult
	if err := resp.Decode(&res); err != nil {
		return nil, err
	}
	if res.User == nil || res.User.Email == "" {
		return nil, nil
	}
	return res.User, nil
}

// loadRecord lee el registro recordado. Un registro corrupto o incompleto se
// descarta y se trata como ausente.
func (m *Manager) loadRecord(ctx context.Context) (domain.PersistedSession, bool) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storageTimeout)
	defer cancel()

	var remember bool
	ok, err := m.store.Get(sctx, storage.KeyRememberMe, &remember)
	if err != nil {
		m.logger.Warn("read remember flag failed", zap.Error(err))
		m.clearRecord(ctx)
		return domain.PersistedSession{}, false
	}
	if !ok || !remember {
		return domain.PersistedSession{}, false
	}

	var rec domain.PersistedSession
	ok, err = m.store.Get(sctx, storage.KeyUserSession, &rec)
	if err != nil || !ok || !rec.Session().Complete() {
		if err != nil {
			m.logger.Warn("read persisted session failed", zap.Error(err))
		}
		m.clearRecord(ctx)
		return domain.PersistedSession{}, false
	}
	return rec, true
}

func (m *Manager) persist(ctx context.Context, rec domain.PersistedSession) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storageTimeout)
	defer cancel()
	if err := m.store.Set(sctx, storage.KeyUserSession, rec); err != nil {
		m.logger.Warn("persist session failed", zap.Error(err))
		m.clearRecord(ctx)
		return
	}
	if err := m.store.Set(sctx, storage.KeyRememberMe, true); err != nil {
		m.logger.Warn("persist remember flag failed", zap.Error(err))
		m.clearRecord(ctx)
	}
}

func (m *Manager) clearRecord(ctx context.Context) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storageTimeout)
	defer cancel()
	if err := m.store.Remove(sctx, storage.KeyUserSession); err != nil {
		m.logger.Warn("remove persisted session failed", zap.Error(err))
	}
	if err := m.store.Remove(sctx, storage.KeyRememberMe); err != nil {
		m.logger.Warn("remove remember flag failed", zap.Error(err))
	}
}
