package devbackend

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"gas-auth/internal/domain"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// SeedUser es un usuario inicial con su contraseña en claro; se guarda hasheada.
type SeedUser struct {
	Email    string
	Name     string
	Role     domain.Role
	Password string
}

// DefaultSeed son las cuentas de prueba del backend local.
var DefaultSeed = []SeedUser{
	{Email: "admin@example.com", Name: "Administrador", Role: domain.RoleAdmin, Password: "admin123"},
	{Email: "moderador@example.com", Name: "Moderador", Role: domain.RoleModerator, Password: "moderador123"},
	{Email: "usuario@example.com", Name: "Usuario", Role: domain.RoleUser, Password: "usuario123"},
}

type userRecord struct {
	user         domain.User
	passwordHash []byte
}

// UserDirectory es la hoja de usuarios del backend de desarrollo.
type UserDirectory struct {
	mu    sync.RWMutex
	users map[string]userRecord
	cost  int
}

func NewUserDirectory(seed []SeedUser) (*UserDirectory, error) {
	return newUserDirectory(seed, bcrypt.DefaultCost)
}

func newUserDirectory(seed []SeedUser, cost int) (*UserDirectory, error) {
	d := &UserDirectory{users: make(map[string]userRecord), cost: cost}
	for _, s := range seed {
		if err := d.Add(s); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Add agrega o reemplaza un usuario.
func (d *UserDirectory) Add(s SeedUser) error {
	email := normalizeEmail(s.Email)
	if email == "" {
		return errors.New("seed user without email")
	}
	role, ok := domain.ParseRole(string(s.Role))
	if !ok {
		role = domain.RoleUser
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(s.Password), d.cost)
	if err != nil {
		return err
	}
	name := strings.TrimSpace(s.Name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[email] = userRecord{
		user:         domain.User{Email: email, Name: name, Role: role},
		passwordHash: hash,
	}
	return nil
}

func (d *UserDirectory) Authenticate(email, password string) (domain.User, error) {
	d.mu.RLock()
	rec, ok := d.users[normalizeEmail(email)]
	d.mu.RUnlock()
	if !ok {
		return domain.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(password)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return rec.user, nil
}

func (d *UserDirectory) Get(email string) (domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.users[normalizeEmail(email)]
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return rec.user, nil
}

// List devuelve los usuarios ordenados por email.
func (d *UserDirectory) List() []domain.User {
	d.mu.RLock()
	out := make([]domain.User, 0, len(d.users))
	for _, rec := range d.users {
		out = append(out, rec.user)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
