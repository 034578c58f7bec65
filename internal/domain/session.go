package domain

import (
	"strings"
	"time"
)

// Session es el principal autenticado: usuario y token opaco emitido por el backend.
type Session struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// Complete indica si la sesion tiene usuario y token; nunca se guarda a medias.
func (s Session) Complete() bool {
	return strings.TrimSpace(s.User.Email) != "" && strings.TrimSpace(s.Token) != ""
}

// PersistedSession es la forma durable de la sesion cuando el usuario pidio "recordarme".
type PersistedSession struct {
	User      User      `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func (p PersistedSession) Session() Session {
	return Session{User: p.User, Token: p.Token}
}

// Lapsed indica si el registro paso su fecha de expiracion local.
func (p PersistedSession) Lapsed(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}
