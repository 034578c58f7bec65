package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Claves usadas por el gestor de sesion.
const (
	KeyUserSession = "user_session"
	KeyRememberMe  = "remember_me"
)

var ErrEmptyKey = errors.New("storage: empty key")

// Store es un almacen clave-valor con valores serializados a JSON,
// el equivalente durable de localStorage.
type Store interface {
	// Get deserializa el valor de key en dst. Devuelve false si la clave no existe.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	// Remove no falla si la clave no existe.
	Remove(ctx context.Context, key string) error
}

type memoryStore struct {
	mu    sync.Mutex
	items map[string][]byte
}

// NewMemoryStore crea un Store en memoria; util para tests y sesiones efimeras.
func NewMemoryStore() Store {
	return &memoryStore{items: make(map[string][]byte)}
}

func (s *memoryStore) Get(_ context.Context, key string, dst any) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	s.mu.Lock()
	raw, ok := s.items[key]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value any) error {
	if key == "" {
		return ErrEmptyKey
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = raw
	return nil
}

func (s *memoryStore) Remove(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}
