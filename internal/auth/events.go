package auth

import (
	"sync"

	"gas-auth/internal/domain"
)

type EventType string

const (
	EventLoginSuccess   EventType = "login_success"
	EventLogout         EventType = "logout"
	EventSessionExpired EventType = "session_expired"
	EventAuthError      EventType = "auth_error"
)

// Event es la notificacion entregada a los listeners.
// User solo viene en login_success y Message solo en auth_error.
type Event struct {
	Type    EventType
	User    *domain.User
	Message string
}

type Listener func(Event)

type listenerRegistry struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
	order     []int
}

func (r *listenerRegistry) subscribe(l Listener) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listeners == nil {
		r.listeners = make(map[int]Listener)
	}
	id := r.nextID
	r.nextID++
	r.listeners[id] = l
	r.order = append(r.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.listeners, id)
			for i, v := range r.order {
				if v == id {
					r.order = append(r.order[:i], r.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (r *listenerRegistry) snapshot() []Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Listener, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.listeners[id])
	}
	return out
}

// emit entrega el evento de forma sincronica, en orden de registro.
func (r *listenerRegistry) emit(ev Event) {
	for _, l := range r.snapshot() {
		l(ev)
	}
}
