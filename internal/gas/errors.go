package gas

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyAction         = errors.New("gas: action is required")
	ErrTransportsExhausted = errors.New("gas: all transports exhausted")
	ErrMalformedResponse   = errors.New("gas: malformed response")
	ErrTimeout             = errors.New("gas: transport timeout")
	ErrUnknownTransport    = errors.New("gas: unknown transport")
)

// TransportError describe una falla de conectividad o de formato en un transporte.
// El cliente la recupera pasando al siguiente transporte.
type TransportError struct {
	Transport string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport: %v", e.Transport, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ApplicationError es un rechazo explicito del backend (success=false).
// Es definitivo: no se reintenta con otros transportes.
type ApplicationError struct {
	Action  string
	Message string
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("gas %s: %s", e.Action, e.Message)
}

// StatusError reporta una respuesta HTTP fuera del rango 2xx.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d %s", e.Code, e.Status)
}

// UserMessage devuelve el texto a mostrar al usuario para un error de Call.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
