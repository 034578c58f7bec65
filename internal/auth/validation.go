package auth

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	FieldEmail    = "email"
	FieldPassword = "password"

	minPasswordLength = 6
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Credentials son los datos del formulario de login.
type Credentials struct {
	Email      string
	Password   string
	RememberMe bool
}

// ValidationError reporta errores por campo detectados antes de cualquier llamada remota.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range []string{FieldEmail, FieldPassword} {
		if msg, ok := e.Fields[f]; ok {
			parts = append(parts, f+": "+msg)
		}
	}
	return "invalid credentials: " + strings.Join(parts, "; ")
}

// Field devuelve el mensaje de error del campo, si lo hay.
func (e *ValidationError) Field(name string) (string, bool) {
	msg, ok := e.Fields[name]
	return msg, ok
}

func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

func IsValidPassword(password string) bool {
	return utf8.RuneCountInString(password) >= minPasswordLength
}

// ValidateEmailField valida un campo aislado; vacio se considera aun no escrito.
func ValidateEmailField(email string) string {
	if email != "" && !IsValidEmail(email) {
		return "Por favor ingresa un email válido"
	}
	return ""
}

func ValidatePasswordField(password string) string {
	if password != "" && !IsValidPassword(password) {
		return "La contraseña debe tener al menos 6 caracteres"
	}
	return ""
}

// ValidateCredentials revisa ambos campos y devuelve nil si son validos.
func ValidateCredentials(c Credentials) *ValidationError {
	fields := make(map[string]string)
	if !IsValidEmail(c.Email) {
		fields[FieldEmail] = "Por favor ingresa un email válido"
	}
	if !IsValidPassword(c.Password) {
		fields[FieldPassword] = "La contraseña debe tener al menos 6 caracteres"
	}
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}
