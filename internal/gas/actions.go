package gas

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"gas-auth/internal/domain"
)

// Acciones expuestas por el script del backend.
const (
	ActionLogin           = "loginUser"
	ActionValidateSession = "validateSession"
	ActionLogout          = "logoutUser"
	ActionGetUserData     = "getUserData"
	ActionGetUsers        = "getUsers"
	ActionTestConnection  = "testConnection"
)

type SessionInfo struct {
	Token string `json:"token"`
}

// LoginResult es la respuesta de loginUser.
type LoginResult struct {
	User    domain.User `json:"user"`
	Session SessionInfo `json:"session"`
	Message string      `json:"message,omitempty"`
}

// ValidateResult es la respuesta de validateSession; user puede venir vacio.
type ValidateResult struct {
	User    *domain.User `json:"user,omitempty"`
	Message string       `json:"message,omitempty"`
}

type usersResult struct {
	Users []domain.User `json:"users"`
}

type userDataResult struct {
	User domain.User `json:"user"`
}

func (c *Client) LoginUser(ctx context.Context, email, password string) (LoginResult, error) {
	resp, err := c.Call(ctx, ActionLogin, map[string]any{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return LoginResult{}, err
	}
	var out LoginResult
	if err := resp.Decode(&out); err != nil {
		return LoginResult{}, err
	}
	return out, nil
}

func (c *Client) ValidateSession(ctx context.Context, token string) (ValidateResult, error) {
	resp, err := c.Call(ctx, ActionValidateSession, map[string]any{"token": token})
	if err != nil {
		return ValidateResult{}, err
	}
	var out ValidateResult
	if err := resp.Decode(&out); err != nil {
		return ValidateResult{}, err
	}
	return out, nil
}

func (c *Client) LogoutUser(ctx context.Context, token string) error {
	_, err := c.Call(ctx, ActionLogout, map[string]any{"token": token})
	return err
}

func (c *Client) GetUserData(ctx context.Context, token string) (domain.User, error) {
	resp, err := c.Call(ctx, ActionGetUserData, map[string]any{"token": token})
	if err != nil {
		return domain.User{}, err
	}
	var out userDataResult
	if err := resp.Decode(&out); err != nil {
		return domain.User{}, err
	}
	return out.User, nil
}

// GetUsers lista los usuarios de la hoja.
func (c *Client) GetUsers(ctx context.Context) ([]domain.User, error) {
	resp, err := c.Call(ctx, ActionGetUsers, map[string]any{
		"diagnostic":     true,
		"includeRawData": false,
	})
	if err != nil {
		return nil, err
	}
	var out usersResult
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	c.logger.Debug("users loaded", zap.Int("count", len(out.Users)))
	return out.Users, nil
}

// TestConnection verifica que el script responda y devuelve su mensaje.
func (c *Client) TestConnection(ctx context.Context) (string, error) {
	resp, err := c.Call(ctx, ActionTestConnection, nil)
	if err != nil {
		return "", fmt.Errorf("test connection: %w", err)
	}
	msg := strings.TrimSpace(resp.Message)
	if msg == "" {
		msg = "ok"
	}
	return msg, nil
}
