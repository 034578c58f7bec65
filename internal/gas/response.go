package gas

import (
	"encoding/json"
	"fmt"
	"strings"
)

const defaultRejectMessage = "error en la respuesta del servidor"

// Response es el resultado exitoso de una llamada: el cuerpo JSON tal como llego.
type Response struct {
	Action    string
	Transport string
	Message   string
	Body      json.RawMessage
}

// Decode deserializa el cuerpo completo en v.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Body) == 0 {
		return fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode %s response: %w", r.Action, err)
	}
	return nil
}

type responseHead struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// parseResponse separa errores de transporte (cuerpo ilegible o sin flag success)
// de rechazos de aplicacion (success=false).
func parseResponse(action, transport string, body []byte) (*Response, error) {
	var head responseHead
	if err := json.Unmarshal(body, &head); err != nil {
		return nil, &TransportError{Transport: transport, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if head.Success == nil {
		return nil, &TransportError{Transport: transport, Err: fmt.Errorf("%w: missing success flag", ErrMalformedResponse)}
	}
	if !*head.Success {
		msg := strings.TrimSpace(head.Message)
		if msg == "" {
			msg = strings.TrimSpace(head.Error)
		}
		if msg == "" {
			msg = defaultRejectMessage
		}
		return nil, &ApplicationError{Action: action, Message: msg}
	}
	return &Response{
		Action:    action,
		Transport: transport,
		Message:   head.Message,
		Body:      json.RawMessage(body),
	}, nil
}
