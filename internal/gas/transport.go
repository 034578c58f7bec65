package gas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	TransportPost  = "post"
	TransportGet   = "get"
	TransportFrame = "frame"
	TransportJSONP = "jsonp"

	maxBodyBytes = 4 << 20
)

// DefaultTransportOrder es el orden de degradacion: del mas estandar al menos.
var DefaultTransportOrder = []string{TransportPost, TransportGet, TransportFrame, TransportJSONP}

// Transport entrega un envelope al endpoint y devuelve el cuerpo JSON de la respuesta.
// Cada intento debe liberar sus recursos antes de retornar.
type Transport interface {
	Name() string
	Do(ctx context.Context, endpoint string, env Envelope) ([]byte, error)
}

// NewHTTPClient construye el cliente HTTP instrumentado que comparten los transportes.
// El timeout lo impone el contexto de cada intento.
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// NewTransports arma la cadena de transportes a partir de sus nombres.
func NewTransports(names []string, httpClient *http.Client) ([]Transport, error) {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	if len(names) == 0 {
		names = DefaultTransportOrder
	}
	transports := make([]Transport, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case TransportPost:
			transports = append(transports, &PostTransport{client: httpClient})
		case TransportGet:
			transports = append(transports, &GetTransport{client: httpClient})
		case TransportFrame:
			transports = append(transports, &FrameTransport{client: httpClient})
		case TransportJSONP:
			transports = append(transports, &JSONPTransport{client: httpClient})
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, name)
		}
	}
	return transports, nil
}

// PostTransport envia el envelope como cuerpo JSON.
type PostTransport struct {
	client *http.Client
}

func (t *PostTransport) Name() string { return TransportPost }

func (t *PostTransport) Do(ctx context.Context, endpoint string, env Envelope) ([]byte, error) {
	bodyBytes, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return doRequest(t.client, req)
}

// GetTransport codifica el envelope en la query string.
type GetTransport struct {
	client *http.Client
}

func (t *GetTransport) Name() string { return TransportGet }

func (t *GetTransport) Do(ctx context.Context, endpoint string, env Envelope) ([]byte, error) {
	req, err := newGetRequest(ctx, endpoint, env, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return doRequest(t.client, req)
}

// FrameTransport carga la URL GET como documento y rescata el JSON del texto visible.
type FrameTransport struct {
	client *http.Client
}

func (t *FrameTransport) Name() string { return TransportFrame }

func (t *FrameTransport) Do(ctx context.Context, endpoint string, env Envelope) ([]byte, error) {
	req, err := newGetRequest(ctx, endpoint, env, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	raw, err := doRequest(t.client, req)
	if err != nil {
		return nil, err
	}
	obj := extractFirstJSONObject(documentText(raw))
	if obj == "" {
		return nil, fmt.Errorf("%w: no JSON object in frame document", ErrMalformedResponse)
	}
	return []byte(obj), nil
}

// JSONPTransport pide la respuesta envuelta en una funcion callback.
type JSONPTransport struct {
	client *http.Client
}

func (t *JSONPTransport) Name() string { return TransportJSONP }

func (t *JSONPTransport) Do(ctx context.Context, endpoint string, env Envelope) ([]byte, error) {
	callback := newCallbackName()
	req, err := newGetRequest(ctx, endpoint, env, map[string]string{"callback": callback})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/javascript")
	raw, err := doRequest(t.client, req)
	if err != nil {
		return nil, err
	}
	return unwrapJSONP(raw, callback)
}

func newCallbackName() string {
	return "gas_cb_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// unwrapJSONP valida que el script invoque exactamente al callback pedido.
func unwrapJSONP(raw []byte, callback string) ([]byte, error) {
	s := strings.TrimSpace(string(raw))
	s = strings.TrimPrefix(s, "/**/")
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ";")
	s = strings.TrimSpace(s)
	prefix := callback + "("
	if !strings.HasPrefix(s, prefix) || !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("%w: script does not invoke %s", ErrMalformedResponse, callback)
	}
	inner := strings.TrimSpace(s[len(prefix) : len(s)-1])
	if inner == "" {
		return nil, fmt.Errorf("%w: empty callback argument", ErrMalformedResponse)
	}
	return []byte(inner), nil
}

func newGetRequest(ctx context.Context, endpoint string, env Envelope, extra map[string]string) (*http.Request, error) {
	params, err := env.Query()
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	for k, v := range extra {
		params.Set(k, v)
	}
	target, err := buildURL(endpoint, params)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func doRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty response body")
	}
	return body, nil
}
