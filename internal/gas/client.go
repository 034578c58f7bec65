package gas

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	tracerName     = "gas-auth/internal/gas"
	defaultTimeout = 20 * time.Second
	defaultSource  = "web-app"
)

// Caller es la capacidad que consumen los servicios: una llamada remota con nombre.
type Caller interface {
	Call(ctx context.Context, action string, payload map[string]any) (*Response, error)
}

// Options agrupa la configuración del cliente.
type Options struct {
	Endpoint   string
	SheetID    string
	Source     string
	Origin     string
	Timeout    time.Duration
	Transports []Transport
	HTTPClient *http.Client
}

// Client entrega llamadas a un unico endpoint de Apps Script degradando por una
// lista ordenada de transportes.
type Client struct {
	endpoint   string
	sheetID    string
	source     string
	origin     string
	timeout    time.Duration
	transports []Transport
	logger     *zap.Logger
	now        func() time.Time
}

// NewClient construye el cliente. Sin transportes explicitos usa POST, GET, frame y JSONP.
func NewClient(opts Options, logger *zap.Logger) (*Client, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, errors.New("gas: endpoint is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	transports := opts.Transports
	if len(transports) == 0 {
		var err error
		transports, err = NewTransports(DefaultTransportOrder, opts.HTTPClient)
		if err != nil {
			return nil, err
		}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	source := opts.Source
	if source == "" {
		source = defaultSource
	}
	return &Client{
		endpoint:   endpoint,
		sheetID:    opts.SheetID,
		source:     source,
		origin:     opts.Origin,
		timeout:    timeout,
		transports: transports,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Call ejecuta action con payload. Los transportes se prueban en orden, una vez
// cada uno; el primero con success=true gana. Un success=false corta la cadena.
func (c *Client) Call(ctx context.Context, action string, payload map[string]any) (*Response, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return nil, ErrEmptyAction
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "gas.call")
	defer span.End()
	span.SetAttributes(attribute.String("gas.action", action))

	env := c.envelope(action, payload)

	var lastErr error
	for _, t := range c.transports {
		start := time.Now()
		resp, err := c.attempt(ctx, t, action, env)
		if err == nil {
			c.logger.Debug("gas call succeeded",
				zap.String("action", action),
				zap.String("transport", t.Name()),
				zap.Duration("latency", time.Since(start)),
			)
			span.SetAttributes(attribute.String("gas.transport", t.Name()))
			return resp, nil
		}

		var appErr *ApplicationError
		if errors.As(err, &appErr) {
			c.logger.Info("gas call rejected",
				zap.String("action", action),
				zap.String("transport", t.Name()),
				zap.String("message", appErr.Message),
			)
			span.SetAttributes(attribute.String("gas.transport", t.Name()))
			span.SetStatus(codes.Error, appErr.Message)
			return nil, err
		}

		lastErr = err
		c.logger.Warn("gas transport failed",
			zap.String("action", action),
			zap.String("transport", t.Name()),
			zap.Error(err),
		)

		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("gas %s: %w", action, ctxErr)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no transports configured")
	}
	err := fmt.Errorf("%w: %s: %w", ErrTransportsExhausted, action, lastErr)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return nil, err
}

type attemptResult struct {
	body []byte
	err  error
}

// attempt corre un transporte bajo su propio timeout. Respuesta, error o
// vencimiento del plazo despiertan al llamador, lo que ocurra primero.
func (c *Client) attempt(ctx context.Context, t Transport, action string, env Envelope) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		body, err := t.Do(attemptCtx, c.endpoint, env)
		done <- attemptResult{body: body, err: err}
	}()

	var res attemptResult
	select {
	case res = <-done:
	case <-attemptCtx.Done():
		res.err = attemptCtx.Err()
	}

	if res.err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &TransportError{Transport: t.Name(), Err: fmt.Errorf("%w after %s", ErrTimeout, c.timeout)}
		}
		return nil, &TransportError{Transport: t.Name(), Err: res.err}
	}
	return parseResponse(action, t.Name(), res.body)
}
