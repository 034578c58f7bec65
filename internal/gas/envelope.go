package gas

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Envelope es el cuerpo de una llamada: payload mas los campos comunes
// (action, sheetId, timestamp, source, origin).
type Envelope map[string]any

const timestampLayout = "2006-01-02T15:04:05.000Z"

func (c *Client) envelope(action string, payload map[string]any) Envelope {
	env := make(Envelope, len(payload)+5)
	for k, v := range payload {
		env[k] = v
	}
	env["action"] = action
	if c.sheetID != "" {
		env["sheetId"] = c.sheetID
	}
	env["timestamp"] = c.now().UTC().Format(timestampLayout)
	if c.source != "" {
		env["source"] = c.source
	}
	if c.origin != "" {
		env["origin"] = c.origin
	}
	return env
}

// Query codifica el envelope como parametros GET. Los valores nil se omiten y
// los estructurados se serializan a JSON.
func (e Envelope) Query() (url.Values, error) {
	values := url.Values{}
	for k, v := range e {
		s, ok, err := queryValue(v)
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", k, err)
		}
		if ok {
			values.Set(k, s)
		}
	}
	return values, nil
}

func queryValue(v any) (string, bool, error) {
	switch val := v.(type) {
	case nil:
		return "", false, nil
	case string:
		return val, true, nil
	case bool:
		return strconv.FormatBool(val), true, nil
	case int:
		return strconv.Itoa(val), true, nil
	case int64:
		return strconv.FormatInt(val, 10), true, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true, nil
	case json.Number:
		return val.String(), true, nil
	case time.Time:
		return val.UTC().Format(timestampLayout), true, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", false, err
	}
	if string(raw) == "null" {
		return "", false, nil
	}
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, true, nil
		}
	}
	return string(raw), true, nil
}

// buildURL agrega los parametros al endpoint conservando los que ya traiga.
func buildURL(endpoint string, params url.Values) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
