package tap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Binding is one key/value pair handed from a parent record to a child stream.
type Binding struct {
	Key   string
	Value string
}

// Context is the ordered set of bindings a child stream is synced with,
// e.g. merchant_id then order_id. Contexts are never modified in place.
type Context []Binding

// NewContext builds a context from alternating key, value arguments.
func NewContext(kv ...string) Context {
	var result Context
	for i := 0; i+1 < len(kv); i += 2 {
		result = result.With(kv[i], kv[i+1])
	}
	return result
}

// Get returns the value bound to key.
func (c Context) Get(key string) (string, bool) {
	for _, b := range c {
		if b.Key == key {
			return b.Value, true
		}
	}
	return "", false
}

// With returns a copy of c with key bound to value, replacing any existing binding in place.
func (c Context) With(key string, value string) Context {
	result := make(Context, 0, len(c)+1)
	replaced := false
	for _, b := range c {
		if b.Key == key {
			result = append(result, Binding{Key: key, Value: value})
			replaced = true
			continue
		}
		result = append(result, b)
	}
	if !replaced {
		result = append(result, Binding{Key: key, Value: value})
	}
	return result
}

// Map returns the bindings as a plain map.
func (c Context) Map() map[string]string {
	result := make(map[string]string, len(c))
	for _, b := range c {
		result[b.Key] = b.Value
	}
	return result
}

func (c Context) String() string {
	parts := make([]string, len(c))
	for i, b := range c {
		parts[i] = b.Key + "=" + b.Value
	}
	return strings.Join(parts, ",")
}

// MarshalJSON writes the context as an object, keeping binding order.
func (c Context) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, b := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(b.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(b.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ResolvePath substitutes {key} placeholders in template with context values.
func (c Context) ResolvePath(template string) (string, error) {
	var sb strings.Builder
	rest := template
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			sb.WriteString(rest)
			return sb.String(), nil
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return "", fmt.Errorf("unterminated placeholder in path %q", template)
		}
		key := rest[start+1 : start+end]
		value, ok := c.Get(key)
		if !ok || value == "" {
			return "", fmt.Errorf("%w %q for path %q", ErrMissingContextKey, key, template)
		}
		sb.WriteString(rest[:start])
		sb.WriteString(url.PathEscape(value))
		rest = rest[start+end+1:]
	}
}
