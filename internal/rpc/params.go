// File: internal/rpc/params.go
package rpc

import (
	"math"
	"time"
)

// Params wraps a decoded JSON-RPC params value. The protocol allows either an
// object or an array; every method here is keyword-addressed, so the typed
// getters operate on the object form and positional params simply fail the
// required-key lookups.
type Params struct {
	obj  map[string]any
	list []any
}

func newParams(v any) Params {
	switch t := v.(type) {
	case map[string]any:
		return Params{obj: t}
	case []any:
		return Params{list: t}
	}
	return Params{}
}

// Has reports whether the key is present at all.
func (p Params) Has(key string) bool {
	_, ok := p.obj[key]
	return ok
}

// String returns a required non-empty string parameter.
func (p Params) String(key string) (string, *Error) {
	v, ok := p.obj[key]
	if !ok {
		return "", ErrInvalidParams("missing required parameter %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", ErrInvalidParams("parameter %q must be a string", key)
	}
	if s == "" {
		return "", ErrInvalidParams("parameter %q must not be empty", key)
	}
	return s, nil
}

// StringAllowEmpty returns a required string parameter that may be empty,
// for values like form field contents where "" is meaningful.
func (p Params) StringAllowEmpty(key string) (string, *Error) {
	v, ok := p.obj[key]
	if !ok {
		return "", ErrInvalidParams("missing required parameter %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", ErrInvalidParams("parameter %q must be a string", key)
	}
	return s, nil
}

// OptionalString returns a string parameter or its zero value when absent.
func (p Params) OptionalString(key, fallback string) (string, *Error) {
	v, ok := p.obj[key]
	if !ok || v == nil {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", ErrInvalidParams("parameter %q must be a string", key)
	}
	return s, nil
}

// OptionalBool returns a boolean parameter or the fallback when absent.
func (p Params) OptionalBool(key string, fallback bool) (bool, *Error) {
	v, ok := p.obj[key]
	if !ok || v == nil {
		return fallback, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, ErrInvalidParams("parameter %q must be a boolean", key)
	}
	return b, nil
}

// OptionalInt returns an integer parameter or the fallback when absent.
// JSON numbers decode as float64; fractional values are rejected.
func (p Params) OptionalInt(key string, fallback int) (int, *Error) {
	v, ok := p.obj[key]
	if !ok || v == nil {
		return fallback, nil
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, ErrInvalidParams("parameter %q must be an integer", key)
	}
	return int(f), nil
}

// Timeout reads an optional timeout parameter expressed in milliseconds.
func (p Params) Timeout(key string, fallback time.Duration) (time.Duration, *Error) {
	v, ok := p.obj[key]
	if !ok || v == nil {
		return fallback, nil
	}
	f, ok := v.(float64)
	if !ok || f < 0 {
		return 0, ErrInvalidParams("parameter %q must be a non-negative number of milliseconds", key)
	}
	return time.Duration(f * float64(time.Millisecond)), nil
}

// Object returns an optional nested object parameter.
func (p Params) Object(key string) (map[string]any, *Error) {
	v, ok := p.obj[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, ErrInvalidParams("parameter %q must be an object", key)
	}
	return m, nil
}

// Raw returns the untyped value for a key, for pass-through arguments.
func (p Params) Raw(key string) (any, bool) {
	v, ok := p.obj[key]
	return v, ok
}
