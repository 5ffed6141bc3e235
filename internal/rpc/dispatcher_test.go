// File: internal/rpc/dispatcher_test.go
package rpc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/puppetd/api/schemas"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestDispatcher() *Dispatcher {
	return NewDispatcher(zap.NewNop())
}

func TestDispatchParseError(t *testing.T) {
	d := newTestDispatcher()

	resp := d.Dispatch(context.Background(), []byte(`{"jsonrpc": "2.0",`))

	require.NotNil(t, resp.Error)
	assert.Equal(t, schemas.CodeParseError, resp.Error.Code)
	assert.Nil(t, resp.ID, "unparseable body must answer with a null id")
	assert.Equal(t, schemas.ProtocolVersion, resp.JSONRPC)
}

func TestDispatchRejectsNonObjectRequests(t *testing.T) {
	for name, body := range map[string]string{
		"array":  `[{"jsonrpc":"2.0","method":"x","id":1}]`,
		"string": `"hello"`,
		"number": `42`,
	} {
		t.Run(name, func(t *testing.T) {
			resp := newTestDispatcher().Dispatch(context.Background(), []byte(body))
			require.NotNil(t, resp.Error)
			assert.Equal(t, schemas.CodeInvalidRequest, resp.Error.Code)
			assert.Nil(t, resp.ID)
		})
	}
}

func TestDispatchRejectsBadEnvelope(t *testing.T) {
	for name, body := range map[string]string{
		"missing version": `{"method":"x","id":7}`,
		"wrong version":   `{"jsonrpc":"1.0","method":"x","id":7}`,
		"missing method":  `{"jsonrpc":"2.0","id":7}`,
		"empty method":    `{"jsonrpc":"2.0","method":"","id":7}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp := newTestDispatcher().Dispatch(context.Background(), []byte(body))
			require.NotNil(t, resp.Error)
			assert.Equal(t, schemas.CodeInvalidRequest, resp.Error.Code)
			assert.JSONEq(t, `7`, string(resp.ID), "a recoverable id must be echoed even on envelope errors")
		})
	}
}

func TestDispatchScalarParamsIsInvalidParams(t *testing.T) {
	for name, body := range map[string]string{
		"number": `{"jsonrpc":"2.0","method":"x","params":42,"id":7}`,
		"string": `{"jsonrpc":"2.0","method":"x","params":"selector","id":7}`,
		"bool":   `{"jsonrpc":"2.0","method":"x","params":true,"id":7}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp := newTestDispatcher().Dispatch(context.Background(), []byte(body))
			require.NotNil(t, resp.Error)
			assert.Equal(t, schemas.CodeInvalidParams, resp.Error.Code,
				"a params member of the wrong type is an invalid-params failure, not a malformed envelope")
			assert.JSONEq(t, `7`, string(resp.ID))
		})
	}
}

func TestDispatchMethodNotFound(t *testing.T) {
	resp := newTestDispatcher().Dispatch(context.Background(),
		[]byte(`{"jsonrpc":"2.0","method":"no.such.method","id":"req-9"}`))

	require.NotNil(t, resp.Error)
	assert.Equal(t, schemas.CodeMethodNotFound, resp.Error.Code)
	assert.JSONEq(t, `"req-9"`, string(resp.ID))
}

func TestDispatchSuccessEchoesID(t *testing.T) {
	d := newTestDispatcher()
	d.Register("echo", func(_ context.Context, p Params) (any, error) {
		v, _ := p.Raw("value")
		return map[string]any{"value": v}, nil
	})

	for name, id := range map[string]string{
		"string id": `"abc"`,
		"number id": `42`,
	} {
		t.Run(name, func(t *testing.T) {
			body := `{"jsonrpc":"2.0","method":"echo","params":{"value":1},"id":` + id + `}`
			resp := d.Dispatch(context.Background(), []byte(body))
			require.Nil(t, resp.Error)
			assert.JSONEq(t, id, string(resp.ID))
			assert.Equal(t, schemas.ProtocolVersion, resp.JSONRPC)
		})
	}
}

func TestDispatchHandlerErrorPassThrough(t *testing.T) {
	d := newTestDispatcher()
	d.Register("fail", func(context.Context, Params) (any, error) {
		return nil, ErrInvalidParams("missing required parameter %q", "url").WithData("details")
	})

	resp := d.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"fail","id":1}`))

	require.NotNil(t, resp.Error)
	assert.Equal(t, schemas.CodeInvalidParams, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, `"url"`)
	assert.Equal(t, "details", resp.Error.Data)
}

func TestDispatchMasksUnclassifiedErrors(t *testing.T) {
	d := newTestDispatcher()
	d.Register("boom", func(context.Context, Params) (any, error) {
		return nil, errors.New("database password is hunter2")
	})

	resp := d.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"boom","id":1}`))

	require.NotNil(t, resp.Error)
	assert.Equal(t, schemas.CodeInternalError, resp.Error.Code)
	assert.Equal(t, "Internal error", resp.Error.Message)
	assert.Nil(t, resp.Error.Data, "internal details must not leak onto the wire")
}

func TestDispatchRecoversFromPanics(t *testing.T) {
	d := newTestDispatcher()
	d.Register("panic", func(context.Context, Params) (any, error) {
		panic("handler bug")
	})

	resp := d.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"panic","id":3}`))

	require.NotNil(t, resp.Error)
	assert.Equal(t, schemas.CodeInternalError, resp.Error.Code)
	assert.JSONEq(t, `3`, string(resp.ID))
}

func TestRegisterDuplicatePanics(t *testing.T) {
	d := newTestDispatcher()
	d.Register("m", func(context.Context, Params) (any, error) { return nil, nil })
	assert.Panics(t, func() {
		d.Register("m", func(context.Context, Params) (any, error) { return nil, nil })
	})
}

func TestParamsTypedGetters(t *testing.T) {
	p := newParams(map[string]any{
		"s":       "hello",
		"empty":   "",
		"n":       float64(7),
		"frac":    6.5,
		"b":       true,
		"timeout": float64(1500),
		"obj":     map[string]any{"k": "v"},
	})

	s, err := p.String("s")
	require.Nil(t, err)
	assert.Equal(t, "hello", s)

	_, err = p.String("empty")
	require.NotNil(t, err)
	assert.Equal(t, schemas.CodeInvalidParams, err.Code)

	e, err := p.StringAllowEmpty("empty")
	require.Nil(t, err)
	assert.Equal(t, "", e)

	n, err := p.OptionalInt("n", 0)
	require.Nil(t, err)
	assert.Equal(t, 7, n)

	_, err = p.OptionalInt("frac", 0)
	require.NotNil(t, err)

	b, err := p.OptionalBool("b", false)
	require.Nil(t, err)
	assert.True(t, b)

	d, err := p.Timeout("timeout", 0)
	require.Nil(t, err)
	assert.Equal(t, "1.5s", d.String())

	d, err = p.Timeout("absent", 42)
	require.Nil(t, err)
	assert.EqualValues(t, 42, d)

	obj, err := p.Object("obj")
	require.Nil(t, err)
	assert.Equal(t, "v", obj["k"])

	_, err = p.String("missing")
	require.NotNil(t, err)
	assert.Equal(t, schemas.CodeInvalidParams, err.Code)
}
