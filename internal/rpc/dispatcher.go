// File: internal/rpc/dispatcher.go
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"runtime/debug"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/puppetd/api/schemas"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// HandlerFunc services one JSON-RPC method. A returned *Error passes through
// to the wire verbatim; any other error is masked as an internal error.
type HandlerFunc func(ctx context.Context, p Params) (any, error)

// Dispatcher validates inbound JSON-RPC envelopes and routes them to
// registered method handlers. Validation runs in a fixed order (parse,
// envelope, params shape, method lookup) so a request failing several checks
// always reports the earliest failure.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger.Named("rpc"),
	}
}

// Register binds a method name to its handler. Registering a duplicate name
// is a programming error and panics at startup.
func (d *Dispatcher) Register(method string, fn HandlerFunc) {
	if _, exists := d.handlers[method]; exists {
		panic("rpc: duplicate method registration: " + method)
	}
	d.handlers[method] = fn
}

// Methods returns the registered method names.
func (d *Dispatcher) Methods() []string {
	out := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		out = append(out, name)
	}
	return out
}

// Dispatch processes one raw request body and always produces exactly one
// response envelope. The request ID is echoed byte-for-byte whenever it can
// be recovered, and is null only when it cannot.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) schemas.Response {
	var probe any
	if err := codec.Unmarshal(body, &probe); err != nil {
		d.logger.Debug("Request body failed to parse.", zap.Error(err))
		return schemas.NewErrorResponse(nil, schemas.CodeParseError, "Parse error", err.Error())
	}

	obj, ok := probe.(map[string]any)
	if !ok {
		// Batch arrays and bare scalars are both rejected here. No object
		// means no recoverable id.
		return schemas.NewErrorResponse(nil, schemas.CodeInvalidRequest,
			"Invalid Request", "request must be a single JSON object")
	}

	id := recoverID(obj)

	if version, _ := obj["jsonrpc"].(string); version != schemas.ProtocolVersion {
		return schemas.NewErrorResponse(id, schemas.CodeInvalidRequest,
			"Invalid Request", `field "jsonrpc" must be exactly "2.0"`)
	}
	method, _ := obj["method"].(string)
	if method == "" {
		return schemas.NewErrorResponse(id, schemas.CodeInvalidRequest,
			"Invalid Request", `field "method" must be a non-empty string`)
	}
	if rawParams, present := obj["params"]; present && rawParams != nil {
		switch rawParams.(type) {
		case map[string]any, []any:
		default:
			return schemas.NewErrorResponse(id, schemas.CodeInvalidParams,
				"Invalid params", `field "params" must be an object or an array`)
		}
	}

	handler, ok := d.handlers[method]
	if !ok {
		return schemas.NewErrorResponse(id, schemas.CodeMethodNotFound,
			"Method not found", method)
	}

	result, err := d.invoke(ctx, method, handler, newParams(obj["params"]))
	if err != nil {
		var rpcErr *Error
		if errors.As(err, &rpcErr) {
			return schemas.NewErrorResponse(id, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		}
		d.logger.Error("Handler returned an unclassified error.",
			zap.String("method", method), zap.Error(err))
		return schemas.NewErrorResponse(id, schemas.CodeInternalError, "Internal error", nil)
	}
	return schemas.NewSuccessResponse(id, result)
}

// invoke runs the handler with panic containment so one faulting request
// cannot take down the process.
func (d *Dispatcher) invoke(ctx context.Context, method string, handler HandlerFunc, p Params) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Handler panicked.",
				zap.String("method", method),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = NewError(schemas.CodeInternalError, "Internal error")
		}
	}()
	return handler(ctx, p)
}

// recoverID re-encodes the request's id member so the response echoes it
// exactly, including non-string forms. Absent ids stay null.
func recoverID(obj map[string]any) json.RawMessage {
	v, ok := obj["id"]
	if !ok || v == nil {
		return nil
	}
	raw, err := codec.Marshal(v)
	if err != nil {
		return nil
	}
	return json.RawMessage(raw)
}
