// File: api/schemas/rpc.go
package schemas

import "encoding/json"

// ProtocolVersion is the only JSON-RPC version puppetd speaks.
const ProtocolVersion = "2.0"

// JSON-RPC 2.0 reserved error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Application error codes (implementation-defined server range).
const (
	CodeBrowserOperationError = -32000
	CodePageNotAvailableError = -32001
	CodeElementNotFoundError  = -32002
	CodeConfigError           = -32003
)

// Response is the outbound envelope. Exactly one of Result or Error is set.
// A nil ID marshals as null, which is the required shape when the correlation
// identifier could not be recovered from the request.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// ErrorObject is the JSON-RPC error member.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// NewSuccessResponse builds a success envelope echoing the given raw ID.
func NewSuccessResponse(id json.RawMessage, result any) Response {
	return Response{JSONRPC: ProtocolVersion, Result: result, ID: id}
}

// NewErrorResponse builds an error envelope echoing the given raw ID.
func NewErrorResponse(id json.RawMessage, code int, message string, data any) Response {
	return Response{
		JSONRPC: ProtocolVersion,
		Error:   &ErrorObject{Code: code, Message: message, Data: data},
		ID:      id,
	}
}
