package modules

// JSON-RPC error codes shared by all modules.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeUnauthorized   = -32001
	CodeServerError    = -32000
	CodeRateLimited    = -32020
)

// ModuleError couples a JSON-RPC error with the HTTP status the transport
// should write.
type ModuleError struct {
	HTTPStatus int
	Code       int
	Message    string
	Data       interface{}
}

func (e *ModuleError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}
