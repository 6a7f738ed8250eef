package helius

import (
	"encoding/json"

	"github.com/google/uuid"
)

// RpcBody is a JSON-RPC 2.0 request envelope.
type RpcBody struct {
	Method  string        `json:"method"`
	Jsonrpc string        `json:"jsonrpc"`
	Params  []interface{} `json:"params"`
	Id      string        `json:"id"`
}

// RpcResponse is a JSON-RPC 2.0 response envelope.
type RpcResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	Id      string          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RpcError       `json:"error"`
}

// RpcError is a JSON-RPC error object.
type RpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewRpcBody creates a new RpcBody with the given method and params and a
// fresh request id.
func NewRpcBody(method string, params []interface{}) ([]byte, error) {
	body := &RpcBody{
		Method:  method,
		Jsonrpc: "2.0",
		Params:  params,
		Id:      uuid.New().String(),
	}
	return json.Marshal(body)
}
