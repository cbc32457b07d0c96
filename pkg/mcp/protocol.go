package mcp

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the MCP revision the server speaks.
const ProtocolVersion = "2024-11-05"

const jsonrpcVersion = "2.0"

// Error codes defined by JSON-RPC 2.0 that the server emits.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
)

// Request is one line read from the client. Notifications have no ID.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response carries either a Result or an Error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is a protocol-level failure. Tool failures are reported in a
// ToolCallResult instead.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorObject) Error() string {
	return fmt.Sprintf("jsonrpc %d: %s", e.Code, e.Message)
}

func result(id json.RawMessage, v any) *Response {
	return &Response{JSONRPC: jsonrpcVersion, ID: id, Result: v}
}

func failure(id json.RawMessage, code int, msg string) *Response {
	return &Response{JSONRPC: jsonrpcVersion, ID: id, Error: &ErrorObject{Code: code, Message: msg}}
}

// InitializeResult answers initialize. giftrouter only advertises tools.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

// ServerInfo names the server in InitializeResult.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities lists the advertised feature sets.
type Capabilities struct {
	Tools struct{} `json:"tools"`
}

// Tool is an entry of tools/list.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolsListResult answers tools/list.
type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}

// ToolCallParams are the params of tools/call.
type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolCallResult is what every giftrouter tool returns: a single text block,
// flagged when the tool failed.
type ToolCallResult struct {
	Content []TextContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// TextContent is a text block of a ToolCallResult.
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
