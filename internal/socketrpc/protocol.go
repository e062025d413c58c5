package socketrpc

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// JSON-RPC 2.0 Method Reference
//
// The socket RPC server exposes the dashboard view engine over a Unix domain
// socket. Requests and responses are newline-delimited JSON objects.
//
//   Method         Params                          Result
//   ───────────    ────────────────────────────    ─────────────────
//   DatasetInfo    (none)                          DatasetInfo
//   ComputeView    {Selection: Selection}          View
//   ComputeChart   {Selection: Selection, ID}      ChartSpec
//   LoadHistory    {Limit: int}                    []LoadRecord
//
// An empty Selection selects every protocol and the full duration range;
// duration_min and duration_max default independently when absent.
//
// Error codes follow JSON-RPC 2.0:
//   -32700  Parse error (malformed JSON)
//   -32601  Method not found
//   -32602  Invalid params (including an invalid selection)
//   -32603  Internal error (marshal failure)
//   -32000  Application error (query failure)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeApplication    = -32000
)

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// DefaultSocketPath returns the default Unix socket path.
// It prefers $XDG_RUNTIME_DIR/flowdash/flowdash.sock, falling back to
// ~/.local/state/flowdash/flowdash.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "flowdash", "flowdash.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/flowdash.sock"
	}
	return filepath.Join(home, ".local", "state", "flowdash", "flowdash.sock")
}
