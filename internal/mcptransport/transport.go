// Package mcptransport opens MCP sessions over stdio-spawned children or
// streamable-HTTP endpoints and wraps the raw SDK session with the bounded
// per-call timeouts the supervisor requires.
package mcptransport

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RPCTimeout bounds every list_tools/call_tool RPC.
const RPCTimeout = 30 * time.Second

// HealthTimeout bounds the health monitor's list_tools probe (one third of RPCTimeout).
const HealthTimeout = RPCTimeout / 3

var clientImpl = &mcp.Implementation{Name: "mcp-fleet-gateway", Version: "1.0.0"}

// SessionHandle is the subset of *Session that internal/child depends on.
// Production code always gets a real *Session; tests substitute a fake
// implementing this interface to simulate probe successes/failures without
// spawning a process or dialing HTTP (see child.WithSessionFactory).
type SessionHandle interface {
	ListTools(ctx context.Context, timeout time.Duration) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	Close() error
}

// Session is a thin, timeout-enforcing wrapper around an initialized MCP
// client session. It is safe for concurrent use by multiple goroutines for
// RPCs, but Close must only be called once the owner has stopped issuing RPCs.
type Session struct {
	inner *mcp.ClientSession
}

var _ SessionHandle = (*Session)(nil)

// NewStdioCommand shell-splits command and builds an *exec.Cmd with args
// appended and env merged over the current process's environment. The
// returned command is not started; the caller (internal/child) wires
// cmd.Stderr/StderrPipe before handing it to ConnectStdio, since
// mcp.CommandTransport takes ownership of Stdin/Stdout for protocol framing
// and starts the process itself on Connect.
func NewStdioCommand(ctx context.Context, command string, args []string, env map[string]string) (*exec.Cmd, error) {
	parts := splitWithQuotes(command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("mcptransport: empty command")
	}
	cmd := exec.CommandContext(ctx, parts[0], append(parts[1:], args...)...)
	cmd.Env = mergeEnv(env)
	return cmd, nil
}

// ConnectStdio speaks MCP framing over cmd's stdin/stdout, starting cmd as
// part of the handshake.
func ConnectStdio(ctx context.Context, cmd *exec.Cmd) (*Session, error) {
	transport := &mcp.CommandTransport{Command: cmd}
	return connect(ctx, transport)
}

// OpenHTTP opens a streamable-HTTP MCP session against url.
func OpenHTTP(ctx context.Context, url string) (*Session, error) {
	transport := &mcp.StreamableClientTransport{
		Endpoint:   url,
		HTTPClient: &http.Client{Timeout: RPCTimeout},
	}
	return connect(ctx, transport)
}

func connect(ctx context.Context, transport mcp.Transport) (*Session, error) {
	client := mcp.NewClient(clientImpl, nil)
	inner, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcptransport: connect: %w", err)
	}
	return &Session{inner: inner}, nil
}

// ListTools lists the session's tools, bounded by timeout.
func (s *Session) ListTools(ctx context.Context, timeout time.Duration) (*mcp.ListToolsResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.inner.ListTools(ctx, nil)
}

// CallTool invokes name with args, bounded by RPCTimeout.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, RPCTimeout)
	defer cancel()
	return s.inner.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
}

// Close is idempotent; it releases the underlying pipes/sockets.
func (s *Session) Close() error {
	if s == nil || s.inner == nil {
		return nil
	}
	return s.inner.Close()
}

func mergeEnv(overlay map[string]string) []string {
	env := append([]string{}, os.Environ()...)
	for k, v := range overlay {
		env = append(env, k+"="+v)
	}
	return env
}

func splitWithQuotes(s string) []string {
	var args []string
	var current []rune
	inQuote := false
	quoteChar := rune(0)

	for _, c := range s {
		if inQuote {
			if c == quoteChar {
				inQuote = false
			} else {
				current = append(current, c)
			}
		} else {
			switch c {
			case '"', '\'':
				inQuote = true
				quoteChar = c
			case ' ', '\t':
				if len(current) > 0 {
					args = append(args, string(current))
					current = nil
				}
			default:
				current = append(current, c)
			}
		}
	}
	if len(current) > 0 {
		args = append(args, string(current))
	}
	return args
}
