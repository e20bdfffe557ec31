// Package fleet supervises the whole configured set of MCP children: it
// owns one child.Supervisor per configured name, fans start/stop/kill out
// across them, and routes call_tool by first-match-wins across whichever
// children are currently running (grounded on fractalic_mcp_manager.py's
// Supervisor class).
package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"mcpgateway/internal/child"
	"mcpgateway/internal/config"
)

// All is the special target name meaning "every configured child".
const All = "all"

// statusProbeTimeout bounds each child's get_tools_info call during Status,
// so one stuck child cannot stall the whole /status response.
const statusProbeTimeout = 5 * time.Second

// StatusEntry is one child's combined lifecycle snapshot and live tool info.
type StatusEntry struct {
	Name string `json:"-"`
	child.Snapshot
	ToolCount  int    `json:"tool_count,omitempty"`
	TokenCount int    `json:"token_count,omitempty"`
	ToolsError string `json:"tools_error,omitempty"`
}

// Fleet owns every configured child and the pool used to fan lifecycle
// commands out across them.
type Fleet struct {
	names    []string
	children map[string]*child.Supervisor
	pool     *WorkerPool
}

// New builds a Fleet from cfg. Children are constructed (their lifecycle
// goroutines start) but not started; call Start(All) to bring them up.
func New(cfg *config.FleetConfig) *Fleet {
	f := &Fleet{
		names:    append([]string(nil), cfg.Names...),
		children: make(map[string]*child.Supervisor, len(cfg.Names)),
	}
	for _, name := range cfg.Names {
		f.children[name] = child.New(cfg.Children[name])
	}
	workers := len(cfg.Names)
	if workers < 1 {
		workers = 1
	}
	f.pool = NewWorkerPool(workers, workers*2+4)
	f.pool.Start()
	return f
}

// NewForTest builds a Fleet from already-constructed supervisors, bypassing
// config-driven construction. It exists for fleet-lifecycle tests that need
// to inject a fake session into individual children via
// child.WithSessionFactory before wiring them into a Fleet.
func NewForTest(names []string, children map[string]*child.Supervisor) *Fleet {
	f := &Fleet{
		names:    append([]string(nil), names...),
		children: children,
	}
	workers := len(names)
	if workers < 1 {
		workers = 1
	}
	f.pool = NewWorkerPool(workers, workers*2+4)
	f.pool.Start()
	return f
}

// Names returns the configured children in declaration order.
func (f *Fleet) Names() []string {
	return append([]string(nil), f.names...)
}

// Get returns the named child's supervisor, or false if unknown.
func (f *Fleet) Get(name string) (*child.Supervisor, bool) {
	c, ok := f.children[name]
	return c, ok
}

// Start enqueues a start for target (a child name, or All for every child).
// It never blocks for completion.
func (f *Fleet) Start(target string) error {
	return f.fanOut(target, (*child.Supervisor).Start)
}

// Stop enqueues a stop for target (a child name, or All for every child).
func (f *Fleet) Stop(target string) error {
	return f.fanOut(target, (*child.Supervisor).Stop)
}

func (f *Fleet) fanOut(target string, op func(*child.Supervisor)) error {
	if target == All {
		for _, name := range f.names {
			c := f.children[name]
			_ = f.pool.Submit(func(ctx context.Context) error {
				op(c)
				return nil
			})
		}
		return nil
	}
	c, ok := f.children[target]
	if !ok {
		return fmt.Errorf("unknown child %q", target)
	}
	op(c)
	return nil
}

// Status returns every configured child's snapshot, in declaration order,
// merged with a best-effort live tool/token count for running children.
func (f *Fleet) Status(ctx context.Context) []StatusEntry {
	entries := make([]StatusEntry, len(f.names))
	results := make(chan struct {
		idx   int
		entry StatusEntry
	}, len(f.names))

	for i, name := range f.names {
		i, name := i, name
		c := f.children[name]
		go func() {
			entry := StatusEntry{Name: name, Snapshot: c.Info()}
			if entry.State == child.StateRunning {
				probeCtx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
				info := c.GetToolsInfo(probeCtx)
				cancel()
				entry.ToolCount = info.ToolCount
				entry.TokenCount = info.TokenCount
				entry.ToolsError = info.ToolsError
			}
			results <- struct {
				idx   int
				entry StatusEntry
			}{i, entry}
		}()
	}
	for range f.names {
		r := <-results
		entries[r.idx] = r.entry
	}
	return entries
}

// ToolsEntry is one child's raw tool list, ordered by declaration. A child
// that isn't running, or whose probe fails, carries Error instead of Tools
// (fractalic_mcp_manager.py's Supervisor.tools(), which emits
// {"error": ..., "tools": []} for every non-running or failing child rather
// than omitting it).
type ToolsEntry struct {
	Name  string
	Tools *mcp.ListToolsResult
	Error string
}

// ListToolsOne returns a single named child's tools.
func (f *Fleet) ListToolsOne(ctx context.Context, name string) (*mcp.ListToolsResult, error) {
	c, ok := f.children[name]
	if !ok {
		return nil, fmt.Errorf("unknown child %q", name)
	}
	return c.ListTools(ctx)
}

// ListToolsAll returns one ToolsEntry per configured child, in declaration
// order. A child that isn't running, or whose probe fails, gets an entry
// carrying an error message instead of being dropped from the result.
func (f *Fleet) ListToolsAll(ctx context.Context) []ToolsEntry {
	out := make([]ToolsEntry, len(f.names))
	for i, name := range f.names {
		c := f.children[name]
		if c.Info().State != child.StateRunning {
			out[i] = ToolsEntry{Name: name, Error: fmt.Sprintf("MCP state is %s", c.Info().State)}
			continue
		}
		res, err := c.ListTools(ctx)
		if err != nil {
			out[i] = ToolsEntry{Name: name, Error: err.Error()}
			continue
		}
		out[i] = ToolsEntry{Name: name, Tools: res}
	}
	return out
}

// Healthy reports whether no configured child is in the sticky errored state.
func (f *Fleet) Healthy() bool {
	for _, name := range f.names {
		if f.children[name].Info().State == child.StateErrored {
			return false
		}
	}
	return true
}

// CallTool routes toolName to the first running child (in declaration
// order) whose tool list contains it, mirroring
// fractalic_mcp_manager.py's Supervisor.call_tool first-match-wins search.
func (f *Fleet) CallTool(ctx context.Context, toolName string, args map[string]any) (string, *mcp.CallToolResult, error) {
	for _, name := range f.names {
		c := f.children[name]
		if c.Info().State != child.StateRunning {
			continue
		}
		tools, err := c.ListTools(ctx)
		if err != nil {
			continue
		}
		for _, t := range tools.Tools {
			if t.Name == toolName {
				res, err := c.CallTool(ctx, toolName, args)
				return name, res, err
			}
		}
	}
	return "", nil, fmt.Errorf("tool %q not found on any running child", toolName)
}

// Shutdown stops every child concurrently and tears the pool down. Used by
// the kill operation and by process shutdown.
func (f *Fleet) Shutdown(ctx context.Context) {
	done := make(chan struct{}, len(f.names))
	for _, name := range f.names {
		c := f.children[name]
		go func() {
			c.Shutdown()
			done <- struct{}{}
		}()
	}
	for range f.names {
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
	f.pool.Stop()
}
