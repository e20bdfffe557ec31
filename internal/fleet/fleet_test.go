package fleet_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"mcpgateway/internal/child"
	"mcpgateway/internal/config"
	"mcpgateway/internal/fleet"
	"mcpgateway/internal/mcptransport"
)

func emptyFleet() *fleet.Fleet {
	return fleet.New(&config.FleetConfig{Children: map[string]config.ChildConfig{}})
}

// fakeToolSession is a mcptransport.SessionHandle double that always reports
// the same fixed tool list and counts CallTool invocations, for exercising
// Fleet.CallTool's cross-child first-match-wins routing.
type fakeToolSession struct {
	tools []*mcp.Tool
	calls int32
}

func (f *fakeToolSession) ListTools(ctx context.Context, timeout time.Duration) (*mcp.ListToolsResult, error) {
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeToolSession) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	atomic.AddInt32(&f.calls, 1)
	return &mcp.CallToolResult{}, nil
}

func (f *fakeToolSession) Close() error { return nil }

func newRunningChild(t *testing.T, name string, sess mcptransport.SessionHandle) *child.Supervisor {
	t.Helper()
	cfg := config.ChildConfig{Name: name, Env: map[string]string{"RETRY_COUNT": "1"}}
	sup := child.New(cfg,
		child.WithSessionFactory(func(ctx context.Context) (mcptransport.SessionHandle, error) { return sess, nil }),
		child.WithHealthInterval(time.Hour),
	)
	deadline := time.Now().Add(time.Second)
	sup.Start()
	for time.Now().Before(deadline) {
		if sup.Info().State == child.StateRunning {
			return sup
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("child %q never reached running, last state %q", name, sup.Info().State)
	return sup
}

// TestCallToolRoutesToFirstRunningChildThatHasIt covers spec.md §8's
// cross-child routing scenario: call_tool dispatches to the first running
// child (in declaration order) that reports the requested tool, never to any
// other.
func TestCallToolRoutesToFirstRunningChildThatHasIt(t *testing.T) {
	weather := &fakeToolSession{tools: []*mcp.Tool{{Name: "get_weather"}}}
	news := &fakeToolSession{tools: []*mcp.Tool{{Name: "get_news"}}}

	weatherSup := newRunningChild(t, "weather", weather)
	newsSup := newRunningChild(t, "news", news)
	defer weatherSup.Shutdown()
	defer newsSup.Shutdown()

	f := fleet.NewForTest([]string{"weather", "news"}, map[string]*child.Supervisor{
		"weather": weatherSup,
		"news":    newsSup,
	})

	name, _, err := f.CallTool(context.Background(), "get_news", nil)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if name != "news" {
		t.Fatalf("expected routing to news child, got %q", name)
	}
	if got := atomic.LoadInt32(&news.calls); got != 1 {
		t.Fatalf("expected news child's CallTool invoked once, got %d", got)
	}
	if got := atomic.LoadInt32(&weather.calls); got != 0 {
		t.Fatalf("expected weather child's CallTool never invoked, got %d", got)
	}
}

func TestNewEmptyFleetStatusIsEmpty(t *testing.T) {
	f := emptyFleet()
	entries := f.Status(context.Background())
	if len(entries) != 0 {
		t.Fatalf("expected no entries for empty fleet, got %d", len(entries))
	}
	if !f.Healthy() {
		t.Fatalf("expected empty fleet to be healthy")
	}
}

func TestStartUnknownTargetErrors(t *testing.T) {
	f := emptyFleet()
	if err := f.Start("does-not-exist"); err == nil {
		t.Fatalf("expected error starting unknown child")
	}
}

func TestStopUnknownTargetErrors(t *testing.T) {
	f := emptyFleet()
	if err := f.Stop("does-not-exist"); err == nil {
		t.Fatalf("expected error stopping unknown child")
	}
}

func TestStartAllOnEmptyFleetIsNoop(t *testing.T) {
	f := emptyFleet()
	if err := f.Start(fleet.All); err != nil {
		t.Fatalf("expected start(all) on empty fleet to succeed, got %v", err)
	}
}

func TestCallToolOnEmptyFleetErrors(t *testing.T) {
	f := emptyFleet()
	_, _, err := f.CallTool(context.Background(), "anything", nil)
	if err == nil {
		t.Fatalf("expected error calling tool on empty fleet")
	}
}

func TestListToolsOneUnknownErrors(t *testing.T) {
	f := emptyFleet()
	if _, err := f.ListToolsOne(context.Background(), "ghost"); err == nil {
		t.Fatalf("expected error listing tools for unknown child")
	}
}
