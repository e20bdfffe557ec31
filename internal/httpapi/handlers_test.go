package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"mcpgateway/internal/child"
	"mcpgateway/internal/config"
	"mcpgateway/internal/fleet"
	"mcpgateway/internal/mcptransport"
)

func newTestServer() *Server {
	cfg := &config.AppConfig{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	f := fleet.New(&config.FleetConfig{Children: map[string]config.ChildConfig{}})
	return New(cfg, f)
}

func TestHandleStatusEmptyFleet(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "{}" {
		t.Errorf("expected empty object body, got %s", rec.Body.String())
	}
}

func TestHandleStartUnknownChild(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/start/ghost", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown child, got %d", rec.Code)
	}
}

func TestHandleCallToolMissingName(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/call_tool", strings.NewReader(`{"arguments":{}}`))
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing tool name, got %d", rec.Code)
	}
}

func TestHandleLiveAlwaysOK(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandleReadyHealthyWithNoChildren(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 (vacuously healthy with no children), got %d", rec.Code)
	}
}

// fakeToolsSession is a minimal mcptransport.SessionHandle double reporting a
// fixed tool list, used to put a child into a running state without
// spawning a real process.
type fakeToolsSession struct{ tools []*mcp.Tool }

func (f *fakeToolsSession) ListTools(ctx context.Context, timeout time.Duration) (*mcp.ListToolsResult, error) {
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}
func (f *fakeToolsSession) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{}, nil
}
func (f *fakeToolsSession) Close() error { return nil }

// TestHandleToolsEmitsErrorEntryForNonRunningChild covers the maintainer fix
// to ListToolsAll: /tools must report one entry per configured child, with a
// non-running child carrying an error string rather than being omitted.
func TestHandleToolsEmitsErrorEntryForNonRunningChild(t *testing.T) {
	runningCfg := config.ChildConfig{Name: "running-one", Env: map[string]string{"RETRY_COUNT": "1"}}
	running := child.New(runningCfg,
		child.WithSessionFactory(func(ctx context.Context) (mcptransport.SessionHandle, error) {
			return &fakeToolsSession{tools: []*mcp.Tool{{Name: "ping"}}}, nil
		}),
		child.WithHealthInterval(time.Hour),
	)
	defer running.Shutdown()
	running.Start()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && running.Info().State != child.StateRunning {
		time.Sleep(2 * time.Millisecond)
	}
	if running.Info().State != child.StateRunning {
		t.Fatalf("running-one never reached running, state %q", running.Info().State)
	}

	stopped := child.New(config.ChildConfig{Name: "stopped-one"})
	defer stopped.Shutdown()

	f := fleet.NewForTest([]string{"running-one", "stopped-one"}, map[string]*child.Supervisor{
		"running-one": running,
		"stopped-one": stopped,
	})
	cfg := &config.AppConfig{}
	s := New(cfg, f)

	req := httptest.NewRequest(http.MethodGet, "/tools", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"running-one"`) || !strings.Contains(body, `"ping"`) {
		t.Errorf("expected running child's tools in response, got %s", body)
	}
	if !strings.Contains(body, `"stopped-one"`) || !strings.Contains(body, `"MCP state is stopped"`) {
		t.Errorf("expected stopped child to carry an error entry, got %s", body)
	}
}
