// Package metrics declares the Prometheus collectors the supervisor exposes
// at /metrics, following the label conventions of the teacher's own
// internal/metrics package (counter-vec per outcome, histogram for latency).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChildStateTransitions counts lifecycle transitions per child, labeled
	// by the state entered (starting, running, retrying, stopping, stopped, errored).
	ChildStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcp_gateway_child_state_transitions_total",
		Help: "Number of lifecycle state transitions per child",
	}, []string{"child", "state"})

	// HealthProbes counts health monitor outcomes per child.
	HealthProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcp_gateway_health_probes_total",
		Help: "Number of health probe outcomes per child",
	}, []string{"child", "result"}) // result: success, failure

	// RestartsTotal counts retry-driven restarts per child.
	RestartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcp_gateway_restarts_total",
		Help: "Number of retry-driven restarts per child",
	}, []string{"child"})

	// ToolCalls counts call_tool dispatches per child/tool/outcome.
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcp_gateway_tool_calls_total",
		Help: "Number of call_tool dispatches",
	}, []string{"child", "tool", "status"}) // status: success, error, not_found

	// RPCDuration measures MCP RPC latency by kind (list_tools, call_tool, health_probe).
	RPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mcp_gateway_rpc_duration_seconds",
		Help:    "Latency of MCP RPCs issued by the supervisor",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// HTTPRequests counts control-plane requests per route/status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcp_gateway_http_requests_total",
		Help: "Number of HTTP control-plane requests",
	}, []string{"route", "status"})
)
