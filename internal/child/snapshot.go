package child

import (
	"time"

	"mcpgateway/internal/capture"
	"mcpgateway/internal/config"
)

// Snapshot is the non-blocking view of a child returned by info() (spec.md §4.3).
type Snapshot struct {
	State              State          `json:"state"`
	PID                int            `json:"pid"`
	Transport          config.Transport `json:"transport"`
	Retries            int            `json:"retries"`
	UptimeSeconds       *float64       `json:"uptime"`
	Healthy            bool           `json:"healthy"`
	Restarts           int            `json:"restarts"`
	LastError          string         `json:"last_error"`
	Stdout             []capture.Line `json:"stdout"`
	Stderr             []capture.Line `json:"stderr"`
	LastOutputRenewal  *time.Time     `json:"last_output_renewal"`
}

// ToolsInfo is the live tool-count/token-count view returned by
// get_tools_info() and merged into the HTTP /status response.
type ToolsInfo struct {
	ToolCount   int    `json:"tool_count"`
	TokenCount  int    `json:"token_count"`
	ToolsError  string `json:"tools_error,omitempty"`
}
