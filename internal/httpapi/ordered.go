package httpapi

import (
	"bytes"
	"encoding/json"

	"mcpgateway/internal/fleet"
)

// orderedObject renders as a JSON object whose keys appear in the slice's
// own order rather than the alphabetical order encoding/json imposes on
// map[string]T. The fleet preserves mcp_servers.json's declaration order
// end to end, and the HTTP responses keep that ordering rather than
// discarding it at the last step.
type orderedObject []orderedField

type orderedField struct {
	Key   string
	Value any
}

func (o orderedObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func statusToOrdered(entries []fleet.StatusEntry) orderedObject {
	out := make(orderedObject, len(entries))
	for i, e := range entries {
		out[i] = orderedField{Key: e.Name, Value: e}
	}
	return out
}

// toolsEntryBody is the plain-dict shape fractalic_mcp_manager.py's
// Supervisor.tools() emits per child: {"tools": [...]} on success, or
// {"error": "...", "tools": []} for a non-running or failed child.
type toolsEntryBody struct {
	Error string `json:"error,omitempty"`
	Tools any    `json:"tools"`
}

func toolsToOrdered(entries []fleet.ToolsEntry) orderedObject {
	out := make(orderedObject, len(entries))
	for i, e := range entries {
		body := toolsEntryBody{Error: e.Error, Tools: []any{}}
		if e.Tools != nil {
			body.Tools = e.Tools.Tools
		}
		out[i] = orderedField{Key: e.Name, Value: body}
	}
	return out
}
