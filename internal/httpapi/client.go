package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a thin HTTP client for the CLI's status/tools/start/stop/kill
// subcommands, which talk to an already-running `serve` process rather than
// embedding a Fleet themselves (spec.md §6).
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client against a gateway listening on host:port.
func NewClient(host string, port int) *Client {
	return &Client{
		baseURL: fmt.Sprintf("http://%s:%d", host, port),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to gateway at %s failed: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return out, fmt.Errorf("gateway returned %s: %s", resp.Status, string(out))
	}
	return out, nil
}

// Status fetches GET /status.
func (c *Client) Status() ([]byte, error) { return c.do(http.MethodGet, "/status", nil) }

// Tools fetches GET /tools.
func (c *Client) Tools() ([]byte, error) { return c.do(http.MethodGet, "/tools", nil) }

// Start calls POST /start/{target}.
func (c *Client) Start(target string) ([]byte, error) {
	return c.do(http.MethodPost, "/start/"+target, nil)
}

// Stop calls POST /stop/{target}.
func (c *Client) Stop(target string) ([]byte, error) {
	return c.do(http.MethodPost, "/stop/"+target, nil)
}

// Kill calls POST /kill.
func (c *Client) Kill() ([]byte, error) { return c.do(http.MethodPost, "/kill", nil) }
