package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
)

// ImpersonateTransport shells out to a helper that speaks TLS with a real
// Chrome fingerprint. Protocol: argv of method, url, headers as a JSON
// object, optional body; a single JSON object on stdout with status,
// statusText, headers, body, or an error field.
type ImpersonateTransport struct {
	command string
	args    []string

	mu        sync.Mutex
	checked   bool
	available bool
}

// NewImpersonateTransport wires the bridge command, e.g.
// ("python3", "curl-impersonate.py"). Availability is probed lazily.
func NewImpersonateTransport(command string, args ...string) *ImpersonateTransport {
	return &ImpersonateTransport{command: command, args: args}
}

func (t *ImpersonateTransport) Name() string { return "impersonate" }

// Available reports whether the bridge binary resolves on PATH. The probe
// result is cached for the transport's lifetime.
func (t *ImpersonateTransport) Available() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.checked {
		_, err := exec.LookPath(t.command)
		t.available = t.command != "" && err == nil
		t.checked = true
	}
	return t.available
}

type bridgeResult struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	Error      string            `json:"error"`
}

func (t *ImpersonateTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, req.timeout())
	defer cancel()

	headerJSON, err := json.Marshal(req.Headers)
	if err != nil {
		return nil, fmt.Errorf("encode headers: %w", err)
	}

	argv := append([]string{}, t.args...)
	argv = append(argv, req.Method, req.URL, string(headerJSON))
	if req.Body != "" {
		argv = append(argv, req.Body)
	}

	cmd := exec.CommandContext(ctx, t.command, argv...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var res bridgeResult
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		if runErr != nil {
			return nil, fmt.Errorf("impersonate bridge: %w: %s", runErr, stderr.String())
		}
		return nil, fmt.Errorf("impersonate bridge: unparseable output: %w", err)
	}
	if res.Error != "" {
		return nil, fmt.Errorf("impersonate bridge: %s", res.Error)
	}

	body := res.Body
	if req.MaxBodyBytes > 0 && int64(len(body)) > req.MaxBodyBytes {
		body = body[:req.MaxBodyBytes]
	}
	var setCookies []string
	if sc, ok := res.Headers["set-cookie"]; ok && sc != "" {
		setCookies = []string{sc}
	}
	return &Response{
		Status:      res.Status,
		Headers:     res.Headers,
		SetCookies:  setCookies,
		Body:        body,
		ContentType: res.Headers["content-type"],
	}, nil
}
