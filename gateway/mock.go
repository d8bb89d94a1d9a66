package gateway

import (
	"context"
	"sync"

	"github.com/hiveline/hive/core"
)

// step is one scripted invocation outcome.
type step struct {
	resp core.GatewayResponse
	err  error
}

// MockGateway is a lightweight in-memory Gateway useful for tests and
// examples. Outcomes are scripted per capability name; once a script is
// drained the gateway falls back to a deterministic echo response. All
// invocations are recorded for assertion.
type MockGateway struct {
	mu      sync.Mutex
	scripts map[string][]step
	calls   map[string]int
	history []core.GatewayRequest
}

var _ core.Gateway = (*MockGateway)(nil)

// NewMockGateway constructs an empty MockGateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		scripts: make(map[string][]step),
		calls:   make(map[string]int),
	}
}

// Respond scripts a successful response for the named capability.
func (m *MockGateway) Respond(name, payload string) *MockGateway {
	return m.push(name, step{resp: core.GatewayResponse{Status: core.GatewayOK, Payload: payload}})
}

// FailWith scripts a failing invocation wrapping the given sentinel
// (core.ErrGatewayTimeout or core.ErrGatewayUnavailable).
func (m *MockGateway) FailWith(name string, sentinel error) *MockGateway {
	status := core.GatewayFailed
	switch sentinel {
	case core.ErrGatewayTimeout:
		status = core.GatewayTimedOut
	case core.ErrGatewayUnavailable:
		status = core.GatewayDown
	}
	return m.push(name, step{
		resp: core.GatewayResponse{Status: status, ErrorDetail: sentinel.Error()},
		err:  core.NewGatewayError(core.KindTool, name, sentinel, "scripted failure"),
	})
}

// TimeoutThenSucceed scripts n timeouts followed by a success, the shape of
// a flaky endpoint that recovers on retry.
func (m *MockGateway) TimeoutThenSucceed(name string, n int, payload string) *MockGateway {
	for i := 0; i < n; i++ {
		m.FailWith(name, core.ErrGatewayTimeout)
	}
	return m.Respond(name, payload)
}

func (m *MockGateway) push(name string, s step) *MockGateway {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[name] = append(m.scripts[name], s)
	return m
}

// Invoke implements core.Gateway following the scripted outcomes.
func (m *MockGateway) Invoke(ctx context.Context, req core.GatewayRequest) (core.GatewayResponse, error) {
	if err := ctx.Err(); err != nil {
		return core.GatewayResponse{Status: core.GatewayFailed, ErrorDetail: err.Error()}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[req.Name]++
	m.history = append(m.history, req)

	if script := m.scripts[req.Name]; len(script) > 0 {
		next := script[0]
		m.scripts[req.Name] = script[1:]
		return next.resp, next.err
	}
	return core.GatewayResponse{Status: core.GatewayOK, Payload: "echo: " + req.Name}, nil
}

// Calls returns how many times the named capability was invoked.
func (m *MockGateway) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

// TotalCalls returns the total invocation count across capabilities.
func (m *MockGateway) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// History returns a copy of all recorded requests in invocation order.
func (m *MockGateway) History() []core.GatewayRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.GatewayRequest, len(m.history))
	copy(out, m.history)
	return out
}
