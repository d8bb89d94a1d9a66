package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hiveline/hive/core"
	"github.com/hiveline/hive/logging"
)

// Handler executes one registered capability. Handlers should honor ctx
// cancellation; the gateway enforces the request timeout around the call.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Options configures a FunctionGateway.
type Options struct {
	// DefaultTimeout bounds requests that carry no timeout of their own.
	DefaultTimeout time.Duration
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// FunctionGateway serves gateway requests from in-process Go handlers
// registered by kind and name. It lets a swarm run end to end without any
// external provider, and doubles as the tool transport in front of real
// model gateways.
type FunctionGateway struct {
	mu             sync.RWMutex
	handlers       map[core.GatewayKind]map[string]Handler
	defaultTimeout time.Duration
	logger         logging.Logger
}

var _ core.Gateway = (*FunctionGateway)(nil)

// NewFunctionGateway creates an empty FunctionGateway with optional overrides.
func NewFunctionGateway(optFns ...func(o *Options)) *FunctionGateway {
	opts := Options{
		DefaultTimeout: 30 * time.Second,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &FunctionGateway{
		handlers:       make(map[core.GatewayKind]map[string]Handler),
		defaultTimeout: opts.DefaultTimeout,
		logger:         opts.Logger,
	}
}

// RegisterTool registers a tool handler under the given name. Re-registering
// a name replaces the previous handler.
func (g *FunctionGateway) RegisterTool(name string, h Handler) {
	g.register(core.KindTool, name, h)
}

// RegisterModel registers a model completion handler under the given name.
func (g *FunctionGateway) RegisterModel(name string, h Handler) {
	g.register(core.KindModel, name, h)
}

func (g *FunctionGateway) register(kind core.GatewayKind, name string, h Handler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.handlers[kind] == nil {
		g.handlers[kind] = make(map[string]Handler)
	}
	g.handlers[kind][name] = h
}

// Invoke implements core.Gateway. Unknown capabilities surface as
// GatewayUnavailable so callers treat a missing handler like an unreachable
// endpoint rather than a programming error.
func (g *FunctionGateway) Invoke(ctx context.Context, req core.GatewayRequest) (core.GatewayResponse, error) {
	g.mu.RLock()
	h, ok := g.handlers[req.Kind][req.Name]
	g.mu.RUnlock()
	if !ok {
		err := core.NewGatewayError(req.Kind, req.Name, core.ErrGatewayUnavailable, "no handler registered")
		return core.GatewayResponse{Status: core.GatewayDown, ErrorDetail: err.Detail}, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = g.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	payload, err := runHandler(callCtx, h, req.Arguments)
	dur := time.Since(start)
	g.logger.Debug("gateway invocation finished", "kind", req.Kind, "name", req.Name, "duration", dur, "error", err)

	switch {
	case err == nil:
		return core.GatewayResponse{Status: core.GatewayOK, Payload: payload}, nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		gerr := core.NewGatewayError(req.Kind, req.Name, core.ErrGatewayTimeout, fmt.Sprintf("exceeded %s", timeout))
		return core.GatewayResponse{Status: core.GatewayTimedOut, ErrorDetail: gerr.Detail}, gerr
	case ctx.Err() != nil:
		// Parent cancellation, not a gateway fault.
		return core.GatewayResponse{Status: core.GatewayFailed, ErrorDetail: ctx.Err().Error()}, ctx.Err()
	default:
		gerr := &core.GatewayError{Kind: req.Kind, Name: req.Name, Err: err, Detail: err.Error()}
		return core.GatewayResponse{Status: core.GatewayFailed, ErrorDetail: err.Error()}, gerr
	}
}

// runHandler executes the handler in its own goroutine so a handler that
// ignores ctx cannot block Invoke past the timeout.
func runHandler(ctx context.Context, h Handler, args map[string]any) (string, error) {
	type result struct {
		payload string
		err     error
	}
	done := make(chan result, 1)
	go func() {
		payload, err := h(ctx, args)
		done <- result{payload: payload, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.payload, r.err
	}
}
