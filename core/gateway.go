package core

import (
	"context"
	"time"
)

// GatewayKind distinguishes tool invocations from model completions.
type GatewayKind string

const (
	// KindTool requests execution of an external tool.
	KindTool GatewayKind = "tool"
	// KindModel requests a language-model completion.
	KindModel GatewayKind = "model"
)

// GatewayStatus classifies the outcome of a gateway invocation.
type GatewayStatus string

const (
	// GatewayOK means the invocation succeeded and Payload is valid.
	GatewayOK GatewayStatus = "ok"
	// GatewayTimedOut means the bounded timeout elapsed.
	GatewayTimedOut GatewayStatus = "timeout"
	// GatewayDown means the transport failed before a response arrived.
	GatewayDown GatewayStatus = "unavailable"
	// GatewayFailed means the remote side returned an application error.
	GatewayFailed GatewayStatus = "error"
)

// GatewayRequest describes one tool or model invocation.
type GatewayRequest struct {
	Kind      GatewayKind    `json:"kind"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	// Timeout bounds the invocation. Zero means the gateway's default.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// GatewayResponse is the uniform invocation result.
type GatewayResponse struct {
	Status      GatewayStatus `json:"status"`
	Payload     string        `json:"payload,omitempty"`
	ErrorDetail string        `json:"error_detail,omitempty"`
}

// Gateway is the uniform contract for invoking an external tool or a
// language-model completion.
//
// Implementations must:
//   - Enforce the request timeout, returning ErrGatewayTimeout on expiry
//   - Map transport failures to ErrGatewayUnavailable
//   - Never retry internally; retry policy belongs entirely to the caller
//     so backoff stays centralized in the swarm coordinator's budget
//   - Respect context cancellation
type Gateway interface {
	Invoke(ctx context.Context, req GatewayRequest) (GatewayResponse, error)
}
