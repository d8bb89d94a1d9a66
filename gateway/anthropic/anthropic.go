// Package anthropic provides a model-kind gateway backed by the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hiveline/hive/core"
)

// Options configures the Anthropic gateway (model id, temperature, max
// tokens, API key, default timeout).
type Options struct {
	Model          anthropic.Model
	Temperature    float64
	MaxTokens      int64
	APIKey         string
	DefaultTimeout time.Duration
}

// Gateway adapts the Anthropic Messages API to the core.Gateway contract.
// Only model-kind requests are served; tool-kind requests return
// GatewayUnavailable so callers can compose this gateway behind a router
// that sends tool traffic elsewhere.
type Gateway struct {
	client *anthropic.Client
	opts   Options
}

var _ core.Gateway = (*Gateway)(nil)

// New creates a new Anthropic gateway using the official client.
func New(optFns ...func(o *Options)) *Gateway {
	opts := Options{
		Model:          anthropic.ModelClaude3_5Sonnet20241022,
		Temperature:    0.7,
		MaxTokens:      4096,
		DefaultTimeout: 60 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Gateway{client: &client, opts: opts}
}

// NewFromClient creates a gateway from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Gateway {
	opts := Options{
		Model:          anthropic.ModelClaude3_5Sonnet20241022,
		Temperature:    0.7,
		MaxTokens:      4096,
		DefaultTimeout: 60 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gateway{client: client, opts: opts}
}

// Invoke implements core.Gateway. The request arguments carry the completion
// input: "prompt" (required) and "system" (optional).
func (g *Gateway) Invoke(ctx context.Context, req core.GatewayRequest) (core.GatewayResponse, error) {
	if req.Kind != core.KindModel {
		err := core.NewGatewayError(req.Kind, req.Name, core.ErrGatewayUnavailable, "anthropic gateway serves model requests only")
		return core.GatewayResponse{Status: core.GatewayDown, ErrorDetail: err.Detail}, err
	}

	prompt, _ := req.Arguments["prompt"].(string)
	if prompt == "" {
		err := core.NewGatewayError(req.Kind, req.Name, errors.New("missing prompt argument"), "")
		return core.GatewayResponse{Status: core.GatewayFailed, ErrorDetail: "missing prompt argument"}, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = g.opts.DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:       g.opts.Model,
		MaxTokens:   g.opts.MaxTokens,
		Temperature: anthropic.Float(g.opts.Temperature),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	}
	if system, _ := req.Arguments["system"].(string); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := g.client.Messages.New(callCtx, params)
	if err != nil {
		return classify(req, err, timeout)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return core.GatewayResponse{Status: core.GatewayOK, Payload: sb.String()}, nil
}

// classify maps SDK failures onto the gateway taxonomy: deadline expiry is a
// timeout, everything else transport unavailability.
func classify(req core.GatewayRequest, err error, timeout time.Duration) (core.GatewayResponse, error) {
	if errors.Is(err, context.DeadlineExceeded) {
		gerr := core.NewGatewayError(req.Kind, req.Name, core.ErrGatewayTimeout, timeout.String())
		return core.GatewayResponse{Status: core.GatewayTimedOut, ErrorDetail: gerr.Detail}, gerr
	}
	if errors.Is(err, context.Canceled) {
		return core.GatewayResponse{Status: core.GatewayFailed, ErrorDetail: err.Error()}, err
	}
	gerr := core.NewGatewayError(req.Kind, req.Name, core.ErrGatewayUnavailable, err.Error())
	return core.GatewayResponse{Status: core.GatewayDown, ErrorDetail: gerr.Detail}, gerr
}
