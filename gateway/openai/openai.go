// Package openai provides a model-kind gateway backed by the OpenAI Chat
// Completions API.
package openai

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"

	"github.com/hiveline/hive/core"
)

// Options configure the OpenAI gateway. Fields mirror a minimal subset of
// Chat Completion parameters; extend via functional options without breaking
// callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	DefaultTimeout      time.Duration
}

// Gateway adapts the OpenAI Chat Completions API to the core.Gateway
// contract for model-kind requests.
type Gateway struct {
	client *openai.Client
	opts   Options
}

var _ core.Gateway = (*Gateway)(nil)

// New creates a new OpenAI gateway using the official client.
func New(optFns ...func(o *Options)) *Gateway {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a gateway from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Gateway {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
		DefaultTimeout:      60 * time.Second,
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
		err := core.NewGatewayError(req.Kind, req.Name, core.ErrGatewayUnavailable, "openai gateway serves model requests only")
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

	var messages []openai.ChatCompletionMessageParamUnion
	if system, _ := req.Arguments["system"].(string); system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	resp, err := g.client.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               g.opts.Model,
		Temperature:         openai.Float(g.opts.Temperature),
		MaxCompletionTokens: openai.Int(g.opts.MaxCompletionTokens),
	})
	if err != nil {
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

	if len(resp.Choices) == 0 {
		gerr := core.NewGatewayError(req.Kind, req.Name, core.ErrGatewayUnavailable, "empty completion response")
		return core.GatewayResponse{Status: core.GatewayDown, ErrorDetail: gerr.Detail}, gerr
	}
	return core.GatewayResponse{Status: core.GatewayOK, Payload: resp.Choices[0].Message.Content}, nil
}
