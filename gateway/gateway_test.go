package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiveline/hive/core"
)

func TestFunctionGateway_InvokeTool(t *testing.T) {
	g := NewFunctionGateway()
	g.RegisterTool("add", func(_ context.Context, args map[string]any) (string, error) {
		a := args["a"].(int)
		b := args["b"].(int)
		return string(rune('0' + a + b)), nil
	})

	resp, err := g.Invoke(context.Background(), core.GatewayRequest{
		Kind:      core.KindTool,
		Name:      "add",
		Arguments: map[string]any{"a": 2, "b": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, core.GatewayOK, resp.Status)
	assert.Equal(t, "5", resp.Payload)
}

func TestFunctionGateway_UnknownHandlerIsUnavailable(t *testing.T) {
	g := NewFunctionGateway()
	resp, err := g.Invoke(context.Background(), core.GatewayRequest{Kind: core.KindTool, Name: "missing"})
	assert.Equal(t, core.GatewayDown, resp.Status)
	assert.ErrorIs(t, err, core.ErrGatewayUnavailable)
	assert.True(t, core.Retryable(err))
}

func TestFunctionGateway_TimeoutMapsToGatewayTimeout(t *testing.T) {
	g := NewFunctionGateway()
	g.RegisterTool("slow", func(ctx context.Context, _ map[string]any) (string, error) {
		select {
		case <-time.After(5 * time.Second):
			return "done", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})

	resp, err := g.Invoke(context.Background(), core.GatewayRequest{
		Kind:    core.KindTool,
		Name:    "slow",
		Timeout: 20 * time.Millisecond,
	})
	assert.Equal(t, core.GatewayTimedOut, resp.Status)
	assert.ErrorIs(t, err, core.ErrGatewayTimeout)
	assert.True(t, core.Retryable(err))
}

func TestFunctionGateway_HandlerErrorIsNotRetryable(t *testing.T) {
	g := NewFunctionGateway()
	boom := errors.New("bad arguments")
	g.RegisterTool("explode", func(_ context.Context, _ map[string]any) (string, error) {
		return "", boom
	})

	resp, err := g.Invoke(context.Background(), core.GatewayRequest{Kind: core.KindTool, Name: "explode"})
	assert.Equal(t, core.GatewayFailed, resp.Status)
	assert.ErrorIs(t, err, boom)
	assert.False(t, core.Retryable(err))
}

func TestFunctionGateway_ParentCancellationIsNotAGatewayFault(t *testing.T) {
	g := NewFunctionGateway()
	g.RegisterTool("hang", func(ctx context.Context, _ map[string]any) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := g.Invoke(ctx, core.GatewayRequest{Kind: core.KindTool, Name: "hang", Timeout: time.Minute})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, core.Retryable(err))
}

func TestMockGateway_ScriptedOutcomes(t *testing.T) {
	m := NewMockGateway().
		TimeoutThenSucceed("compile", 1, "ok").
		FailWith("deploy", core.ErrGatewayUnavailable)

	_, err := m.Invoke(context.Background(), core.GatewayRequest{Kind: core.KindTool, Name: "compile"})
	assert.ErrorIs(t, err, core.ErrGatewayTimeout)

	resp, err := m.Invoke(context.Background(), core.GatewayRequest{Kind: core.KindTool, Name: "compile"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Payload)

	_, err = m.Invoke(context.Background(), core.GatewayRequest{Kind: core.KindTool, Name: "deploy"})
	assert.ErrorIs(t, err, core.ErrGatewayUnavailable)

	assert.Equal(t, 2, m.Calls("compile"))
	assert.Equal(t, 3, m.TotalCalls())
}

func TestMockGateway_DrainedScriptFallsBackToEcho(t *testing.T) {
	m := NewMockGateway()
	resp, err := m.Invoke(context.Background(), core.GatewayRequest{Kind: core.KindModel, Name: "critique"})
	require.NoError(t, err)
	assert.Equal(t, "echo: critique", resp.Payload)
}
