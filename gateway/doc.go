// Package gateway implements the core.Gateway contract: uniform invocation
// of external tools and language-model completions with bounded timeouts and
// structured failure.
//
// The package ships a FunctionGateway for registered in-process handlers and
// a MockGateway with scripted outcomes for tests. Provider-backed model
// gateways live in the anthropic and openai sub-packages. No gateway retries
// internally; retry policy belongs to the calling worker.
package gateway
