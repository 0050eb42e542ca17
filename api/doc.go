// Package api documents the LLMGate HTTP API.
//
// # API Overview
//
// LLMGate exposes token accounting endpoints in front of LLM providers:
//   - POST /api/v1/tokens/count      count a text or a chat message list for a model
//   - GET  /api/v1/tokens/resolve    classify a model name into its tokenizer family
//   - GET  /api/v1/tokenizers        list family prefixes and loaded tokenizer artifacts
//   - GET  /api/v1/usage             per-model usage since a point in time
//   - GET  /health, /healthz, /ready, /version
//
// Prometheus metrics are served on the separate metrics port at /metrics.
//
// # Authentication
//
// When api keys are configured, /api/v1 endpoints require the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// When a JWT secret or public key is configured, a bearer token is accepted instead.
//
// # Count request
//
//	POST /api/v1/tokens/count
//	{"model": "gpt-4o", "text": "hello world"}
//
//	{"success": true, "data": {"model": "gpt-4o", "family": "managed_bpe", "tokens": 2}}
//
// Unsupported models return 400 with code UNSUPPORTED_MODEL and the message
// "no tokenizer configured for model: <model>".
package api
