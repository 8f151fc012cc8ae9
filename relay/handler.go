// Package relay subscribes to named bus channels and dispatches decoded
// payloads to registered handlers.
package relay

import "context"

// Payload is the structured record decoded from one bus message. It is
// consumed synchronously by exactly one handler invocation and never retained
// by the relay.
type Payload = map[string]interface{}

// Handler processes one decoded payload. Every handler is invoked through
// this single calling convention; hosts with asynchronous work wrap it here
// at registration time rather than at each dispatch.
type Handler interface {
	Handle(ctx context.Context, payload Payload) error
}

// HandlerFunc adapts a plain function to the Handler interface
type HandlerFunc func(ctx context.Context, payload Payload) error

// Handle calls f
func (f HandlerFunc) Handle(ctx context.Context, payload Payload) error {
	return f(ctx, payload)
}
