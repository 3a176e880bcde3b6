package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	ErrSymbolNotFound     = errors.New("symbol_not_found")
	ErrLoopNotFound       = errors.New("loop_not_found")
	ErrUpstreamNotFound   = errors.New("upstream_symbol_not_found")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
