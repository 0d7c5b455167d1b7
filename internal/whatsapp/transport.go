// Package whatsapp talks to an UltraMsg-style WhatsApp HTTP gateway.
package whatsapp

import "context"

// MessageKind distinguishes plain text sends from attachment sends.
type MessageKind string

const (
	KindText       MessageKind = "text"
	KindAttachment MessageKind = "attachment"
)

// SendResult is the outcome of one send attempt.
type SendResult struct {
	Identifier string         `json:"identifier"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	Raw        map[string]any `json:"raw_response,omitempty"`
	Kind       MessageKind    `json:"kind"`
}

// Transport is the synchronous send capability the orchestrator consumes.
// Implementations return a non-nil result even on failure; the error return
// is reserved for transport-level faults (network, timeout) that are worth
// retrying.
type Transport interface {
	SendText(ctx context.Context, to, body string) (*SendResult, error)
	SendAttachment(ctx context.Context, to, path, caption string) (*SendResult, error)
}
