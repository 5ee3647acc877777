package dap

import (
	"encoding/json"

	godap "github.com/google/go-dap"
)

// Message types carried in ProtocolMessage.Type.
const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeEvent    = "event"
)

// envelope decodes any incoming message far enough to route it.
type envelope struct {
	godap.ProtocolMessage
	Event      string          `json:"event,omitempty"`
	Command    string          `json:"command,omitempty"`
	RequestSeq int             `json:"request_seq,omitempty"`
	Success    bool            `json:"success,omitempty"`
	Message    string          `json:"message,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Request is an outgoing request with arbitrary arguments.
type Request struct {
	godap.Request
	Arguments any `json:"arguments,omitempty"`
}

// Response is a decoded response with a raw body.
type Response struct {
	Seq        int
	RequestSeq int
	Command    string
	Success    bool
	Message    string
	Body       json.RawMessage
}

// Event is a decoded event with a raw body. Standard and custom (dart.*)
// events share this shape.
type Event struct {
	Seq   int
	Event string
	Body  json.RawMessage
}

// InitializeArguments are sent with the initialize request.
type InitializeArguments = godap.InitializeRequestArguments

// Capabilities are returned by the initialize request.
type Capabilities = godap.Capabilities

// DisconnectArguments are sent with the disconnect request.
type DisconnectArguments = godap.DisconnectArguments

// TerminateArguments are sent with the terminate request.
type TerminateArguments = godap.TerminateArguments
