package ws

import "encoding/json"

// Envelope is the frame shape in both directions: the event name and its
// payload. Inbound payloads are handed to the engine undecoded.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}
