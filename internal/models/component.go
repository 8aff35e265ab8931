package models

import "encoding/json"

// ComponentRequest is a single request frame sent to an on-device companion.
type ComponentRequest struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Args json.RawMessage `json:"args,omitempty"`
}

// ComponentResponse is the single reply frame read back from a companion.
// A non-empty Error means the companion rejected or failed the request.
type ComponentResponse struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}
