package rpc

import (
	"encoding/json"
	"fmt"
)

// MessageType distinguishes the four kinds of frames
type MessageType string

const (
	TypeCall   MessageType = "call"
	TypeEvent  MessageType = "event"
	TypeReturn MessageType = "return"
	TypeError  MessageType = "error"
)

// Message is one JSON frame on the wire.
//
//	{"type":"call","id":7,"method":"login_game","args":[0,"alice","chess","pw"]}
//	{"type":"return","id":7,"result":true}
//	{"type":"error","id":7,"code":"AUTH","error":"invalid credentials"}
//	{"type":"event","method":"userdata_setup","args":[...]}
type Message struct {
	Type   MessageType       `json:"type"`
	ID     uint64            `json:"id,omitempty"`
	Method string            `json:"method,omitempty"`
	Args   []json.RawMessage `json:"args,omitempty"`
	Result json.RawMessage   `json:"result,omitempty"`
	Code   string            `json:"code,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// encodeArgs marshals each argument separately
func encodeArgs(args []any) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(args))
	for i, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = data
	}
	return out, nil
}

// DecodeArgs unmarshals args positionally into dst. Missing trailing
// arguments leave their destination untouched; surplus arguments are an
// error.
func DecodeArgs(args []json.RawMessage, dst ...any) error {
	if len(args) > len(dst) {
		return fmt.Errorf("%w: got %d arguments, want at most %d", ErrInvalidArguments, len(args), len(dst))
	}
	for i, raw := range args {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		if err := json.Unmarshal(raw, dst[i]); err != nil {
			return fmt.Errorf("%w: argument %d: %v", ErrInvalidArguments, i, err)
		}
	}
	return nil
}

// DecodeResult unmarshals a call result into dst
func DecodeResult(result json.RawMessage, dst any) error {
	if len(result) == 0 || string(result) == "null" {
		return nil
	}
	if err := json.Unmarshal(result, dst); err != nil {
		return fmt.Errorf("%w: result: %v", ErrInvalidArguments, err)
	}
	return nil
}
