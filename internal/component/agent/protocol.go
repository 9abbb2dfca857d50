// Package agent implements the process transport between a worker executor
// and the out-of-process component engine that actually runs a worker's
// WASM module: a length-prefixed JSON framing protocol carried over AF_VSOCK
// when the engine runs in a separate VM, falling back to a loopback TCP
// socket for same-host deployments. Only the transport is in scope here —
// the WASM engine itself is a Non-goal.
package agent

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
)

// MessageType is the closed set of frames exchanged with the engine
// process, following the teacher's own VsockMessage/MsgType* convention
// (internal/firecracker/vsock.go, internal/wasm/manager.go).
type MessageType int

const (
	MsgInit     MessageType = 1
	MsgInvoke   MessageType = 2
	MsgResponse MessageType = 3
	MsgPing     MessageType = 4
	MsgShutdown MessageType = 5
)

// Message is one length-prefixed frame: a type tag plus an opaque JSON
// payload the caller decodes according to Type.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// InitPayload starts a worker instance inside the engine process: which
// component to load, at which version, with which initial memory size.
type InitPayload struct {
	ComponentId string `json:"component_id"`
	Version     uint64 `json:"version"`
	MemoryPages uint32 `json:"memory_pages"`
}

// InvokePayload calls one exported function on the already-initialized
// worker. Args/ idempotency key are carried as opaque bytes: the caller is
// responsible for encoding them with internal/valuetype before framing.
type InvokePayload struct {
	FunctionName   string `json:"function_name"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	EncodedArgs    []byte `json:"encoded_args"`
}

// ResourceEventPayload reports one component-model resource lifecycle
// transition that happened inside the engine process during an Invoke,
// carried alongside the result the same way ConsumedFuel is: the resource
// table itself lives in the durable core, but the create/drop calls happen
// on the other side of the host-call boundary, so the engine reports them
// back rather than the core tracking them directly.
type ResourceEventPayload struct {
	Kind       string          `json:"kind"` // "create" | "describe" | "drop"
	ResourceId *uint64         `json:"resource_id,omitempty"`
	TypeName   string          `json:"type_name,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
}

// ResponsePayload is the engine's answer to an Invoke, or the error it
// trapped with.
type ResponsePayload struct {
	EncodedResult  []byte                 `json:"encoded_result,omitempty"`
	ConsumedFuel   int64                  `json:"consumed_fuel,omitempty"`
	ResourceEvents []ResourceEventPayload `json:"resource_events,omitempty"`
	Error          string                 `json:"error,omitempty"`
}

// writeFrame writes msg to w as a 4-byte big-endian length prefix followed
// by its JSON encoding, matching the framing wasm.Client already uses for
// its own TCP transport.
func writeFrame(w io.Writer, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("agent: encode frame: %w", err)
	}

	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(data)))
	copy(buf[4:], data)

	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return fmt.Errorf("agent: write frame: %w", err)
		}
		buf = buf[n:]
	}
	return nil
}

// readFrame reads one length-prefixed frame from r.
func readFrame(r io.Reader) (*Message, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(lenBuf)
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("agent: read frame body: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("agent: decode frame: %w", err)
	}
	return &msg, nil
}

func isBrokenConn(err error) bool {
	return err != nil && (errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed))
}
