package agent

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/golemproject/workerexec/internal/logging"
)

// Handler executes one Invoke request against the worker instance already
// established by Init and returns its encoded result. A real engine process
// implements this against its WASM runtime; tests and local development
// can stand in a trivial in-process Handler instead.
type Handler func(init InitPayload, invoke InvokePayload) (ResponsePayload, error)

// Server accepts engine-process connections on addr and dispatches frames
// to handle, following the single-connection-at-a-time request/response
// shape the client already assumes (no pipelining).
type Server struct {
	addr   Addr
	handle Handler
	ln     net.Listener
}

func NewServer(addr Addr, handle Handler) *Server {
	return &Server{addr: addr, handle: handle}
}

// Serve blocks accepting and handling connections until the listener is
// closed.
func (s *Server) Serve() error {
	ln, err := Listen(s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	return s.serveOn(ln)
}

// serveOn runs the accept loop against an already-bound listener, letting
// a caller that needs to learn the bound address first (e.g. "tcp:host:0")
// bind it themselves before serving.
func (s *Server) serveOn(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if isBrokenConn(err) {
				return nil
			}
			return fmt.Errorf("agent: accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	var init InitPayload
	for {
		msg, err := readFrame(conn)
		if err != nil {
			if !isBrokenConn(err) {
				logging.Op().Debug("agent server: read frame failed", "error", err)
			}
			return
		}

		switch msg.Type {
		case MsgInit:
			if err := json.Unmarshal(msg.Payload, &init); err != nil {
				logging.Op().Warn("agent server: decode init payload failed", "error", err)
				return
			}
			if err := writeFrame(conn, &Message{Type: MsgResponse}); err != nil {
				return
			}
		case MsgPing:
			if err := writeFrame(conn, &Message{Type: MsgResponse}); err != nil {
				return
			}
		case MsgInvoke:
			var invoke InvokePayload
			if err := json.Unmarshal(msg.Payload, &invoke); err != nil {
				logging.Op().Warn("agent server: decode invoke payload failed", "error", err)
				return
			}
			resp, err := s.handle(init, invoke)
			if err != nil {
				resp = ResponsePayload{Error: err.Error()}
			}
			payload, err := json.Marshal(resp)
			if err != nil {
				return
			}
			if err := writeFrame(conn, &Message{Type: MsgResponse, Payload: payload}); err != nil {
				return
			}
		default:
			logging.Op().Warn("agent server: unknown frame type", "type", msg.Type)
			return
		}
	}
}
