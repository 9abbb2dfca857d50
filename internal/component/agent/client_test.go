package agent

import (
	"errors"
	"testing"
	"time"
)

var errTrap = errors.New("function trapped")

func startTestServer(t *testing.T, handle Handler) Addr {
	t.Helper()
	addr := Addr("tcp:127.0.0.1:0")
	// tcp:127.0.0.1:0 lets the OS pick a port; re-derive the bound port so
	// the client can dial it.
	ln, err := Listen(addr)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	boundAddr := Addr("tcp:" + ln.Addr().String())

	srv := &Server{handle: handle, ln: ln}
	go srv.serveOn(ln)
	t.Cleanup(func() { _ = srv.Close() })

	return boundAddr
}

func TestClientInitAndInvoke(t *testing.T) {
	handle := func(init InitPayload, invoke InvokePayload) (ResponsePayload, error) {
		if init.ComponentId != "comp1" {
			t.Errorf("handler saw ComponentId %q, want comp1", init.ComponentId)
		}
		return ResponsePayload{EncodedResult: invoke.EncodedArgs, ConsumedFuel: 7}, nil
	}
	addr := startTestServer(t, handle)

	client := NewClient(addr)
	if err := client.Init(InitPayload{ComponentId: "comp1", Version: 1}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer client.Close()

	resp, err := client.Invoke(InvokePayload{FunctionName: "run", EncodedArgs: []byte("args")}, time.Second)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if string(resp.EncodedResult) != "args" {
		t.Fatalf("EncodedResult = %q, want %q", resp.EncodedResult, "args")
	}
	if resp.ConsumedFuel != 7 {
		t.Fatalf("ConsumedFuel = %d, want 7", resp.ConsumedFuel)
	}
}

func TestClientInvokeSurfacesHandlerError(t *testing.T) {
	handle := func(init InitPayload, invoke InvokePayload) (ResponsePayload, error) {
		return ResponsePayload{}, errTrap
	}
	addr := startTestServer(t, handle)

	client := NewClient(addr)
	if err := client.Init(InitPayload{ComponentId: "comp2"}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer client.Close()

	resp, err := client.Invoke(InvokePayload{FunctionName: "boom"}, time.Second)
	if err != nil {
		t.Fatalf("Invoke transport error: %v", err)
	}
	if resp.Error != errTrap.Error() {
		t.Fatalf("resp.Error = %q, want %q", resp.Error, errTrap.Error())
	}
}

func TestClientPing(t *testing.T) {
	addr := startTestServer(t, func(InitPayload, InvokePayload) (ResponsePayload, error) {
		return ResponsePayload{}, nil
	})

	client := NewClient(addr)
	if err := client.Ping(time.Second); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
