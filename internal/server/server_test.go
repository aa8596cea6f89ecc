package server

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/Jingle-Wang/RAMCloud/internal/rcrpc"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(Config{Buckets: 64, LogSize: 1 << 20})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestPingEchoes(t *testing.T) {
	s := newTestServer(t)

	op, resp := s.handle(rcrpc.OpPingRequest, []byte("are you there"))
	if op != rcrpc.OpPingResponse {
		t.Fatalf("op = %#x, want ping response", op)
	}
	if string(resp) != "are you there" {
		t.Errorf("resp = %q, want echo", resp)
	}
}

func TestWriteReadRemove(t *testing.T) {
	s := newTestServer(t)
	const key = uint64(0xabc0_0000_0000_0011)

	op, resp := s.handle(rcrpc.OpWriteRequest, rcrpc.MarshalWriteRequest(key, []byte("v1")))
	if op != rcrpc.OpWriteResponse {
		t.Fatalf("write: op = %#x, resp = %q", op, resp)
	}

	op, resp = s.handle(rcrpc.OpReadRequest, rcrpc.MarshalKey(key))
	if op != rcrpc.OpReadResponse {
		t.Fatalf("read: op = %#x, resp = %q", op, resp)
	}
	found, value, err := rcrpc.UnmarshalReadResponse(resp)
	if err != nil || !found || !bytes.Equal(value, []byte("v1")) {
		t.Fatalf("read = (%v, %q, %v), want (true, \"v1\", nil)", found, value, err)
	}

	// Overwrite and read back the latest version.
	s.handle(rcrpc.OpWriteRequest, rcrpc.MarshalWriteRequest(key, []byte("v2")))
	_, resp = s.handle(rcrpc.OpReadRequest, rcrpc.MarshalKey(key))
	if _, value, _ := rcrpc.UnmarshalReadResponse(resp); !bytes.Equal(value, []byte("v2")) {
		t.Errorf("read after overwrite = %q, want \"v2\"", value)
	}

	op, resp = s.handle(rcrpc.OpRemoveRequest, rcrpc.MarshalKey(key))
	if op != rcrpc.OpRemoveResponse {
		t.Fatalf("remove: op = %#x", op)
	}
	if found, _ := rcrpc.UnmarshalFound(resp); !found {
		t.Error("remove of an existing key reported not found")
	}

	_, resp = s.handle(rcrpc.OpReadRequest, rcrpc.MarshalKey(key))
	if found, _, _ := rcrpc.UnmarshalReadResponse(resp); found {
		t.Error("read after remove reported found")
	}

	_, resp = s.handle(rcrpc.OpRemoveRequest, rcrpc.MarshalKey(key))
	if found, _ := rcrpc.UnmarshalFound(resp); found {
		t.Error("second remove reported found")
	}
}

func TestReadVerifiesCollidingKeys(t *testing.T) {
	s := newTestServer(t)

	// Same bucket (64 buckets, low bits 5) and same secondary hash: the
	// index alone cannot tell these apart, the log record can.
	k1 := uint64(3)<<48 | 5
	k2 := uint64(3)<<48 | 69

	s.handle(rcrpc.OpWriteRequest, rcrpc.MarshalWriteRequest(k1, []byte("first")))
	s.handle(rcrpc.OpWriteRequest, rcrpc.MarshalWriteRequest(k2, []byte("second")))

	_, resp := s.handle(rcrpc.OpReadRequest, rcrpc.MarshalKey(k2))
	found, value, err := rcrpc.UnmarshalReadResponse(resp)
	if err != nil || !found || !bytes.Equal(value, []byte("second")) {
		t.Fatalf("read k2 = (%v, %q, %v), want (true, \"second\", nil)", found, value, err)
	}

	if n := s.PerfCounters().LookupHashCollisions; n == 0 {
		t.Error("colliding read did not count a hash collision")
	}

	// Removing k2 must not disturb k1.
	s.handle(rcrpc.OpRemoveRequest, rcrpc.MarshalKey(k2))
	_, resp = s.handle(rcrpc.OpReadRequest, rcrpc.MarshalKey(k1))
	if _, value, _ := rcrpc.UnmarshalReadResponse(resp); !bytes.Equal(value, []byte("first")) {
		t.Errorf("read k1 after removing k2 = %q, want \"first\"", value)
	}
}

func TestUnknownOp(t *testing.T) {
	s := newTestServer(t)
	op, _ := s.handle(rcrpc.Op(0x99), nil)
	if op != rcrpc.OpErrorResponse {
		t.Errorf("op = %#x, want error response", op)
	}
}

func TestServeOverTCP(t *testing.T) {
	s := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	br := bufio.NewReader(conn)

	roundTrip := func(op rcrpc.Op, payload []byte) (rcrpc.Op, []byte) {
		t.Helper()
		if err := rcrpc.WriteFrame(conn, op, payload); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
		respOp, resp, err := rcrpc.ReadFrame(br)
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		return respOp, resp
	}

	if op, _ := roundTrip(rcrpc.OpPingRequest, nil); op != rcrpc.OpPingResponse {
		t.Fatalf("ping over TCP: op = %#x", op)
	}

	roundTrip(rcrpc.OpWriteRequest, rcrpc.MarshalWriteRequest(7, []byte("tcp value")))
	_, resp := roundTrip(rcrpc.OpReadRequest, rcrpc.MarshalKey(7))
	if found, value, _ := rcrpc.UnmarshalReadResponse(resp); !found || !bytes.Equal(value, []byte("tcp value")) {
		t.Fatalf("read over TCP = (%v, %q)", found, value)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v on shutdown, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
