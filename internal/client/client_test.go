package client

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/Jingle-Wang/RAMCloud/internal/server"
)

func startServer(t *testing.T) string {
	t.Helper()
	s, err := server.New(server.Config{Buckets: 64, LogSize: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.Serve(ctx, ln); err != nil {
			t.Errorf("Serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		s.Close()
	})
	return ln.Addr().String()
}

func TestClientRoundTrip(t *testing.T) {
	addr := startServer(t)

	c, err := Dial(addr, 5*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if err := c.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	const key = uint64(0x1234_5678_9abc_def0)
	if err := c.Write(key, []byte("payload")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	value, err := c.Read(key)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(value, []byte("payload")) {
		t.Errorf("Read = %q, want \"payload\"", value)
	}

	found, err := c.Remove(key)
	if err != nil || !found {
		t.Fatalf("Remove = (%v, %v), want (true, nil)", found, err)
	}
	if _, err := c.Read(key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read after Remove: err = %v, want ErrNotFound", err)
	}
	if found, _ := c.Remove(key); found {
		t.Error("second Remove reported found")
	}
}

func TestDialGivesUp(t *testing.T) {
	// A port with nothing listening on it. The backoff must expire
	// instead of retrying forever.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := Dial(addr, 100*time.Millisecond); err == nil {
		t.Error("Dial to a dead address succeeded")
	}
}
