// Package server implements the stub RPC server: a TCP front end that
// answers ping, read, write and remove requests from the index and the
// object log. It exists to exercise the index end to end; request routing
// beyond these four operations is out of scope.
package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Jingle-Wang/RAMCloud/internal/hashtable"
	"github.com/Jingle-Wang/RAMCloud/internal/oblog"
	"github.com/Jingle-Wang/RAMCloud/internal/rcrpc"
)

// Config bundles the construction parameters of a Server.
type Config struct {
	// Buckets is the number of hash table buckets. Should be a power of
	// two.
	Buckets uint64

	// LogSize is the object log arena size in bytes.
	LogSize uint64

	// LargePages backs the bucket array and the log arena with large
	// pages when available.
	LargePages bool
}

const (
	DefaultBuckets = 1 << 16
	DefaultLogSize = 64 << 20
)

// A Server owns one index and one log. The index requires a single writer,
// so every request handler serializes on one mutex; scaling past that is a
// sharding concern, not a locking one.
type Server struct {
	mu  sync.Mutex
	tbl *hashtable.Table
	log *oblog.Log
}

// New constructs a server with an empty index and log.
func New(cfg Config) (*Server, error) {
	if cfg.Buckets == 0 {
		cfg.Buckets = DefaultBuckets
	}
	if cfg.LogSize == 0 {
		cfg.LogSize = DefaultLogSize
	}

	tbl, err := hashtable.New(cfg.Buckets, hashtable.Options{UseLargePages: cfg.LargePages})
	if err != nil {
		return nil, errors.Wrap(err, "creating index")
	}
	l, err := oblog.New(cfg.LogSize, cfg.LargePages)
	if err != nil {
		tbl.Close()
		return nil, errors.Wrap(err, "creating object log")
	}

	log.Infof("server ready: %d buckets, %d byte log", cfg.Buckets, cfg.LogSize)
	return &Server{tbl: tbl, log: l}, nil
}

// Close releases the index and the log.
func (s *Server) Close() error {
	err := s.tbl.Close()
	if lerr := s.log.Close(); err == nil {
		err = lerr
	}
	return err
}

// PerfCounters returns a snapshot of the index counters.
func (s *Server) PerfCounters() hashtable.PerfCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tbl.PerfCounters()
}

// Serve accepts connections on ln until ctx is canceled and handles each on
// its own goroutine. It returns nil on a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})

	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return nil
				}
				return errors.Wrap(err, "accept")
			}
			g.Go(func() error {
				s.handleConn(ctx, conn)
				return nil
			})
		}
	})

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	go func() {
		// Unblock pending reads when the server shuts down.
		<-ctx.Done()
		conn.Close()
	}()

	br := bufio.NewReader(conn)
	bw := bufio.NewWriter(conn)
	for {
		op, payload, err := rcrpc.ReadFrame(br)
		if err != nil {
			if err != io.EOF && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				log.Warnf("dropping connection from %v: %v", conn.RemoteAddr(), err)
			}
			return
		}

		respOp, resp := s.handle(op, payload)
		if err := rcrpc.WriteFrame(bw, respOp, resp); err != nil {
			return
		}
		if err := bw.Flush(); err != nil {
			return
		}
	}
}

// handle dispatches one request. The mutex makes every request observe a
// consistent index and log; the index itself is not synchronized.
func (s *Server) handle(op rcrpc.Op, payload []byte) (rcrpc.Op, []byte) {
	switch op {
	case rcrpc.OpPingRequest:
		return rcrpc.OpPingResponse, payload

	case rcrpc.OpReadRequest:
		key, err := rcrpc.UnmarshalKey(payload)
		if err != nil {
			return rcrpc.OpErrorResponse, []byte(err.Error())
		}
		return s.read(key)

	case rcrpc.OpWriteRequest:
		key, value, err := rcrpc.UnmarshalWriteRequest(payload)
		if err != nil {
			return rcrpc.OpErrorResponse, []byte(err.Error())
		}
		return s.write(key, value)

	case rcrpc.OpRemoveRequest:
		key, err := rcrpc.UnmarshalKey(payload)
		if err != nil {
			return rcrpc.OpErrorResponse, []byte(err.Error())
		}
		return s.remove(key)

	default:
		log.Warnf("received unknown RPC type %#x", uint32(op))
		return rcrpc.OpErrorResponse, []byte("unknown RPC type")
	}
}

func (s *Server) read(key uint64) (rcrpc.Op, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The secondary hash is advisory, so every candidate is verified
	// against the key stored in the log record.
	ptr, ok := s.tbl.LookupAll(key, func(p hashtable.Pointer) bool {
		k, err := s.log.Key(p)
		return err == nil && k == key
	})
	if !ok {
		return rcrpc.OpReadResponse, rcrpc.MarshalReadResponse(false, nil)
	}

	_, value, err := s.log.Read(ptr)
	if err != nil {
		return rcrpc.OpErrorResponse, []byte(err.Error())
	}
	return rcrpc.OpReadResponse, rcrpc.MarshalReadResponse(true, value)
}

func (s *Server) write(key uint64, value []byte) (rcrpc.Op, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Upsert with verification. A bare Replace matches on the secondary
	// hash alone and could overwrite a colliding key's entry, so the old
	// entry is located through the log first.
	old, existed := s.tbl.LookupAll(key, func(p hashtable.Pointer) bool {
		k, err := s.log.Key(p)
		return err == nil && k == key
	})

	ptr, err := s.log.Append(key, value)
	if err != nil {
		return rcrpc.OpErrorResponse, []byte(err.Error())
	}
	if existed {
		s.tbl.DeleteEntry(key, old)
	}
	if err := s.tbl.Insert(key, ptr); err != nil {
		return rcrpc.OpErrorResponse, []byte(err.Error())
	}
	return rcrpc.OpWriteResponse, nil
}

func (s *Server) remove(key uint64) (rcrpc.Op, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ptr, ok := s.tbl.LookupAll(key, func(p hashtable.Pointer) bool {
		k, err := s.log.Key(p)
		return err == nil && k == key
	})
	found := ok && s.tbl.DeleteEntry(key, ptr)
	return rcrpc.OpRemoveResponse, rcrpc.MarshalFound(found)
}
