package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/datastax/go-cassandra-native-protocol/compression/snappy"
	"github.com/datastax/go-cassandra-native-protocol/frame"
	"github.com/datastax/go-cassandra-native-protocol/message"
	"go.uber.org/zap"

	"github.com/arkilian/minicql/internal/config"
	"github.com/arkilian/minicql/internal/engine"
)

// Server accepts native protocol connections and serves each on its own
// goroutine against a shared engine.
type Server struct {
	cfg      config.ListenerConfig
	engine   *engine.Engine
	logger   *zap.Logger
	shutdown *ShutdownManager

	mu       sync.Mutex
	listener net.Listener
	open     map[net.Conn]struct{}
	conns    sync.WaitGroup
}

// New creates a server. The shutdown manager coordinates draining of
// open connections.
func New(cfg config.ListenerConfig, eng *engine.Engine, logger *zap.Logger, sm *ShutdownManager) *Server {
	return &Server{
		cfg:      cfg,
		engine:   eng,
		logger:   logger,
		shutdown: sm,
		open:     make(map[net.Conn]struct{}),
	}
}

// ListenAndServe binds the configured address and serves until closed.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections from the listener until it is closed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("listening", zap.String("addr", ln.Addr().String()))

	var sem chan struct{}
	if s.cfg.MaxConnections > 0 {
		sem = make(chan struct{}, s.cfg.MaxConnections)
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown.ShutdownCh():
				s.conns.Wait()
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				s.conns.Wait()
				return nil
			}
			return err
		}
		if sem != nil {
			select {
			case sem <- struct{}{}:
			default:
				s.logger.Warn("connection limit reached, rejecting",
					zap.String("remote", conn.RemoteAddr().String()))
				conn.Close()
				continue
			}
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			if sem != nil {
				defer func() { <-sem }()
			}
			s.serveConn(conn)
		}()
	}
}

// Close stops accepting connections and closes the open ones, unblocking
// their read loops.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.listener
	for conn := range s.open {
		conn.Close()
	}
	s.mu.Unlock()
	if ln != nil {
		return ln.Close()
	}
	return nil
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.open[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.open, conn)
	s.mu.Unlock()
}

// serveConn runs the frame loop for one connection. STARTUP may switch
// the connection to snappy compression for all subsequent frames.
func (s *Server) serveConn(conn net.Conn) {
	s.track(conn)
	defer s.untrack(conn)
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	s.logger.Debug("connection opened", zap.String("remote", remote))

	sess := engine.NewSession()
	codec := frame.NewCodec()
	reader := bufio.NewReader(conn)

	for {
		if s.shutdown.IsShuttingDown() {
			return
		}
		if s.cfg.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		f, err := codec.DecodeFrame(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("connection read failed", zap.String("remote", remote), zap.Error(err))
			}
			return
		}

		if !s.shutdown.TrackRequest() {
			return
		}
		resp := s.engine.Handle(f, sess)
		compress := false
		if startup, ok := f.Body.Message.(*message.Startup); ok {
			compress, err = negotiateCompression(startup)
			if err != nil {
				resp = frame.NewFrame(f.Header.Version, f.Header.StreamId,
					&message.ProtocolError{ErrorMessage: err.Error()})
				compress = false
			}
		}
		err = codec.EncodeFrame(resp, conn)
		s.shutdown.UntrackRequest()
		if err != nil {
			s.logger.Debug("connection write failed", zap.String("remote", remote), zap.Error(err))
			return
		}
		if _, fatal := resp.Body.Message.(*message.ProtocolError); fatal {
			return
		}
		if compress {
			codec = frame.NewCodecWithCompression(&snappy.Compressor{})
		}
	}
}

// negotiateCompression reads the STARTUP compression option. The READY
// response is sent uncompressed; compression starts with the next frame.
func negotiateCompression(startup *message.Startup) (bool, error) {
	name, ok := startup.Options["COMPRESSION"]
	if !ok || name == "" {
		return false, nil
	}
	if strings.EqualFold(name, "snappy") {
		return true, nil
	}
	return false, fmt.Errorf("unsupported compression algorithm %q", name)
}
