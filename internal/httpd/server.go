// Package httpd is an HTTP/1.1 server built directly on TCP sockets, with
// its own request parser, router and static file handling. One goroutine
// serves each connection; keep-alive is honored until a timeout, a protocol
// error or shutdown.
package httpd

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/caiquemiranda/backend-base/internal/logger"
)

var ErrServerClosed = errors.New("server closed")

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultIdleTimeout  = 60 * time.Second
	defaultMaxBodyBytes = 4 << 20
)

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodyBytes int64
	Logger       *slog.Logger
}

type Server struct {
	cfg     Config
	handler Handler
	log     *slog.Logger

	ln         net.Listener
	mu         sync.Mutex
	conns      map[net.Conn]struct{}
	wg         sync.WaitGroup
	inShutdown atomic.Bool
}

func NewServer(cfg Config, h Handler) *Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	log := cfg.Logger
	if log == nil {
		log = logger.L()
	}

	return &Server{
		cfg:     cfg,
		handler: h,
		log:     log,
		conns:   make(map[net.Conn]struct{}),
	}
}

func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "could not listen on %s", s.cfg.Addr)
	}

	return s.Serve(ln)
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.log.Info("server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.inShutdown.Load() {
				return ErrServerClosed
			}

			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}

			return errors.Wrap(err, "accept failed")
		}

		s.trackConn(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Shutdown stops accepting, waits for in-flight connections to drain and
// force-closes the stragglers once ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)

	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

func (s *Server) trackConn(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() {
		_ = conn.Close()
		s.trackConn(conn, false)
	}()

	br := bufio.NewReader(conn)
	bw := bufio.NewWriter(conn)
	remoteAddr := conn.RemoteAddr().String()

	for firstRequest := true; ; firstRequest = false {
		if s.inShutdown.Load() && !firstRequest {
			return
		}

		deadline := s.cfg.ReadTimeout
		if !firstRequest {
			deadline = s.cfg.IdleTimeout
		}
		_ = conn.SetReadDeadline(time.Now().Add(deadline))

		req, err := readRequest(br, s.cfg.MaxBodyBytes)
		if err != nil {
			s.answerReadError(conn, bw, err, firstRequest)
			return
		}

		req.RemoteAddr = remoteAddr

		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))

		keepAlive := req.keepAlive() && !s.inShutdown.Load()
		w := newResponseWriter()

		started := time.Now()
		s.dispatch(w, req)

		if err := w.flush(bw, req.Proto, keepAlive); err != nil {
			s.log.Debug("response write failed", "remote", remoteAddr, "error", err.Error())
			return
		}

		s.log.Info("request",
			"method", req.Method,
			"path", req.Path,
			"status", w.Status(),
			"bytes", w.BodyLen(),
			"duration_ms", time.Since(started).Milliseconds(),
			"remote", remoteAddr,
		)

		if !keepAlive {
			return
		}
	}
}

// dispatch runs the handler, turning a panic into a 500 instead of tearing
// the whole server down.
func (s *Server) dispatch(w *ResponseWriter, req *Request) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("handler panic",
				"method", req.Method,
				"path", req.Path,
				"panic", rec,
				"stack", string(debug.Stack()),
			)

			w.reset()
			w.WriteHeader(500)
			w.WriteString(StatusText(500) + "\n")
		}
	}()

	s.handler.Serve(w, req)
}

// answerReadError maps a parse failure to its status code. A client that
// went away quietly gets no response at all.
func (s *Server) answerReadError(conn net.Conn, bw *bufio.Writer, err error, firstRequest bool) {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return
	}

	if ne, ok := errors.Cause(err).(net.Error); ok && ne.Timeout() {
		return
	}

	status := 400
	switch {
	case errors.Is(err, ErrUnsupportedProto):
		status = 505
	case errors.Is(err, ErrHeaderTooLarge):
		status = 431
	case errors.Is(err, ErrBodyTooLarge):
		status = 413
	case errors.Is(err, ErrLengthRequired):
		status = 411
	case errors.Is(err, ErrUnsupportedTransfer):
		status = 501
	}

	if firstRequest || status != 400 {
		s.log.Debug("bad request", "remote", conn.RemoteAddr().String(), "status", status, "error", err.Error())
	}

	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))

	w := newResponseWriter()
	w.WriteHeader(status)
	w.WriteString(StatusText(status) + "\n")
	_ = w.flush(bw, "HTTP/1.1", false)
}
