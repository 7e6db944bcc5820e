package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// ListenerState tracks a listener through Idle -> Starting -> Listening|Failed.
type ListenerState int32

const (
	StateIdle ListenerState = iota
	StateStarting
	StateListening
	StateFailed
)

func (s ListenerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ListenError is recorded on a listener whose bind failed.
type ListenError struct {
	Listener string
	Addr     string
	Err      error
}

func (e *ListenError) Error() string {
	return fmt.Sprintf("%s listener failed to bind %s: %v", e.Listener, e.Addr, e.Err)
}

func (e *ListenError) Unwrap() error {
	return e.Err
}

// Listener owns one socket and the http.Server serving it.
type Listener struct {
	name      string
	addr      string
	tlsConfig *tls.Config
	router    *mux.Router
	logger    *logrus.Logger

	state  atomic.Int32
	ready  chan struct{}
	mu     sync.RWMutex
	server *http.Server
	bound  net.Addr
	err    error
}

func newListener(name, addr string, tlsConfig *tls.Config, logger *logrus.Logger) *Listener {
	l := &Listener{
		name:      name,
		addr:      addr,
		tlsConfig: tlsConfig,
		router:    mux.NewRouter().SkipClean(true),
		logger:    logger,
		ready:     make(chan struct{}),
	}
	l.router.Use(l.loggingMiddleware)
	return l
}

// Name identifies the listener in logs.
func (l *Listener) Name() string {
	return l.name
}

// TLS reports whether the listener terminates TLS.
func (l *Listener) TLS() bool {
	return l.tlsConfig != nil
}

// Handle mounts handler at path. Mounts must happen before Start.
func (l *Listener) Handle(path string, handler http.Handler) {
	l.router.Handle(path, handler)
}

func (l *Listener) State() ListenerState {
	return ListenerState(l.state.Load())
}

// Addr is the bound address, or the configured one before binding.
func (l *Listener) Addr() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.bound != nil {
		return l.bound.String()
	}
	return l.addr
}

// Err returns the bind error of a failed listener.
func (l *Listener) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// Ready blocks until the listener is listening or has failed.
func (l *Listener) Ready(ctx context.Context) error {
	select {
	case <-l.ready:
		return l.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// start binds and serves in the background. fallback is mounted last so
// earlier Handle calls take precedence.
func (l *Listener) start(fallback http.Handler) {
	if !l.state.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		return
	}
	if fallback != nil {
		l.router.PathPrefix("/").Handler(fallback)
	}

	go func() {
		ln, err := net.Listen("tcp", l.addr)
		if err != nil {
			l.fail(err)
			return
		}

		server := &http.Server{
			Handler:      l.router,
			TLSConfig:    l.tlsConfig,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
			// HTTP/1.1 only; websocket upgrades do not work over h2
			TLSNextProto: map[string]func(*http.Server, *tls.Conn, http.Handler){},
		}
		if l.tlsConfig != nil {
			ln = tls.NewListener(ln, l.tlsConfig)
		}

		l.mu.Lock()
		l.server = server
		l.bound = ln.Addr()
		l.mu.Unlock()
		l.state.Store(int32(StateListening))
		close(l.ready)

		if l.tlsConfig != nil {
			l.logger.WithField("listener", l.name).Infof("HTTPS listening on https://%s", ln.Addr())
		} else {
			l.logger.WithField("listener", l.name).Infof("HTTP listening on http://%s", ln.Addr())
		}

		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			l.logger.WithField("listener", l.name).WithError(err).Error("Listener stopped serving")
		}
	}()
}

func (l *Listener) fail(err error) {
	lerr := &ListenError{Listener: l.name, Addr: l.addr, Err: err}

	l.mu.Lock()
	l.err = lerr
	l.mu.Unlock()
	l.state.Store(int32(StateFailed))
	close(l.ready)

	l.logger.WithFields(logrus.Fields{
		"listener": l.name,
		"address":  l.addr,
	}).WithError(err).Error("Listener failed to bind")
}

func (l *Listener) shutdown(ctx context.Context) error {
	if l.State() == StateIdle {
		return nil
	}
	select {
	case <-l.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	l.mu.RLock()
	server := l.server
	l.mu.RUnlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (l *Listener) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, req)

		l.logger.WithFields(logrus.Fields{
			"listener": l.name,
			"method":   req.Method,
			"path":     req.URL.Path,
			"status":   wrapped.statusCode,
			"duration": time.Since(start),
		}).Debug("Request")
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the sync endpoint upgrade connections through the middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}
