package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vimflowy/vimflowy/internal/config"
	"github.com/vimflowy/vimflowy/internal/syncserver"
)

// TLSLoadError means the key or certificate could not be loaded.
type TLSLoadError struct {
	KeyFile  string
	CertFile string
	Err      error
}

func (e *TLSLoadError) Error() string {
	return fmt.Sprintf("failed to load TLS key %q and certificate %q: %v", e.KeyFile, e.CertFile, e.Err)
}

func (e *TLSLoadError) Unwrap() error {
	return e.Err
}

type Server struct {
	config   *config.Config
	logger   *logrus.Logger
	primary  *Listener
	redirect *Listener
	sync     io.Closer
}

// New builds the listeners for cfg without binding them. TLS material is read
// here, so a TLSLoadError means no listener exists. When cfg.Backend is set,
// factory is called exactly once to mount the sync endpoint on the primary
// listener.
func New(cfg *config.Config, factory syncserver.Factory, logger *logrus.Logger) (*Server, error) {
	s := &Server{
		config: cfg,
		logger: logger,
	}

	switch t := cfg.Transport.(type) {
	case config.Plain:
		s.primary = newListener("http", joinHostPort(cfg.Host, t.Port), nil, logger)
	case config.TLSTerminated:
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, &TLSLoadError{KeyFile: t.KeyFile, CertFile: t.CertFile, Err: err}
		}
		tlsConfig := &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
			CipherSuites: []uint16{
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			},
		}
		s.primary = newListener("https", joinHostPort(cfg.Host, t.Port), tlsConfig, logger)
		s.redirect = newListener("redirect", joinHostPort(cfg.Host, t.RedirectPort), nil, logger)
	default:
		return nil, fmt.Errorf("unsupported transport %T", cfg.Transport)
	}

	if err := s.attachSync(factory); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Server) attachSync(factory syncserver.Factory) error {
	if s.config.Backend == nil {
		return nil
	}
	if factory == nil {
		return fmt.Errorf("sync backend %s configured without a sync factory", s.config.Backend.Kind)
	}

	closer, err := factory(s.primary, syncserver.Options{
		Kind:     s.config.Backend.Kind,
		Folder:   s.config.Backend.Folder,
		Password: s.config.Backend.Password,
		Path:     syncserver.DefaultPath,
	})
	if err != nil {
		return fmt.Errorf("failed to attach sync endpoint: %w", err)
	}
	s.sync = closer
	return nil
}

// Primary is the listener serving content: https when TLS is enabled.
func (s *Server) Primary() *Listener {
	return s.primary
}

// Redirect is the plain redirect listener, nil without TLS.
func (s *Server) Redirect() *Listener {
	return s.redirect
}

func (s *Server) Listeners() []*Listener {
	if s.redirect == nil {
		return []*Listener{s.primary}
	}
	return []*Listener{s.primary, s.redirect}
}

// Start binds every listener independently and blocks until ctx is done. A
// listener that fails to bind is logged and left in StateFailed; the others
// keep serving.
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("static_dir", s.config.StaticDir).Info("Starting production server")

	s.primary.start(staticHandler(s.config.StaticDir, s.logger))
	if s.redirect != nil {
		s.redirect.start(redirectHandler())
	}

	go s.warnIfNothingServes(ctx)

	<-ctx.Done()
	return s.shutdown()
}

func (s *Server) warnIfNothingServes(ctx context.Context) {
	for _, l := range s.Listeners() {
		if err := l.Ready(ctx); err == nil || ctx.Err() != nil {
			return
		}
	}
	s.logger.Warn("No listener is serving; waiting for shutdown")
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	for _, l := range s.Listeners() {
		if err := l.shutdown(ctx); err != nil {
			s.logger.WithField("listener", l.Name()).WithError(err).Error("Failed to shutdown listener")
			errs = append(errs, err)
		}
	}
	if err := s.closeSync(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) closeSync() error {
	if s.sync == nil {
		return nil
	}
	if err := s.sync.Close(); err != nil {
		s.logger.WithError(err).Error("Failed to close sync backend")
		return err
	}
	return nil
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
