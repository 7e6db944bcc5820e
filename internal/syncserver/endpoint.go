package syncserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/vimflowy/vimflowy/internal/storage"
)

// Endpoint serves the sync protocol over websocket connections.
type Endpoint struct {
	backend  storage.Backend
	password string
	logger   *logrus.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	active map[string]string // docname -> client id allowed to read and write
	conns  map[*websocket.Conn]bool
}

// session is the per-connection join state.
type session struct {
	id       string
	docname  string
	clientID string
	joined   bool
}

// NewFactory returns the Factory that opens the configured backend and mounts
// an Endpoint at opts.Path.
func NewFactory(logger *logrus.Logger) Factory {
	return func(m Mount, opts Options) (io.Closer, error) {
		backend, err := storage.Open(opts.Kind, opts.Folder)
		if err != nil {
			return nil, err
		}

		endpoint := NewEndpoint(backend, opts.Password, logger)
		m.Handle(opts.Path, endpoint)

		logger.WithFields(logrus.Fields{
			"path":    opts.Path,
			"backend": opts.Kind.String(),
			"folder":  opts.Folder,
		}).Info("Sync endpoint attached")
		return endpoint, nil
	}
}

func NewEndpoint(backend storage.Backend, password string, logger *logrus.Logger) *Endpoint {
	return &Endpoint{
		backend:  backend,
		password: password,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		active: make(map[string]string),
		conns:  make(map[*websocket.Conn]bool),
	}
}

func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.WithError(err).Warn("Sync upgrade failed")
		return
	}

	s := &session{id: uuid.NewString()}
	log := e.logger.WithField("connection", s.id)
	log.WithField("remote", r.RemoteAddr).Info("Sync client connected")

	e.register(conn)
	defer func() {
		e.unregister(conn)
		conn.Close()
		log.Info("Sync client disconnected")
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("Sync connection closed unexpectedly")
			}
			return
		}
		if msgType != websocket.TextMessage {
			log.WithField("message_type", msgType).Warn("Ignoring non-text sync message")
			continue
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			log.WithError(err).Warn("Malformed sync message")
			continue
		}

		resp := e.handle(r.Context(), s, &req)
		if err := conn.WriteJSON(resp); err != nil {
			log.WithError(err).Warn("Sync write failed")
			return
		}
	}
}

func (e *Endpoint) handle(ctx context.Context, s *session, req *Request) *Response {
	resp := &Response{Type: MessageTypeCallback, ID: req.ID}

	if req.Type == MessageTypeJoin {
		resp.Error = e.join(s, req)
		return resp
	}

	if req.Type != MessageTypeGet && req.Type != MessageTypeSet {
		resp.Error = errUnknownType
		return resp
	}

	if msg := e.checkActive(s); msg != "" {
		resp.Error = msg
		return resp
	}
	if req.Key == "" {
		resp.Error = errMissingKey
		return resp
	}

	switch req.Type {
	case MessageTypeGet:
		value, ok, err := e.backend.Get(ctx, s.docname, req.Key)
		if err != nil {
			e.logger.WithError(err).WithField("docname", s.docname).Error("Sync get failed")
			resp.Error = errStorage
			return resp
		}
		if ok {
			resp.Result = &value
		}
	case MessageTypeSet:
		if req.Value == nil {
			resp.Error = errMissingValue
			return resp
		}
		if err := e.backend.Set(ctx, s.docname, req.Key, *req.Value); err != nil {
			e.logger.WithError(err).WithField("docname", s.docname).Error("Sync set failed")
			resp.Error = errStorage
		}
	}
	return resp
}

func (e *Endpoint) join(s *session, req *Request) string {
	if req.Docname == "" {
		return errMissingDocname
	}
	if req.ClientID == "" {
		return errMissingClient
	}
	if req.Password != e.password {
		e.logger.WithFields(logrus.Fields{
			"connection": s.id,
			"docname":    req.Docname,
		}).Warn("Sync join rejected")
		return errWrongPassword
	}

	e.mu.Lock()
	e.active[req.Docname] = req.ClientID
	e.mu.Unlock()

	s.docname, s.clientID, s.joined = req.Docname, req.ClientID, true
	e.logger.WithFields(logrus.Fields{
		"connection": s.id,
		"docname":    req.Docname,
		"client":     req.ClientID,
	}).Info("Sync client joined")
	return ""
}

func (e *Endpoint) checkActive(s *session) string {
	if !s.joined {
		return errNotJoined
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[s.docname] != s.clientID {
		return errOtherClient
	}
	return ""
}

func (e *Endpoint) register(conn *websocket.Conn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conns[conn] = true
}

func (e *Endpoint) unregister(conn *websocket.Conn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.conns, conn)
}

// Close disconnects every client and closes the backend.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	for conn := range e.conns {
		conn.Close()
		delete(e.conns, conn)
	}
	e.mu.Unlock()

	return e.backend.Close()
}
