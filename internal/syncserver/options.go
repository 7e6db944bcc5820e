// Package syncserver attaches the realtime document sync endpoint to an HTTP
// listener and speaks its websocket protocol against a storage backend.
package syncserver

import (
	"io"
	"net/http"

	"github.com/vimflowy/vimflowy/internal/storage"
)

// DefaultPath is where the sync endpoint is mounted.
const DefaultPath = "/socket"

// Options is forwarded unchanged from the server configuration.
type Options struct {
	Kind     storage.Kind
	Folder   string
	Password string
	Path     string
}

// Mount is a listener that accepts additional handlers.
type Mount interface {
	Handle(path string, handler http.Handler)
}

// Factory builds a sync endpoint and mounts it on m. The returned closer
// releases the persistence engine.
type Factory func(m Mount, opts Options) (io.Closer, error)
