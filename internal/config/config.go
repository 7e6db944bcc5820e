// Package config resolves command line flags and environment into a validated
// server configuration.
package config

import (
	"errors"
	"fmt"

	"github.com/vimflowy/vimflowy/internal/storage"
)

const (
	DefaultHost      = "localhost"
	DefaultHTTPPort  = 80
	DefaultHTTPSPort = 443
	DefaultStaticDir = "static"

	// BuildDir is the asset subfolder that must exist below the static dir.
	BuildDir = "build"
)

var ErrHelp = errors.New("help requested")

// Config is resolved once per process and never modified afterwards.
type Config struct {
	Host      string
	Transport Transport
	StaticDir string
	BuildDir  string
	Backend   *Backend
}

// Transport is either Plain or TLSTerminated.
type Transport interface {
	transport()
}

// Plain serves HTTP on a single port.
type Plain struct {
	Port int
}

// TLSTerminated serves HTTPS on Port and redirects plain HTTP arriving on
// RedirectPort.
type TLSTerminated struct {
	Port         int
	RedirectPort int
	KeyFile      string
	CertFile     string
}

func (Plain) transport()         {}
func (TLSTerminated) transport() {}

// Backend selects the persistence engine behind the sync endpoint.
type Backend struct {
	Kind     storage.Kind
	Folder   string
	Password string
}

// MissingAssetsError means the static dir has no build output.
type MissingAssetsError struct {
	BuildDir string
}

func (e *MissingAssetsError) Error() string {
	return fmt.Sprintf(`No assets found at %s!
Try running `+"`npm run build -- --outdir %s`"+` first.
Or specify where they should be found with --staticDir $somedir.`, e.BuildDir, e.BuildDir)
}
