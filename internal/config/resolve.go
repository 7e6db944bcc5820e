package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/vimflowy/vimflowy/internal/storage"
)

const usageHeader = `Usage: vimflowy-server [flags]

Serves the built static assets over HTTP, or HTTPS when --sslKey is given.
When --db is set, a sync endpoint is attached at /socket.

Flags:
`

type flags struct {
	set *pflag.FlagSet

	help      bool
	host      string
	httpPort  int
	httpsPort int
	sslKey    string
	sslCert   string
	db        string
	dbFolder  string
	password  string
	staticDir string
}

// newFlags builds the flag set. Defaults come from the environment when set.
func newFlags() (*flags, error) {
	httpPort, err := getEnvInt("VIMFLOWY_HTTP_PORT", DefaultHTTPPort)
	if err != nil {
		return nil, err
	}
	httpsPort, err := getEnvInt("VIMFLOWY_HTTPS_PORT", DefaultHTTPSPort)
	if err != nil {
		return nil, err
	}

	f := &flags{set: pflag.NewFlagSet("vimflowy-server", pflag.ContinueOnError)}
	f.set.SetOutput(io.Discard)
	f.set.Usage = func() {}

	f.set.BoolVarP(&f.help, "help", "h", false, "show this help menu")
	f.set.StringVar(&f.host, "host", getEnv("VIMFLOWY_HOST", DefaultHost), "host to listen on")
	f.set.IntVar(&f.httpPort, "httpport", httpPort, "port to run the http server on")
	f.set.IntVar(&f.httpsPort, "httpsport", httpsPort, "port to run the https server on")
	f.set.StringVar(&f.sslKey, "sslKey", getEnv("VIMFLOWY_SSL_KEY", ""), "path to TLS key; enables the https server")
	f.set.StringVar(&f.sslCert, "sslCert", getEnv("VIMFLOWY_SSL_CERT", ""), "path to TLS certificate")
	f.set.StringVar(&f.db, "db", getEnv("VIMFLOWY_DB", ""), "sync backend (memory, sqlite or bolt); enables the sync endpoint")
	f.set.StringVar(&f.dbFolder, "dbfolder", getEnv("VIMFLOWY_DB_FOLDER", ""), "folder for sqlite or bolt data (sqlite defaults to in-memory)")
	f.set.StringVar(&f.password, "password", getEnv("VIMFLOWY_PASSWORD", ""), "password to protect the database with")
	f.set.StringVar(&f.staticDir, "staticDir", getEnv("VIMFLOWY_STATIC_DIR", DefaultStaticDir), "where static assets are served from")
	return f, nil
}

// Usage returns the help text.
func Usage() string {
	f, err := newFlags()
	if err != nil {
		return usageHeader
	}
	return usageHeader + f.set.FlagUsages()
}

// Resolve parses args into a Config. It returns ErrHelp when help was asked
// for and *MissingAssetsError when the static dir holds no build output.
func Resolve(args []string) (*Config, error) {
	if wantsHelp(args) {
		return nil, ErrHelp
	}

	f, err := newFlags()
	if err != nil {
		return nil, err
	}
	if err := f.set.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, ErrHelp
		}
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if f.help {
		return nil, ErrHelp
	}

	for name, port := range map[string]int{"httpport": f.httpPort, "httpsport": f.httpsPort} {
		if port < 0 || port > 65535 {
			return nil, fmt.Errorf("invalid %s %d: must be between 0 and 65535", name, port)
		}
	}

	staticDir, err := filepath.Abs(f.staticDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve static dir: %w", err)
	}
	buildDir := filepath.Join(staticDir, BuildDir)
	if _, err := os.Stat(buildDir); err != nil {
		return nil, &MissingAssetsError{BuildDir: buildDir}
	}

	cfg := &Config{
		Host:      f.host,
		StaticDir: staticDir,
		BuildDir:  buildDir,
		Transport: Plain{Port: f.httpPort},
	}

	if f.sslKey != "" {
		cfg.Transport = TLSTerminated{
			Port:         f.httpsPort,
			RedirectPort: f.httpPort,
			KeyFile:      f.sslKey,
			CertFile:     f.sslCert,
		}
	}

	if f.db != "" {
		kind, err := storage.ParseKind(f.db)
		if err != nil {
			return nil, err
		}
		if kind == storage.KindBolt && f.dbFolder == "" {
			return nil, fmt.Errorf("--db bolt requires --dbfolder")
		}
		cfg.Backend = &Backend{
			Kind:     kind,
			Folder:   f.dbFolder,
			Password: f.password,
		}
	}

	return cfg, nil
}

func wantsHelp(args []string) bool {
	for _, arg := range args {
		switch arg {
		case "--":
			return false
		case "-h", "--help", "--help=true":
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return i, nil
}
