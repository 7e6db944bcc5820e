package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vimflowy/vimflowy/internal/config"
	"github.com/vimflowy/vimflowy/internal/syncserver"
)

const indexHTML = "<html><body>vimflowy</body></html>"

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

// newStaticDir creates a static dir with a build folder and an index page.
func newStaticDir(t *testing.T) string {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, config.BuildDir), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte(indexHTML), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.BuildDir, "app.js"), []byte("console.log('vimflowy');"), 0644))
	return dir
}

func plainTestConfig(t *testing.T) *config.Config {
	dir := newStaticDir(t)
	return &config.Config{
		Host:      "127.0.0.1",
		Transport: config.Plain{Port: 0},
		StaticDir: dir,
		BuildDir:  filepath.Join(dir, config.BuildDir),
	}
}

func tlsTestConfig(t *testing.T) *config.Config {
	cfg := plainTestConfig(t)
	certFile := filepath.Join(t.TempDir(), "server.crt")
	keyFile := filepath.Join(t.TempDir(), "server.key")
	require.NoError(t, generateTestCertificate(certFile, keyFile), "Failed to generate test certificate")

	cfg.Transport = config.TLSTerminated{
		Port:         0,
		RedirectPort: 0,
		KeyFile:      keyFile,
		CertFile:     certFile,
	}
	return cfg
}

// startTestServer runs srv until the test ends and waits for every listener
// to settle.
func startTestServer(t *testing.T, srv *Server) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Start(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("Server did not shut down within timeout")
		}
	})

	readyCtx, readyCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer readyCancel()
	for _, l := range srv.Listeners() {
		err := l.Ready(readyCtx)
		require.NotErrorIs(t, err, context.DeadlineExceeded, "listener %s never settled", l.Name())
	}
}

type recordedAttach struct {
	mount syncserver.Mount
	opts  syncserver.Options
}

// recordingFactory records each call instead of starting a real endpoint.
func recordingFactory(calls *[]recordedAttach) syncserver.Factory {
	return func(m syncserver.Mount, opts syncserver.Options) (io.Closer, error) {
		*calls = append(*calls, recordedAttach{mount: m, opts: opts})
		return io.NopCloser(nil), nil
	}
}

// newTestClient skips verification of the self-signed certificate and never
// follows redirects.
func newTestClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Timeout: 10 * time.Second,
	}
}

// generateTestCertificate generates a self-signed certificate for testing
func generateTestCertificate(certFile, keyFile string) error {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
		DNSNames:              []string{"localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return err
	}

	certOut, err := os.Create(certFile)
	if err != nil {
		return err
	}
	defer certOut.Close()

	if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: certDER}); err != nil {
		return err
	}

	keyOut, err := os.Create(keyFile)
	if err != nil {
		return err
	}
	defer keyOut.Close()

	privKeyDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return err
	}

	return pem.Encode(keyOut, &pem.Block{Type: "PRIVATE KEY", Bytes: privKeyDER})
}
