package server

import (
	"net/http"
	"path"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/sirupsen/logrus"
)

// staticHandler serves dir as plain files. Successful GETs are brotli
// compressed for clients that accept it.
func staticHandler(dir string, logger *logrus.Logger) http.Handler {
	root := http.Dir(dir)
	files := http.FileServer(root)

	serve := func(w http.ResponseWriter, r *http.Request) {
		// FileServer would redirect these to the bare directory
		if strings.HasSuffix(r.URL.Path, "/index.html") {
			serveFile(w, r, root, r.URL.Path)
			return
		}
		files.ServeHTTP(w, r)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Accept-Encoding")
		if r.Method != http.MethodGet || r.Header.Get("Range") != "" || !acceptsBrotli(r) {
			serve(w, r)
			return
		}

		bw := &brotliResponseWriter{ResponseWriter: w}
		defer func() {
			if err := bw.Close(); err != nil {
				logger.WithField("path", r.URL.Path).WithError(err).Warn("Failed to finish compressed response")
			}
		}()
		serve(bw, r)
	})
}

func serveFile(w http.ResponseWriter, r *http.Request, root http.FileSystem, name string) {
	f, err := root.Open(path.Clean(name))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		enc, params, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.TrimSpace(enc) == "br" && strings.ReplaceAll(params, " ", "") != "q=0" {
			return true
		}
	}
	return false
}

// brotliResponseWriter compresses 200 responses and passes anything else
// through untouched.
type brotliResponseWriter struct {
	http.ResponseWriter
	bw          *brotli.Writer
	wroteHeader bool
}

func (w *brotliResponseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	if code == http.StatusOK {
		h := w.Header()
		h.Del("Content-Length")
		h.Set("Content-Encoding", "br")
		w.bw = brotli.NewWriterLevel(w.ResponseWriter, brotli.DefaultCompression)
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *brotliResponseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.bw != nil {
		return w.bw.Write(p)
	}
	return w.ResponseWriter.Write(p)
}

func (w *brotliResponseWriter) Close() error {
	if w.bw != nil {
		return w.bw.Close()
	}
	return nil
}
