package server

import "net/http"

// redirectHandler sends every request to the https:// form of itself. The
// target host is whatever Host header the client sent, not the configured
// host.
func redirectHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://"+r.Host+r.RequestURI)
		w.WriteHeader(http.StatusMovedPermanently)
	})
}
