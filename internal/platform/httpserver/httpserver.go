package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with sane defaults for this project.
// WriteTimeout leaves room for a treasury forward at its configured timeout.
func New(addr string, handler http.Handler, forwardTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      forwardTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
