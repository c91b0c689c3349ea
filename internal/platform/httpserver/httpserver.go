package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with timeouts sized for batch validation: the
// write timeout must outlast the batch deadline.
func New(addr string, handler http.Handler, batchTimeout time.Duration) *http.Server {
	write := 30 * time.Second
	if batchTimeout+10*time.Second > write {
		write = batchTimeout + 10*time.Second
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      write,
		IdleTimeout:       120 * time.Second,
	}
}
