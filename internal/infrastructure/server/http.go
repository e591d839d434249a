package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Server is a component with a blocking Start and a graceful Stop.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type HTTPServer struct {
	addr    string
	handler http.Handler
	srv     *http.Server
	ready   chan struct{}
	bound   net.Addr
}

var _ Server = (*HTTPServer)(nil)

func NewHTTPServer(addr string, handler http.Handler) *HTTPServer {
	return &HTTPServer{
		addr:    addr,
		handler: handler,
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 15 * time.Second,
			IdleTimeout:       60 * time.Second,
			// No WriteTimeout: SSE and websocket responses are long-lived.
		},
		ready: make(chan struct{}),
	}
}

// Start listens on the configured address and serves until Stop is called.
func (h *HTTPServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return err
	}
	h.bound = ln.Addr()
	close(h.ready)

	var eg errgroup.Group
	eg.Go(func() error {
		err := h.srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	return eg.Wait()
}

// Addr returns the bound listener address once Start has begun serving.
func (h *HTTPServer) Addr() net.Addr {
	<-h.ready
	return h.bound
}

func (h *HTTPServer) Stop(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}
