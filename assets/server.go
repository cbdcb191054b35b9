// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

// Package assets implements the static asset/package bootstrap HTTP
// interface from spec.md §6: GET /packages returns the session's configured
// package list, GET / redirects to /index.html, and GET /* serves static
// files from a coordinator-local directory. This interface exists solely to
// bootstrap worker clients and is never consulted by the dispatch engine.
package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/LeonardoPohl/DPS-2-Nitocris/clog"
)

// Server is the session-scoped asset/package HTTP endpoint.
type Server struct {
	*clog.CLogger

	server *http.Server
}

// NewServer constructs a Server. packages is returned verbatim (as a JSON
// array) from GET /packages; dir, if non-empty, is served as static content
// for every other path, mirroring the original Python implementation's
// FastAPI app with CORSMiddleware(allow_origins=["*"]).
func NewServer(log *clog.CLogger, packages []string, dir string) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/packages", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(packages); err != nil {
			log.Errorf("Failed encoding /packages response: %v", err)
		}
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/index.html", http.StatusFound)
			return
		}
		if dir == "" {
			http.NotFound(w, r)
			return
		}
		http.FileServer(http.Dir(dir)).ServeHTTP(w, r)
	})

	handler := cors.New(cors.Options{AllowedOrigins: []string{"*"}}).Handler(mux)

	return &Server{
		CLogger: log,
		server:  &http.Server{Handler: handler},
	}
}

// Start binds the asset server to the given port and serves it in the
// background. Returns an error if binding fails.
func (s *Server) Start(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return fmt.Errorf("assets: failed to bind port %d: %w", port, err)
	}

	s.Printf("Asset server listening on http://%s", ln.Addr())

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.Errorf("Asset server exited: %v", err)
		}
	}()

	return nil
}

// Shutdown gracefully stops the asset server.
func (s *Server) Shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.Errorf("Asset server shutdown error: %v", err)
	}
}
