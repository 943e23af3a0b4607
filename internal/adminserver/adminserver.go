// BSD 2-Clause License
//
// Copyright (c) 2020, Andrea Giacomo Baldan
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
//
// * Redistributions of source code must retain the above copyright notice, this
//   list of conditions and the following disclaimer.
//
// * Redistributions in binary form must reproduce the above copyright notice,
//   this list of conditions and the following disclaimer in the documentation
//   and/or other materials provided with the distribution.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE
// FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL
// DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER
// CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY,
// OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.

// Package adminserver is the private status/admin HTTP surface: read-only
// snapshots of every repo and project, an operator-triggered refresh, and a
// liveness probe over the engine loop.
package adminserver

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/codepr/narwhal/internal/intake"
	"github.com/codepr/narwhal/internal/status"
)

// EngineHealth reports whether the engine loop is alive, for the /health
// liveness endpoint.
type EngineHealth interface {
	Alive() bool
}

type Server struct {
	server *http.Server
	logger *log.Logger
}

func New(addr string, logger *log.Logger, reporter *status.Reporter, queue *intake.Queue, engine EngineHealth) *Server {
	router := http.NewServeMux()
	router.Handle("/status", statusHandler(reporter))
	router.Handle("/health", healthHandler(queue, engine))
	router.Handle("/refresh/", refreshHandler(logger, queue))

	return &Server{
		logger: logger,
		server: &http.Server{
			Addr:         addr,
			Handler:      logRequests(logger)(router),
			ErrorLog:     logger,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  30 * time.Second,
		},
	}
}

func (s *Server) Run() error {
	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		s.logger.Println("admin server shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.server.SetKeepAlivesEnabled(false)
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Fatalf("could not gracefully shut down admin server: %v", err)
		}
		close(done)
	}()

	s.logger.Printf("admin server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	<-done
	return nil
}

func statusHandler(reporter *status.Reporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(reporter.Snapshot())
	}
}

// healthHandler reports whether the engine goroutine is alive and the
// intake queue has headroom. A full queue answers 503 so a probe notices a
// wedged or drowning engine before operators do.
func healthHandler(queue *intake.Queue, engine EngineHealth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !engine.Alive() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		backlogged := queue.Len() >= queue.Cap()
		w.Header().Set("Content-Type", "application/json")
		if backlogged {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"alive":          true,
			"queue_len":      queue.Len(),
			"queue_capacity": queue.Cap(),
		})
	}
}

func refreshHandler(logger *log.Logger, queue *intake.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		idx := strings.TrimPrefix(r.URL.Path, "/refresh/")
		projectIndex, err := strconv.Atoi(idx)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if !queue.TryPush(intake.AdminRefresh{ProjectIndex: projectIndex}) {
			logger.Printf("refresh request for project %d dropped, intake queue full", projectIndex)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func logRequests(l *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}
