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

// Package webhookserver is the public HTTP surface that receives push
// notifications from a source-hosting service and turns them into
// intake.Webhook events. It owns no engine state; it only validates,
// parses and forwards.
package webhookserver

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/go-github/v32/github"

	"github.com/codepr/narwhal/internal/intake"
)

// Forwarder mirrors an accepted webhook's clone URL to an out-of-process
// consumer. intake.AMQPForwarder satisfies this; a nil Forwarder is valid
// and simply means nothing is mirrored.
type Forwarder interface {
	Forward(cloneURL string)
}

// Server is the public webhook receiver.
type Server struct {
	server *http.Server
	logger *log.Logger
	secret []byte
}

// New builds a webhook server listening on addr, forwarding every valid
// GitHub push event onto queue as an intake.Webhook and, if forwarder is
// non-nil, mirroring the clone URL onto it (see internal/intake's optional
// AMQPForwarder). secret validates the payload signature; an empty secret
// disables validation (only acceptable for local testing, since
// authentication of webhook requests is a declared Non-goal of the
// orchestration engine itself, not of this HTTP surface).
func New(addr string, logger *log.Logger, secret string, queue *intake.Queue, forwarder Forwarder) *Server {
	router := http.NewServeMux()
	router.Handle("/health", healthHandler())
	router.Handle("/webhook", webhookHandler(logger, []byte(secret), queue, forwarder))

	return &Server{
		logger: logger,
		secret: []byte(secret),
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

// Run listens until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Run() error {
	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		s.logger.Println("webhook server shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.server.SetKeepAlivesEnabled(false)
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Fatalf("could not gracefully shut down webhook server: %v", err)
		}
		close(done)
	}()

	s.logger.Printf("webhook server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	<-done
	return nil
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

func webhookHandler(logger *log.Logger, secret []byte, queue *intake.Queue, forwarder Forwarder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := github.ValidatePayload(r, secret)
		if err != nil {
			logger.Printf("webhook payload validation failed: %v", err)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		defer r.Body.Close()

		event, err := github.ParseWebHook(github.WebHookType(r), payload)
		if err != nil {
			logger.Printf("could not parse webhook: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		push, ok := event.(*github.PushEvent)
		if !ok {
			logger.Printf("ignoring webhook event type %s", github.WebHookType(r))
			w.WriteHeader(http.StatusOK)
			return
		}

		cloneURL := push.GetRepo().GetCloneURL()
		if cloneURL == "" {
			logger.Println("push event carries no clone url, dropping")
			w.WriteHeader(http.StatusOK)
			return
		}
		queue.Push(intake.Webhook{CloneURL: cloneURL})
		if forwarder != nil {
			forwarder.Forward(cloneURL)
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
