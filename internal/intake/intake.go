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

// Package intake is the single-consumer queue that accepts webhook events
// and admin commands and delivers them, in arrival order, to the
// orchestration engine. Background tasks started by the engine (pulls,
// builds, container lifecycle operations) post their completion back onto
// the same queue instead of touching engine state directly.
package intake

import "log"

// Event is anything the engine loop knows how to handle. Inbound events
// (Webhook, AdminRefresh) are defined here; the engine package defines its
// own completion event types and posts them to the same Queue.
type Event interface{}

// Webhook is the inbound webhook payload: only the clone URL matters, any
// other field is ignored by the engine.
type Webhook struct {
	CloneURL string
}

// AdminRefresh is an operator-issued command to re-run the update pipeline
// for one project, independent of any webhook.
type AdminRefresh struct {
	ProjectIndex int
}

// Queue is a bounded, single-consumer channel of Event. One goroutine reads
// from Events(); every other goroutine (HTTP handlers, background tasks)
// only ever writes.
type Queue struct {
	ch     chan Event
	logger *log.Logger
}

func NewQueue(capacity int, logger *log.Logger) *Queue {
	return &Queue{ch: make(chan Event, capacity), logger: logger}
}

// Push enqueues an event. It never blocks the caller for long: the queue is
// sized generously by the caller and a full queue is a backpressure signal,
// not a correctness concern, since every event is eventually drained by the
// single engine goroutine.
func (q *Queue) Push(e Event) {
	q.ch <- e
}

// TryPush enqueues an event without blocking, reporting whether it fit. Used
// by the admin refresh endpoint, which answers 503 instead of stalling on a
// slow engine.
func (q *Queue) TryPush(e Event) bool {
	select {
	case q.ch <- e:
		return true
	default:
		if q.logger != nil {
			q.logger.Println("intake queue full, dropping event")
		}
		return false
	}
}

func (q *Queue) Events() <-chan Event {
	return q.ch
}

func (q *Queue) Len() int {
	return len(q.ch)
}

func (q *Queue) Cap() int {
	return cap(q.ch)
}
