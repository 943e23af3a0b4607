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

// Package engine is the orchestration engine: the state machines,
// pending-update coalescing, lock-count protocol and rolling rotation that
// govern repos and projects. Every exported entry point funnels through a
// single goroutine (Run); background I/O (pulls, builds, container
// lifecycle calls) runs concurrently and reports back by posting events to
// the same intake queue it was handed.
package engine

import (
	"context"
	"log"
	"time"

	"github.com/codepr/narwhal/internal/intake"
	"github.com/codepr/narwhal/internal/registry"
	"github.com/codepr/narwhal/internal/runtimeadapter"
	"github.com/codepr/narwhal/internal/vcsadapter"
)

// DefaultReadinessRetryBudget is how many times the rolling rotation retries
// starting a replacement container after a readiness hook failure before
// aborting the cycle.
const DefaultReadinessRetryBudget = 1

// DefaultTaskTimeout bounds every runtime adapter call made from a
// background task (build, verification run, hook listing, create, exec,
// stop). Expiry is reported as a task failure like any other transient
// infrastructure error. VCS clone and pull calls take no context and are
// not bounded by it.
const DefaultTaskTimeout = 2 * time.Minute

// fillState tracks the engine-only bookkeeping for a project's initial
// fleet creation: this is orchestration scratch state, not part of the
// Project record itself, since it has no meaning once the fleet reaches
// steady state.
type fillState struct {
	remaining int
}

// rotationState tracks the engine-only bookkeeping for a project's rolling
// rotation: the oldest-first snapshot of containers to retire, a cursor
// into it walked with registry.RoundRobin, how many are still waiting to be
// replaced, and how many readiness retries remain for the container
// currently starting.
type rotationState struct {
	old         []registry.ContainerHandle
	cursor      int
	remaining   int
	retriesLeft int
}

// Engine owns both registries and is the only component allowed to mutate
// Repo or Project fields; every mutation happens on the goroutine running
// Run.
type Engine struct {
	repos    *registry.RepoRegistry
	projects *registry.ProjectRegistry

	vcs     vcsadapter.Adapter
	runtime runtimeadapter.Adapter

	queue  *intake.Queue
	logger *log.Logger

	readinessRetryBudget int
	taskTimeout          time.Duration

	fills     map[int]*fillState
	rotations map[int]*rotationState

	// stalled holds the indexes of projects whose pipeline is parked: they
	// want to build but could not (repo mid-pull, or a failed build waiting
	// for a new commit). The next pull completion for their repo re-drives
	// them.
	stalled map[int]struct{}

	done chan struct{}
}

func New(repos *registry.RepoRegistry, projects *registry.ProjectRegistry, vcs vcsadapter.Adapter, runtime runtimeadapter.Adapter, queue *intake.Queue, logger *log.Logger) *Engine {
	return &Engine{
		repos:                repos,
		projects:             projects,
		vcs:                  vcs,
		runtime:              runtime,
		queue:                queue,
		logger:               logger,
		readinessRetryBudget: DefaultReadinessRetryBudget,
		taskTimeout:          DefaultTaskTimeout,
		fills:                map[int]*fillState{},
		rotations:            map[int]*rotationState{},
		stalled:              map[int]struct{}{},
		done:                 make(chan struct{}),
	}
}

// SetReadinessRetryBudget overrides how many times a rotation retries a
// failed container start before aborting the cycle. Called before Run.
func (e *Engine) SetReadinessRetryBudget(n int) {
	if n >= 0 {
		e.readinessRetryBudget = n
	}
}

// Start kicks off the initial clone/pull of every repo known to the repo
// registry. Called once, after configuration load and before Run.
func (e *Engine) Start() {
	for _, r := range e.repos.All() {
		e.startPull(r)
	}
}

// Run drains the intake queue on the calling goroutine until it is closed.
// This is the engine's single logical thread of control: every handler it
// calls runs to completion before the next event is read, so no two
// handlers ever observe a torn Repo or Project.
func (e *Engine) Run() {
	defer close(e.done)
	for ev := range e.queue.Events() {
		e.handle(ev)
	}
}

// Alive reports whether the engine loop is still draining events, for the
// admin health endpoint.
func (e *Engine) Alive() bool {
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

func (e *Engine) handle(ev intake.Event) {
	switch v := ev.(type) {
	case intake.Webhook:
		e.handleWebhook(v.CloneURL)
	case intake.AdminRefresh:
		e.handleAdminRefresh(v.ProjectIndex)
	case PullCompleted:
		e.handlePullCompleted(v)
	case BuildCompleted:
		e.handleBuildCompleted(v)
	case ContainerStarted:
		e.handleContainerStarted(v)
	case ContainerStopped:
		e.handleContainerStopped(v)
	case LockReleased:
		e.handleLockReleased(v.Repo)
	default:
		e.logger.Printf("engine: dropping event of unknown type %T", ev)
	}
}

// fatal reports an invariant violation: a bug, not an operational failure.
// Per the error handling design this stops the engine from accepting new
// events and exits with a diagnostic.
func (e *Engine) fatal(format string, args ...interface{}) {
	e.logger.Fatalf("invariant violation: "+format, args...)
}

func (e *Engine) taskContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), e.taskTimeout)
}
