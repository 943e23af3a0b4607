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

package engine

import "github.com/codepr/narwhal/internal/registry"

// PullCompleted is posted by the background VCS task once a clone or pull
// finishes. Cloned reports whether this pull represents the repo's very
// first clone, so the engine knows to latch Repo.Cloned rather than guess
// from shared state.
type PullCompleted struct {
	Repo   *registry.Repo
	Cloned bool
	Commit string
	Err    error
}

// BuildCompleted is posted once the runtime adapter finishes building an
// image and discovering its hooks for a project.
type BuildCompleted struct {
	Project *registry.Project
	Image   string
	Hooks   []string
	Err     error
}

// ContainerStarted is posted once a newly created container either becomes
// ready (Err == nil) or fails its readiness hook / exits early (Err != nil).
type ContainerStarted struct {
	Project *registry.Project
	Handle  registry.ContainerHandle
	Phase   string // "fill" (initial fleet) or "rotate"
	Err     error
}

// ContainerStopped is posted once the runtime adapter confirms a container
// has been stopped and removed.
type ContainerStopped struct {
	Project *registry.Project
	Handle  registry.ContainerHandle
	Err     error
}

// LockReleased asks the engine loop to release one lock on Repo through
// the same lock-count/deferred-pull path a finished build uses. The build
// pipeline does not post it: handleBuildCompleted releases its lock
// directly.
type LockReleased struct {
	Repo *registry.Repo
}
