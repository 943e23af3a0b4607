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

// Registry is the domain model of the orchestration engine: Repo tracks one
// cloned working directory shared across projects, Project tracks one
// deployable unit's build recipe, desired fleet size and live containers.
package registry

import (
	"fmt"
	"sync"
)

type RepoState int

const (
	RepoInit RepoState = iota
	RepoNormal
	RepoUpdating
)

func (s RepoState) String() string {
	switch s {
	case RepoInit:
		return "init"
	case RepoNormal:
		return "normal"
	case RepoUpdating:
		return "updating"
	default:
		return "unknown"
	}
}

// Repo is one tracked source working directory, identified by clone URL. It
// may back multiple projects, so every mutation must go through the engine:
// the lock-count protocol is the only thing that serializes access to the
// shared working directory.
type Repo struct {
	sync.Mutex

	CloneURL string
	WorkDir  string

	// Commit is the last observed commit identifier, empty until the first
	// pull completes.
	Commit string

	State RepoState

	// UpdatePending records a deferred update request: a webhook arrived
	// while this repo could not be pulled immediately.
	UpdatePending bool

	// LockCount is the number of in-flight project builds currently reading
	// WorkDir. A pull may only start when it is zero.
	LockCount int

	// Cloned reports whether the initial clone of WorkDir has completed.
	// Until then, the engine schedules a clone instead of a pull.
	Cloned bool
}

func NewRepo(cloneURL, workDir string) *Repo {
	return &Repo{CloneURL: cloneURL, WorkDir: workDir, State: RepoInit}
}

// Acquire records that one more project build is reading WorkDir. It is an
// invariant violation to acquire a repo that is not normal; callers
// (internal/engine) must check State before invoking a build.
func (r *Repo) Acquire() error {
	r.Lock()
	defer r.Unlock()
	if r.State != RepoNormal {
		return fmt.Errorf("acquire lock on repo %s: state is %s, want normal", r.CloneURL, r.State)
	}
	r.LockCount++
	return nil
}

// Release records that one project build has finished reading WorkDir. It
// reports whether this release should trigger a deferred pull (lock count
// dropped to zero with an update pending) and clears UpdatePending when it
// does, per the repo state machine's "inspect update_pending on unlock" rule.
func (r *Repo) Release() (startDeferredPull bool, err error) {
	r.Lock()
	defer r.Unlock()
	if r.LockCount <= 0 {
		return false, fmt.Errorf("release lock on repo %s: lock count is %d, want > 0", r.CloneURL, r.LockCount)
	}
	if r.State != RepoNormal {
		return false, fmt.Errorf("release lock on repo %s: state is %s, want normal", r.CloneURL, r.State)
	}
	r.LockCount--
	if r.LockCount == 0 && r.UpdatePending {
		r.UpdatePending = false
		return true, nil
	}
	return false, nil
}

// Snapshot is a read-only copy of a Repo's observable fields, safe to hand to
// the status reporter without leaking the mutex or letting a caller mutate
// engine state directly.
type RepoSnapshot struct {
	CloneURL      string
	WorkDir       string
	Commit        string
	State         RepoState
	UpdatePending bool
	LockCount     int
}

func (r *Repo) Snapshot() RepoSnapshot {
	r.Lock()
	defer r.Unlock()
	return RepoSnapshot{
		CloneURL:      r.CloneURL,
		WorkDir:       r.WorkDir,
		Commit:        r.Commit,
		State:         r.State,
		UpdatePending: r.UpdatePending,
		LockCount:     r.LockCount,
	}
}
