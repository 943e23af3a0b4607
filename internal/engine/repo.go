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

// handleWebhook implements the repo state machine's webhook transitions:
// start a pull immediately if the repo is idle, defer it if a build
// currently holds the lock, or coalesce it into an in-flight pull.
func (e *Engine) handleWebhook(cloneURL string) {
	repo, ok := e.repos.Get(cloneURL)
	if !ok {
		e.logger.Printf("webhook for unknown clone url %q, dropping", cloneURL)
		return
	}

	repo.Lock()
	pull := false
	switch repo.State {
	case registry.RepoInit:
		// The initial clone is already in flight; it will observe the commit
		// this webhook announced.
		e.logger.Printf("webhook for %s arrived before initial clone completed, ignoring", cloneURL)
	case registry.RepoNormal:
		if repo.LockCount == 0 {
			pull = true
		} else {
			repo.UpdatePending = true
		}
	case registry.RepoUpdating:
		repo.UpdatePending = true
	}
	repo.Unlock()

	if pull {
		e.startPull(repo)
	}
}

// handleAdminRefresh forces a single project through its update pipeline
// independent of its repo's commit state.
func (e *Engine) handleAdminRefresh(projectIndex int) {
	project, err := e.projects.Get(projectIndex)
	if err != nil {
		e.logger.Printf("admin refresh for unknown project %d, dropping", projectIndex)
		return
	}

	if _, parked := e.stalled[project.Index]; parked && project.Repo.State == registry.RepoNormal {
		e.resumeProject(project)
		return
	}
	if project.State == registry.ProjectNormal && project.Repo.State == registry.RepoNormal {
		project.Lock()
		project.State = registry.ProjectUpdating
		project.Unlock()
		e.startBuildPipeline(project)
		return
	}

	project.Lock()
	project.UpdatePending = true
	if project.State == registry.ProjectNormal {
		// The repo is mid-pull; park the project until the pull completes.
		project.State = registry.ProjectUpdating
		e.stalled[project.Index] = struct{}{}
	}
	project.Unlock()
}

// startPull launches the repo's clone-or-pull as a background task. Inputs
// are captured by value before the goroutine starts so the task never reads
// or writes Repo fields; it reports back through a PullCompleted event.
func (e *Engine) startPull(repo *registry.Repo) {
	repo.Lock()
	repo.State = registry.RepoUpdating
	url := repo.CloneURL
	dir := repo.WorkDir
	needClone := !repo.Cloned
	repo.Unlock()

	go func() {
		var commit string
		var err error
		if needClone {
			if err = e.vcs.Clone(url, dir); err == nil {
				commit, err = e.vcs.GetCommit(dir)
			}
		} else {
			commit, err = e.vcs.Pull(dir)
		}
		e.queue.Push(PullCompleted{Repo: repo, Cloned: needClone, Commit: commit, Err: err})
	}()
}

// handlePullCompleted implements the rest of the repo state machine: on
// failure the repo returns to normal without clearing a pending request; on
// success it records the commit, fans out to its projects if the commit
// changed, and inspects update_pending before settling.
func (e *Engine) handlePullCompleted(ev PullCompleted) {
	repo := ev.Repo
	repo.Lock()
	if repo.LockCount != 0 {
		repo.Unlock()
		e.fatal("pull completed for %s while lock count is %d, want 0", repo.CloneURL, repo.LockCount)
		return
	}

	if ev.Err != nil {
		repo.State = registry.RepoNormal
		repo.Unlock()
		e.logger.Printf("pull failed for %s: %v", repo.CloneURL, ev.Err)
		e.resumeStalledPending(repo)
		e.settleRepo(repo)
		return
	}

	if ev.Cloned {
		repo.Cloned = true
	}
	changed := ev.Commit != repo.Commit
	repo.Commit = ev.Commit
	repo.State = registry.RepoNormal
	repo.Unlock()

	for _, p := range e.projects.ForRepo(repo) {
		if _, parked := e.stalled[p.Index]; parked {
			if changed || p.UpdatePending {
				e.resumeProject(p)
			}
			continue
		}
		p.Lock()
		build := false
		switch p.State {
		case registry.ProjectInit:
			// Either the first build never started (this is the initial
			// pull) or the initial fleet is still filling.
			if e.fills[p.Index] == nil {
				build = true
			} else if changed {
				p.UpdatePending = true
			}
		case registry.ProjectNormal:
			if changed {
				p.State = registry.ProjectUpdating
				build = true
			}
		case registry.ProjectUpdating:
			if changed {
				p.UpdatePending = true
			}
		}
		p.Unlock()
		if build {
			e.startBuildPipeline(p)
		}
	}

	e.settleRepo(repo)
}

// resumeProject restarts the pipeline of a project that was parked waiting
// for its repo to return to normal. The caller must have checked that the
// repo is normal.
func (e *Engine) resumeProject(p *registry.Project) {
	delete(e.stalled, p.Index)
	p.Lock()
	p.UpdatePending = false
	if p.State != registry.ProjectInit {
		p.State = registry.ProjectUpdating
	}
	p.Unlock()
	e.startBuildPipeline(p)
}

// resumeStalledPending restarts parked projects that carry an explicit
// pending refresh. Projects parked by a failed build without a pending
// refresh keep waiting for a new commit.
func (e *Engine) resumeStalledPending(repo *registry.Repo) {
	for _, p := range e.projects.ForRepo(repo) {
		if _, parked := e.stalled[p.Index]; parked && p.UpdatePending {
			e.resumeProject(p)
		}
	}
}

// settleRepo applies the "on entering normal, inspect update_pending" rule
// shared by the pull-completion and lock-release paths.
func (e *Engine) settleRepo(repo *registry.Repo) {
	repo.Lock()
	pull := repo.State == registry.RepoNormal && repo.UpdatePending && repo.LockCount == 0
	if pull {
		repo.UpdatePending = false
	}
	repo.Unlock()
	if pull {
		e.startPull(repo)
	}
}

// releaseRepoLock implements the release half of the lock-count protocol:
// decrement, and if the count reaches zero with a pending update, start the
// deferred pull immediately.
func (e *Engine) releaseRepoLock(repo *registry.Repo) {
	startPull, err := repo.Release()
	if err != nil {
		e.fatal("%v", err)
		return
	}
	if startPull {
		e.startPull(repo)
	}
}

// handleLockReleased is the entry point for a bare LockReleased event: it
// releases one lock on repo without a build completion attached.
func (e *Engine) handleLockReleased(repo *registry.Repo) {
	e.releaseRepoLock(repo)
}
