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

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/codepr/narwhal/internal/config"
	"github.com/codepr/narwhal/internal/registry"
)

// startBuildPipeline acquires the project's repo lock, builds the image in
// the background, runs the project's verification recipe (if any) against
// the fresh image, discovers its hooks, and posts a BuildCompleted event.
// The lock is acquired synchronously so a caller mistake (invoking build
// while the repo isn't normal) is caught immediately as an invariant
// violation rather than surfacing asynchronously.
func (e *Engine) startBuildPipeline(project *registry.Project) {
	if err := project.Repo.Acquire(); err != nil {
		e.fatal("%v", err)
		return
	}

	tag := project.BaseName
	dockerfile := project.BuildRecipePath
	contextDir := project.Repo.WorkDir
	hookDir := project.HookDir
	checksPath := project.CIRecipePath

	go func() {
		ctx, cancel := e.taskContext()
		defer cancel()

		err := e.runtime.Build(ctx, tag, dockerfile, contextDir)
		if err != nil {
			e.queue.Push(BuildCompleted{Project: project, Err: err})
			return
		}
		if checksPath != "" {
			if err := e.runChecks(ctx, tag, filepath.Join(contextDir, checksPath)); err != nil {
				e.queue.Push(BuildCompleted{Project: project, Err: err})
				return
			}
		}
		hooks, err := e.runtime.ListDir(ctx, tag, hookDir)
		e.queue.Push(BuildCompleted{Project: project, Image: tag, Hooks: hooks, Err: err})
	}()
}

// runChecks loads the verification recipe committed alongside the
// Dockerfile and runs each step in an ephemeral container from the freshly
// built image. A failing step fails the whole build, so a broken revision
// never reaches the rotation. A repo that doesn't carry the recipe file is
// simply unchecked. Called from the background build task only.
func (e *Engine) runChecks(ctx context.Context, tag, path string) error {
	recipe, err := config.LoadBuildRecipe(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load verification recipe: %w", err)
	}
	for _, step := range recipe.Steps {
		if _, err := e.runtime.Run(ctx, tag, []string{"/bin/sh", "-c", step.Cmd}); err != nil {
			return fmt.Errorf("verification step %q: %w", step.Name, err)
		}
	}
	return nil
}

// handleBuildCompleted releases the lock on both paths, then either
// retries or parks the pipeline (on failure), creates the initial fleet
// (first build of a project), or begins the rolling rotation (subsequent
// build).
func (e *Engine) handleBuildCompleted(ev BuildCompleted) {
	project := ev.Project
	e.releaseRepoLock(project.Repo)

	if ev.Err != nil {
		e.logger.Printf("build failed for project %d (%s): %v", project.Index, project.BaseName, ev.Err)
		// The rotation/fleet-creation step is skipped for this cycle. A
		// pending refresh retries the pipeline right away if the repo allows
		// it; otherwise the project parks until the next pull completes.
		if project.UpdatePending && project.Repo.State == registry.RepoNormal {
			project.Lock()
			project.UpdatePending = false
			project.Unlock()
			e.startBuildPipeline(project)
		} else {
			e.stalled[project.Index] = struct{}{}
		}
		return
	}

	project.Lock()
	project.Image = ev.Image
	hooks := make(map[string]struct{}, len(ev.Hooks))
	for _, h := range ev.Hooks {
		hooks[h] = struct{}{}
	}
	project.Hooks = hooks
	isInit := project.State == registry.ProjectInit
	project.Unlock()

	if isInit {
		e.beginInitialFleet(project)
		return
	}
	e.beginRotation(project)
}

// settleProject applies the "on entering normal, inspect update_pending"
// rule to a project that finished (or aborted) its update cycle. A pending
// refresh re-runs the pipeline immediately when the repo allows it, and
// parks the project until the repo's pull completes when it doesn't.
func (e *Engine) settleProject(project *registry.Project) {
	project.Lock()
	project.State = registry.ProjectNormal
	if !project.UpdatePending {
		project.Unlock()
		return
	}
	if project.Repo.State != registry.RepoNormal {
		project.State = registry.ProjectUpdating
		e.stalled[project.Index] = struct{}{}
		project.Unlock()
		return
	}
	project.UpdatePending = false
	project.State = registry.ProjectUpdating
	project.Unlock()
	e.startBuildPipeline(project)
}
