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

const (
	phaseFill   = "fill"
	phaseRotate = "rotate"
)

// beginInitialFleet brings the minimum number of containers live for a
// project that has just completed its first image build, none of them
// replacing anything.
func (e *Engine) beginInitialFleet(project *registry.Project) {
	n := project.MinContainers
	if n <= 0 {
		e.settleProject(project)
		return
	}
	e.fills[project.Index] = &fillState{remaining: n}
	for i := 0; i < n; i++ {
		e.startContainer(project, phaseFill)
	}
}

// beginRotation snapshots the old active set, oldest first, so the
// retirement order is fixed for the whole cycle even as newly promoted
// containers join Active alongside it, and kicks off the first replacement.
func (e *Engine) beginRotation(project *registry.Project) {
	project.Lock()
	old := project.ActiveOldestFirst()
	project.Unlock()
	if len(old) == 0 {
		e.finishUpdate(project)
		return
	}
	e.rotations[project.Index] = &rotationState{old: old, remaining: len(old), retriesLeft: e.readinessRetryBudget}
	e.startContainer(project, phaseRotate)
}

// startContainer creates a detached container in a background task, then
// blocks there on its wait_ready hook (if the image ships one) so the
// engine loop never suspends.
func (e *Engine) startContainer(project *registry.Project, phase string) {
	tag := project.Image
	hasReady := project.HasHook("wait_ready")

	go func() {
		ctx, cancel := e.taskContext()
		defer cancel()

		handle, err := e.runtime.Create(ctx, tag)
		if err != nil {
			e.queue.Push(ContainerStarted{Project: project, Phase: phase, Err: err})
			return
		}
		if hasReady {
			if _, err := e.runtime.Exec(ctx, handle, []string{"wait_ready"}); err != nil {
				e.runtime.Stop(ctx, handle)
				e.queue.Push(ContainerStarted{Project: project, Handle: registry.ContainerHandle(handle), Phase: phase, Err: err})
				return
			}
		}
		e.queue.Push(ContainerStarted{Project: project, Handle: registry.ContainerHandle(handle), Phase: phase})
	}()
}

// stopContainer instructs the runtime adapter, in a background task, to
// stop and remove a container already moved into Ending.
func (e *Engine) stopContainer(project *registry.Project, handle registry.ContainerHandle) {
	go func() {
		ctx, cancel := e.taskContext()
		defer cancel()
		err := e.runtime.Stop(ctx, string(handle))
		e.queue.Push(ContainerStopped{Project: project, Handle: handle, Err: err})
	}()
}

func (e *Engine) handleContainerStarted(ev ContainerStarted) {
	project := ev.Project

	if ev.Err != nil {
		e.logger.Printf("container start failed for project %d: %v", project.Index, ev.Err)
		if ev.Handle != "" {
			project.Lock()
			project.DropStarting(ev.Handle)
			project.Unlock()
		}
		switch ev.Phase {
		case phaseFill:
			// A readiness failure during initial fleet creation simply
			// retries: there is no old container to protect yet.
			e.startContainer(project, phaseFill)
		case phaseRotate:
			rs := e.rotations[project.Index]
			if rs == nil {
				e.fatal("container started event for project %d with no rotation in flight", project.Index)
				return
			}
			rs.retriesLeft--
			if rs.retriesLeft < 0 {
				e.logger.Printf("rotation for project %d aborted after repeated readiness failures", project.Index)
				delete(e.rotations, project.Index)
				e.settleProject(project)
				return
			}
			e.startContainer(project, phaseRotate)
		}
		return
	}

	project.Lock()
	project.AddStarting(ev.Handle)
	project.PromoteToActive(ev.Handle)
	project.Unlock()

	switch ev.Phase {
	case phaseFill:
		fs := e.fills[project.Index]
		if fs == nil {
			e.fatal("container started event for project %d with no fleet fill in flight", project.Index)
			return
		}
		fs.remaining--
		if fs.remaining <= 0 {
			delete(e.fills, project.Index)
			e.settleProject(project)
		}
	case phaseRotate:
		rs := e.rotations[project.Index]
		if rs == nil {
			e.fatal("container started event for project %d with no rotation in flight", project.Index)
			return
		}
		var handle registry.ContainerHandle
		handle, rs.cursor = registry.RoundRobin(rs.old, rs.cursor)
		project.Lock()
		retired := project.RetireHandle(handle)
		project.Unlock()
		if !retired {
			e.fatal("rotation for project %d could not retire handle %s", project.Index, handle)
			return
		}
		e.stopContainer(project, handle)
	}
}

func (e *Engine) handleContainerStopped(ev ContainerStopped) {
	project := ev.Project
	if ev.Err != nil {
		// The adapter already reported failure; the container is leaked at
		// the runtime level but removed from Ending so bookkeeping doesn't
		// wedge the rotation permanently.
		e.logger.Printf("container stop failed for project %d handle %s: %v", project.Index, ev.Handle, ev.Err)
	}
	project.Lock()
	project.ConfirmEnded(ev.Handle)
	project.Unlock()

	rs := e.rotations[project.Index]
	if rs == nil {
		e.fatal("container stopped event for project %d with no rotation in flight", project.Index)
		return
	}
	rs.remaining--
	if rs.remaining <= 0 {
		delete(e.rotations, project.Index)
		e.finishUpdate(project)
		return
	}
	rs.retriesLeft = e.readinessRetryBudget
	e.startContainer(project, phaseRotate)
}

// finishUpdate marks the rotation complete: settle back to normal, or
// immediately re-enter the pipeline for a refresh deferred mid-cycle.
func (e *Engine) finishUpdate(project *registry.Project) {
	e.settleProject(project)
}
