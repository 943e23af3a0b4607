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

package registry

import "sync"

type ProjectState int

const (
	ProjectInit ProjectState = iota
	ProjectNormal
	ProjectUpdating
)

func (s ProjectState) String() string {
	switch s {
	case ProjectInit:
		return "init"
	case ProjectNormal:
		return "normal"
	case ProjectUpdating:
		return "updating"
	default:
		return "unknown"
	}
}

// ContainerHandle is the opaque identifier a runtime adapter hands back for
// a created container. The reference Docker adapter returns 64 hex
// characters; callers should treat it as opaque.
type ContainerHandle string

// Project is one deployable unit: a build recipe rooted in a shared Repo's
// working directory, a desired container-count range, and the three
// disjoint sets of container handles that make up its live fleet.
type Project struct {
	sync.Mutex

	// Index is this project's stable identity (position in the static
	// configuration list).
	Index int

	Name string

	// Repo is a shared, non-owning reference: the project never mutates it
	// directly, only the engine does.
	Repo *Repo

	BuildRecipePath string
	HookDir         string
	BaseName        string

	// CIRecipePath is the optional path, relative to the repo working
	// directory, of a verification recipe to run against every freshly
	// built image before it is rotated in. Empty means unchecked.
	CIRecipePath string

	MinContainers int
	MaxContainers int

	State         ProjectState
	UpdatePending bool

	// Hooks is the set of hook names discovered inside the most recently
	// built image.
	Hooks map[string]struct{}

	// Image is the tag of the most recently built image for this project.
	Image string

	Active   map[ContainerHandle]struct{}
	Starting map[ContainerHandle]struct{}
	Ending   map[ContainerHandle]struct{}

	// activeOrder tracks the order in which handles were promoted into
	// Active, oldest first, so the rolling rotation knows which container to
	// retire next without guessing from map iteration order.
	activeOrder []ContainerHandle
}

func NewProject(index int, name string, repo *Repo, recipe, hookDir, baseName string, min, max int) *Project {
	return &Project{
		Index:           index,
		Name:            name,
		Repo:            repo,
		BuildRecipePath: recipe,
		HookDir:         hookDir,
		BaseName:        baseName,
		MinContainers:   min,
		MaxContainers:   max,
		State:           ProjectInit,
		Hooks:           map[string]struct{}{},
		Active:          map[ContainerHandle]struct{}{},
		Starting:        map[ContainerHandle]struct{}{},
		Ending:          map[ContainerHandle]struct{}{},
	}
}

// HasHook reports whether the most recent hook discovery found name inside
// the image.
func (p *Project) HasHook(name string) bool {
	_, ok := p.Hooks[name]
	return ok
}

// AddStarting inserts handle into Starting. Callers must hold p's lock.
func (p *Project) AddStarting(handle ContainerHandle) {
	p.Starting[handle] = struct{}{}
}

// PromoteToActive moves handle from Starting to Active, recording it as the
// newest member of the active set. Callers must hold p's lock.
func (p *Project) PromoteToActive(handle ContainerHandle) {
	delete(p.Starting, handle)
	p.Active[handle] = struct{}{}
	p.activeOrder = append(p.activeOrder, handle)
}

// DropStarting removes handle from Starting without promoting it, used when
// a readiness hook fails during startup. Callers must hold p's lock.
func (p *Project) DropStarting(handle ContainerHandle) {
	delete(p.Starting, handle)
}

// RetireOldestActive moves the longest-lived active handle into Ending and
// returns it. It reports false if Active is empty. Callers must hold p's
// lock.
func (p *Project) RetireOldestActive() (ContainerHandle, bool) {
	if len(p.activeOrder) == 0 {
		return "", false
	}
	handle := p.activeOrder[0]
	p.activeOrder = p.activeOrder[1:]
	delete(p.Active, handle)
	p.Ending[handle] = struct{}{}
	return handle, true
}

// RetireHandle moves a specific active handle into Ending, dropping it from
// activeOrder wherever it sits. Used by the rolling rotation when the
// retirement order is decided ahead of time via RoundRobin over a snapshot,
// rather than always taking the current head of activeOrder. Callers must
// hold p's lock.
func (p *Project) RetireHandle(handle ContainerHandle) bool {
	if _, ok := p.Active[handle]; !ok {
		return false
	}
	for i, h := range p.activeOrder {
		if h == handle {
			p.activeOrder = append(p.activeOrder[:i], p.activeOrder[i+1:]...)
			break
		}
	}
	delete(p.Active, handle)
	p.Ending[handle] = struct{}{}
	return true
}

// ConfirmEnded removes handle from Ending once the runtime adapter confirms
// it has stopped. Callers must hold p's lock.
func (p *Project) ConfirmEnded(handle ContainerHandle) {
	delete(p.Ending, handle)
}

// ActiveOldestFirst returns a snapshot of Active in promotion order, oldest
// first. Callers must hold p's lock.
func (p *Project) ActiveOldestFirst() []ContainerHandle {
	out := make([]ContainerHandle, len(p.activeOrder))
	copy(out, p.activeOrder)
	return out
}

type ProjectSnapshot struct {
	Index         int
	Name          string
	RepoURL       string
	State         ProjectState
	UpdatePending bool
	Active        int
	Starting      int
	Ending        int
	Min           int
	Max           int
	Image         string
}

func (p *Project) Snapshot() ProjectSnapshot {
	p.Lock()
	defer p.Unlock()
	url := ""
	if p.Repo != nil {
		url = p.Repo.CloneURL
	}
	return ProjectSnapshot{
		Index:         p.Index,
		Name:          p.Name,
		RepoURL:       url,
		State:         p.State,
		UpdatePending: p.UpdatePending,
		Active:        len(p.Active),
		Starting:      len(p.Starting),
		Ending:        len(p.Ending),
		Min:           p.MinContainers,
		Max:           p.MaxContainers,
		Image:         p.Image,
	}
}
