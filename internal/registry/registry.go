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

import (
	"fmt"
	"sync"
)

// RepoRegistry is a mapping from clone URL to the Repo tracking it. Repos are
// created once at engine startup for every URL referenced by the project
// configuration and never destroyed during the engine's lifetime.
type RepoRegistry struct {
	mu    sync.RWMutex
	repos map[string]*Repo
}

func NewRepoRegistry() *RepoRegistry {
	return &RepoRegistry{repos: map[string]*Repo{}}
}

// GetOrCreate returns the Repo for cloneURL, creating it (in RepoInit state)
// the first time it is referenced. Subsequent calls with the same cloneURL
// return the same *Repo, so that projects sharing a clone URL share state.
func (rr *RepoRegistry) GetOrCreate(cloneURL, workDir string) *Repo {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if r, ok := rr.repos[cloneURL]; ok {
		return r
	}
	r := NewRepo(cloneURL, workDir)
	rr.repos[cloneURL] = r
	return r
}

func (rr *RepoRegistry) Get(cloneURL string) (*Repo, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	r, ok := rr.repos[cloneURL]
	return r, ok
}

func (rr *RepoRegistry) All() []*Repo {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	out := make([]*Repo, 0, len(rr.repos))
	for _, r := range rr.repos {
		out = append(out, r)
	}
	return out
}

// ProjectRegistry is an ordered collection of Project records, indexed by
// their stable configuration index.
type ProjectRegistry struct {
	mu       sync.RWMutex
	projects []*Project
}

func NewProjectRegistry() *ProjectRegistry {
	return &ProjectRegistry{}
}

func (pr *ProjectRegistry) Add(p *Project) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.projects = append(pr.projects, p)
}

func (pr *ProjectRegistry) Get(index int) (*Project, error) {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	for _, p := range pr.projects {
		if p.Index == index {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no project with index %d", index)
}

func (pr *ProjectRegistry) All() []*Project {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	out := make([]*Project, len(pr.projects))
	copy(out, pr.projects)
	return out
}

// ForRepo returns every project that shares the given repo, in registration
// order. Projects sharing a repo are updated independently by the engine,
// but fan-out after a pull needs to reach all of them.
func (pr *ProjectRegistry) ForRepo(r *Repo) []*Project {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	var out []*Project
	for _, p := range pr.projects {
		if p.Repo == r {
			out = append(out, p)
		}
	}
	return out
}
