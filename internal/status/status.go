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

// Package status is the read-only projection of registry state for the
// admin/status HTTP surface. It never mutates a Repo or Project; it only
// calls their Snapshot methods.
package status

import (
	"github.com/codepr/narwhal/internal/registry"
)

// RepoStatus is the wire-friendly view of a Repo.
type RepoStatus struct {
	CloneURL      string `json:"clone_url"`
	WorkDir       string `json:"work_dir"`
	Commit        string `json:"commit"`
	State         string `json:"state"`
	UpdatePending bool   `json:"update_pending"`
	LockCount     int    `json:"lock_count"`
}

// ProjectStatus is the wire-friendly view of a Project.
type ProjectStatus struct {
	Index         int    `json:"index"`
	Name          string `json:"name"`
	RepoURL       string `json:"repo_url"`
	State         string `json:"state"`
	UpdatePending bool   `json:"update_pending"`
	Active        int    `json:"active"`
	Starting      int    `json:"starting"`
	Ending        int    `json:"ending"`
	Min           int    `json:"min"`
	Max           int    `json:"max"`
	Image         string `json:"image"`
}

// Snapshot is the full read-only view handed to the status/admin surface.
type Snapshot struct {
	Repos    []RepoStatus    `json:"repos"`
	Projects []ProjectStatus `json:"projects"`
}

// Reporter projects RepoRegistry/ProjectRegistry state without ever
// mutating it, so it is safe to call concurrently with the engine loop.
type Reporter struct {
	repos    *registry.RepoRegistry
	projects *registry.ProjectRegistry
}

func NewReporter(repos *registry.RepoRegistry, projects *registry.ProjectRegistry) *Reporter {
	return &Reporter{repos: repos, projects: projects}
}

func (r *Reporter) Snapshot() Snapshot {
	repoSnaps := r.repos.All()
	out := Snapshot{Repos: make([]RepoStatus, 0, len(repoSnaps))}
	for _, repo := range repoSnaps {
		s := repo.Snapshot()
		out.Repos = append(out.Repos, RepoStatus{
			CloneURL:      s.CloneURL,
			WorkDir:       s.WorkDir,
			Commit:        s.Commit,
			State:         s.State.String(),
			UpdatePending: s.UpdatePending,
			LockCount:     s.LockCount,
		})
	}
	projectSnaps := r.projects.All()
	out.Projects = make([]ProjectStatus, 0, len(projectSnaps))
	for _, p := range projectSnaps {
		s := p.Snapshot()
		out.Projects = append(out.Projects, ProjectStatus{
			Index:         s.Index,
			Name:          s.Name,
			RepoURL:       s.RepoURL,
			State:         s.State.String(),
			UpdatePending: s.UpdatePending,
			Active:        s.Active,
			Starting:      s.Starting,
			Ending:        s.Ending,
			Min:           s.Min,
			Max:           s.Max,
			Image:         s.Image,
		})
	}
	return out
}
