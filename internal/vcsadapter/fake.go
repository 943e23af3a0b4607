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

package vcsadapter

import (
	"fmt"
	"sync"
)

// Fake is an in-memory Adapter used by engine tests so that the
// orchestration logic can be exercised without shelling out to git. Each
// remote URL carries a commit history appended to with Advance; clones and
// pulls fast-forward straight to the newest entry, so several Advance calls
// between pulls are observed as one jump, the way a real fetch collapses
// intermediate commits.
type Fake struct {
	mu sync.Mutex

	// Remotes maps clone URL to its commit history, oldest first.
	Remotes map[string][]string

	// cloned tracks which directories have been created by Clone.
	cloned map[string]string // dir -> url

	// head tracks the commit each cloned directory currently sits on.
	head map[string]string // dir -> commit

	// FailNextPull, keyed by dir, makes the next Pull for that dir return an
	// error once, simulating a transient network failure.
	FailNextPull map[string]bool
}

func NewFake() *Fake {
	return &Fake{
		Remotes:      map[string][]string{},
		cloned:       map[string]string{},
		head:         map[string]string{},
		FailNextPull: map[string]bool{},
	}
}

func (f *Fake) GetCommit(dir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cloned[dir]; !ok {
		return "", fmt.Errorf("%s is not a valid repository", dir)
	}
	return f.head[dir], nil
}

func (f *Fake) Clone(url, dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cloned[dir]; ok {
		return fmt.Errorf("clone target %s already exists", dir)
	}
	f.cloned[dir] = url
	f.head[dir] = f.latest(url)
	return nil
}

func (f *Fake) Pull(dir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailNextPull[dir] {
		f.FailNextPull[dir] = false
		return "", fmt.Errorf("simulated transient pull failure for %s", dir)
	}
	url, ok := f.cloned[dir]
	if !ok {
		return "", fmt.Errorf("%s is not a valid repository", dir)
	}
	f.head[dir] = f.latest(url)
	return f.head[dir], nil
}

func (f *Fake) latest(url string) string {
	commits := f.Remotes[url]
	if len(commits) == 0 {
		return ""
	}
	return commits[len(commits)-1]
}

// Advance appends a new commit to url's remote history, to be observed by
// the next Pull of any directory cloned from it.
func (f *Fake) Advance(url, commit string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Remotes[url] = append(f.Remotes[url], commit)
}

var _ Adapter = (*Fake)(nil)
