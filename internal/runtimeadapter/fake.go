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

package runtimeadapter

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Adapter for exercising the engine's build pipeline,
// container startup/shutdown and rolling rotation without a real Docker
// daemon.
type Fake struct {
	mu sync.Mutex

	counter int

	// Hooks, keyed by tag, is the hook listing ListDir returns for that
	// image.
	Hooks map[string][]string

	// FailExec, keyed by handle, makes the named hook fail once for that
	// container, simulating a non-zero readiness hook.
	FailExec map[string]bool

	// FailBuild, keyed by tag, makes the next Build for that tag fail once.
	FailBuild map[string]bool

	// FailRun, keyed by tag, makes the next Run for that tag fail once,
	// simulating a failing verification step.
	FailRun map[string]bool

	live map[string]bool
}

func NewFake() *Fake {
	return &Fake{
		Hooks:     map[string][]string{},
		FailExec:  map[string]bool{},
		FailBuild: map[string]bool{},
		FailRun:   map[string]bool{},
		live:      map[string]bool{},
	}
}

func (f *Fake) Build(ctx context.Context, tag, recipePath, contextDir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailBuild[tag] {
		f.FailBuild[tag] = false
		return fmt.Errorf("simulated build failure for %s", tag)
	}
	return nil
}

func (f *Fake) Create(ctx context.Context, tag string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter++
	handle := fmt.Sprintf("%064x", f.counter)
	f.live[handle] = true
	return handle, nil
}

func (f *Fake) Exec(ctx context.Context, handle string, cmd []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailExec[handle] {
		f.FailExec[handle] = false
		return "", fmt.Errorf("exec %v in %s exited 1", cmd, handle)
	}
	return "ok", nil
}

func (f *Fake) Run(ctx context.Context, tag string, cmd []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailRun[tag] {
		f.FailRun[tag] = false
		return "", fmt.Errorf("run %v in ephemeral %s exited 1", cmd, tag)
	}
	return "ok", nil
}

func (f *Fake) Stop(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, handle)
	return nil
}

func (f *Fake) ListDir(ctx context.Context, tag, hookDir string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hooks := f.Hooks[tag]
	out := make([]string, len(hooks))
	copy(out, hooks)
	return out, nil
}

var _ Adapter = (*Fake)(nil)
