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

// Package vcsadapter resolves commit identifiers and performs clone/pull on
// repo working directories. It is a narrow capability set, not a dynamic
// dispatch hierarchy, so tests can substitute an in-memory fake instead of
// shelling out to git.
package vcsadapter

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Adapter is the VCS capability set described by the orchestration engine's
// external interfaces: resolve the current commit of a working directory,
// clone a fresh one, and fast-forward an existing one.
type Adapter interface {
	// GetCommit resolves the current commit identifier of dir. It fails if
	// dir is not a valid repository.
	GetCommit(dir string) (string, error)

	// Clone clones url into dir. It fails if dir already exists.
	Clone(url, dir string) error

	// Pull fast-forwards dir and returns the new commit identifier.
	Pull(dir string) (string, error)
}

// GitAdapter is the production Adapter, backed by go-git.
type GitAdapter struct{}

func NewGitAdapter() *GitAdapter {
	return &GitAdapter{}
}

func (GitAdapter) GetCommit(dir string) (string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", dir, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD in %s: %w", dir, err)
	}
	return head.Hash().String(), nil
}

// Clone clones url into dir. A dir that already exists is an error: either
// a crash-restart raced a partial clone or an operator pointed two repos at
// one directory, and adopting a half-written working tree is worse than
// failing loudly.
func (GitAdapter) Clone(url, dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("clone target %s already exists", dir)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	repo, err := git.PlainClone(dir, false, &git.CloneOptions{URL: url})
	if err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("clone %s into %s: %w", url, dir, err)
	}
	if _, err := repo.Head(); err != nil {
		return fmt.Errorf("resolve HEAD after clone of %s: %w", url, err)
	}
	return nil
}

func (GitAdapter) Pull(dir string) (string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("worktree for %s: %w", dir, err)
	}
	err = wt.Pull(&git.PullOptions{RemoteName: "origin"})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		if errors.Is(err, transport.ErrEmptyRemoteRepository) {
			return "", fmt.Errorf("pull %s: remote repository is empty", dir)
		}
		return "", fmt.Errorf("pull %s: %w", dir, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD after pull of %s: %w", dir, err)
	}
	return head.Hash().String(), nil
}

var _ Adapter = GitAdapter{}
