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
	"testing"
)

func TestGitAdapterCloneRejectsExistingDir(t *testing.T) {
	dir := t.TempDir()
	if err := NewGitAdapter().Clone("https://example/repo", dir); err == nil {
		t.Fatalf("Clone into an existing directory should fail")
	}
}

func TestGitAdapterGetCommitRejectsNonRepo(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewGitAdapter().GetCommit(dir); err == nil {
		t.Fatalf("GetCommit on a non-repository directory should fail")
	}
}

func TestFakeClonePopulatesHeadCommit(t *testing.T) {
	f := NewFake()
	f.Remotes["https://example/repo"] = []string{"c1", "c2"}

	if err := f.Clone("https://example/repo", "/work/repo"); err != nil {
		t.Fatalf("Clone: %v", err)
	}
	commit, err := f.GetCommit("/work/repo")
	if err != nil {
		t.Fatalf("GetCommit: %v", err)
	}
	if commit != "c2" {
		t.Errorf("GetCommit after Clone = %q, want remote tip c2", commit)
	}
}

func TestFakeCloneRejectsReuseOfSameDir(t *testing.T) {
	f := NewFake()
	f.Remotes["https://example/repo"] = []string{"c1"}
	if err := f.Clone("https://example/repo", "/work/repo"); err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if err := f.Clone("https://example/repo", "/work/repo"); err == nil {
		t.Fatalf("Clone into an already-cloned directory should fail")
	}
}

func TestFakePullFastForwardsToLatestAdvance(t *testing.T) {
	f := NewFake()
	f.Remotes["https://example/repo"] = []string{"c1"}
	if err := f.Clone("https://example/repo", "/work/repo"); err != nil {
		t.Fatalf("Clone: %v", err)
	}
	f.Advance("https://example/repo", "c2")
	f.Advance("https://example/repo", "c3")

	// Two commits landed between polls; one pull jumps over the
	// intermediate one.
	commit, err := f.Pull("/work/repo")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if commit != "c3" {
		t.Errorf("Pull = %q, want c3", commit)
	}
}

func TestFakePullHonorsFailNextPull(t *testing.T) {
	f := NewFake()
	f.Remotes["https://example/repo"] = []string{"c1"}
	if err := f.Clone("https://example/repo", "/work/repo"); err != nil {
		t.Fatalf("Clone: %v", err)
	}
	f.Advance("https://example/repo", "c2")
	f.FailNextPull["/work/repo"] = true

	if _, err := f.Pull("/work/repo"); err == nil {
		t.Fatalf("Pull did not honor FailNextPull")
	}
	commit, err := f.Pull("/work/repo")
	if err != nil {
		t.Fatalf("Pull after the injected failure: %v", err)
	}
	if commit != "c2" {
		t.Errorf("Pull = %q, want c2 once the one-shot failure is consumed", commit)
	}
}
