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

import "testing"

func TestNewRepoStartsInInit(t *testing.T) {
	r := NewRepo("https://example/r", "/work/r")
	if r.State != RepoInit {
		t.Errorf("new repo state = %s, want init", r.State)
	}
	if r.LockCount != 0 {
		t.Errorf("new repo lock_count = %d, want 0", r.LockCount)
	}
}

func TestAcquireRequiresNormal(t *testing.T) {
	r := NewRepo("https://example/r", "/work/r")
	if err := r.Acquire(); err == nil {
		t.Errorf("Acquire on an init repo should fail")
	}
	r.State = RepoUpdating
	if err := r.Acquire(); err == nil {
		t.Errorf("Acquire on an updating repo should fail")
	}
	r.State = RepoNormal
	if err := r.Acquire(); err != nil {
		t.Errorf("Acquire on a normal repo failed: %v", err)
	}
	if r.LockCount != 1 {
		t.Errorf("lock_count = %d, want 1", r.LockCount)
	}
}

func TestReleaseRejectsZeroCount(t *testing.T) {
	r := NewRepo("https://example/r", "/work/r")
	r.State = RepoNormal
	if _, err := r.Release(); err == nil {
		t.Errorf("Release on a zero lock_count should fail")
	}
}

func TestReleaseSignalsDeferredPullOnlyAtZero(t *testing.T) {
	r := NewRepo("https://example/r", "/work/r")
	r.State = RepoNormal
	r.Acquire()
	r.Acquire()
	r.UpdatePending = true

	start, err := r.Release()
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if start {
		t.Errorf("Release signaled a deferred pull while lock_count is still 1")
	}
	if !r.UpdatePending {
		t.Errorf("UpdatePending was cleared before lock_count reached 0")
	}

	start, err = r.Release()
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !start {
		t.Errorf("Release did not signal a deferred pull when lock_count reached 0")
	}
	if r.UpdatePending {
		t.Errorf("UpdatePending was not cleared once the deferred pull started")
	}
}

func TestRepoRegistryGetOrCreateSharesInstance(t *testing.T) {
	rr := NewRepoRegistry()
	a := rr.GetOrCreate("https://example/r", "/work/r")
	b := rr.GetOrCreate("https://example/r", "/work/other")
	if a != b {
		t.Errorf("GetOrCreate returned distinct repos for the same clone url")
	}
	if a.WorkDir != "/work/r" {
		t.Errorf("second GetOrCreate call overwrote WorkDir: got %q", a.WorkDir)
	}
}

func TestRepoRegistryGet(t *testing.T) {
	rr := NewRepoRegistry()
	if _, ok := rr.Get("https://example/missing"); ok {
		t.Errorf("Get found a repo that was never created")
	}
	rr.GetOrCreate("https://example/r", "/work/r")
	if _, ok := rr.Get("https://example/r"); !ok {
		t.Errorf("Get did not find a repo created via GetOrCreate")
	}
}
