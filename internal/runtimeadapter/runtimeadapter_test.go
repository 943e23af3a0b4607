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
	"strings"
	"testing"
)

func TestValidHandle(t *testing.T) {
	valid := strings.Repeat("a", 64)
	if !ValidHandle(valid) {
		t.Errorf("ValidHandle(%q) = false, want true", valid)
	}
	cases := []string{
		"",
		"not-hex-at-all",
		strings.Repeat("a", 63),
		strings.Repeat("a", 65),
		strings.Repeat("g", 64),
	}
	for _, c := range cases {
		if ValidHandle(c) {
			t.Errorf("ValidHandle(%q) = true, want false", c)
		}
	}
}

func TestFakeCreateReturnsValidHandle(t *testing.T) {
	f := NewFake()
	handle, err := f.Create(context.Background(), "myimage:latest")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !ValidHandle(handle) {
		t.Errorf("Fake.Create returned a malformed handle %q", handle)
	}
}

func TestFakeListDirMissingDirectoryIsEmpty(t *testing.T) {
	f := NewFake()
	hooks, err := f.ListDir(context.Background(), "myimage:latest", "/opt/hooks")
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	if len(hooks) != 0 {
		t.Errorf("ListDir on an image with no configured hooks = %v, want empty", hooks)
	}
}

func TestFakeListDirReturnsConfiguredHooks(t *testing.T) {
	f := NewFake()
	f.Hooks["myimage:latest"] = []string{"wait_ready", "wait_drain"}
	hooks, err := f.ListDir(context.Background(), "myimage:latest", "/opt/hooks")
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	if len(hooks) != 2 {
		t.Fatalf("ListDir = %v, want 2 hooks", hooks)
	}
}

func TestFakeExecFailureIsOneShot(t *testing.T) {
	f := NewFake()
	handle, _ := f.Create(context.Background(), "myimage:latest")
	f.FailExec[handle] = true

	if _, err := f.Exec(context.Background(), handle, []string{"wait_ready"}); err == nil {
		t.Fatalf("Exec did not fail on the configured failure")
	}
	if _, err := f.Exec(context.Background(), handle, []string{"wait_ready"}); err != nil {
		t.Fatalf("Exec failed a second time: %v, want the failure to be one-shot", err)
	}
}
