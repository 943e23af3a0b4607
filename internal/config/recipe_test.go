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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadBuildRecipeDefaultsImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recipe.yml")
	if err := os.WriteFile(path, []byte("name: web\nsteps:\n  - name: build\n    command: make\n"), 0o644); err != nil {
		t.Fatalf("write recipe: %v", err)
	}
	recipe, err := LoadBuildRecipe(path)
	if err != nil {
		t.Fatalf("LoadBuildRecipe: %v", err)
	}
	if recipe.Image != "ubuntu" {
		t.Errorf("Image = %q, want default ubuntu", recipe.Image)
	}
	if len(recipe.Steps) != 1 || recipe.Steps[0].Cmd != "make" {
		t.Errorf("Steps = %#v, want one step with command make", recipe.Steps)
	}
}

func TestLoadBuildRecipeHonorsExplicitImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recipe.yml")
	if err := os.WriteFile(path, []byte("name: web\nimage: golang:1.21\n"), 0o644); err != nil {
		t.Fatalf("write recipe: %v", err)
	}
	recipe, err := LoadBuildRecipe(path)
	if err != nil {
		t.Fatalf("LoadBuildRecipe: %v", err)
	}
	if recipe.Image != "golang:1.21" {
		t.Errorf("Image = %q, want golang:1.21", recipe.Image)
	}
}
