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
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BuildRecipe is the verification recipe a repo may commit alongside its
// Dockerfile: a named list of commands the engine runs in ephemeral
// containers from each freshly built image, failing the build when any
// step fails.
type BuildRecipe struct {
	Name  string            `yaml:"name"`
	Image string            `yaml:"image"`
	Env   map[string]string `yaml:"env,omitempty"`
	Steps []struct {
		Name         string   `yaml:"name"`
		Dependencies []string `yaml:"dependencies,omitempty"`
		Cmd          string   `yaml:"command"`
	} `yaml:"steps"`
}

// LoadBuildRecipe reads a recipe from path, defaulting Image to "ubuntu"
// when the document omits it.
func LoadBuildRecipe(path string) (*BuildRecipe, error) {
	recipe := &BuildRecipe{Image: "ubuntu"}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read build recipe %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, recipe); err != nil {
		return nil, fmt.Errorf("parse build recipe %s: %w", path, err)
	}
	return recipe, nil
}
