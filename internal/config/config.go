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

// Package config loads the static project configuration read once at
// process startup: an ordered list of projects, each referencing a clone
// URL, a desired container range, a Dockerfile path and a hooks directory.
// Repos are inferred by de-duplicating clone URLs.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectConfig is one entry in the static project list. Recipe optionally
// names a verification recipe committed in the repo, run against each fresh
// image before it reaches the container fleet.
type ProjectConfig struct {
	Name       string `yaml:"name"`
	CloneURL   string `yaml:"clone_url"`
	MinMax     [2]int `yaml:"container_range"`
	Dockerfile string `yaml:"dockerfile"`
	HookDir    string `yaml:"hook_dir"`
	Recipe     string `yaml:"recipe,omitempty"`
}

// Config is the full, validated startup configuration.
type Config struct {
	WorkDirRoot string          `yaml:"workdir_root"`
	AMQPURL     string          `yaml:"amqp_url,omitempty"`
	Projects    []ProjectConfig `yaml:"projects"`
}

// Load reads and validates the YAML configuration at path. A malformed or
// invalid configuration is fatal at startup.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := &Config{WorkDirRoot: "./workdirs"}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Projects) == 0 {
		return fmt.Errorf("no projects configured")
	}
	for i, p := range c.Projects {
		if p.Name == "" {
			return fmt.Errorf("project %d: name is required", i)
		}
		if p.CloneURL == "" {
			return fmt.Errorf("project %d (%s): clone_url is required", i, p.Name)
		}
		min, max := p.MinMax[0], p.MinMax[1]
		if min < 1 || max < min {
			return fmt.Errorf("project %d (%s): container_range must satisfy 1 <= min <= max, got [%d,%d]", i, p.Name, min, max)
		}
		if p.Dockerfile == "" {
			return fmt.Errorf("project %d (%s): dockerfile is required", i, p.Name)
		}
		if p.HookDir == "" {
			return fmt.Errorf("project %d (%s): hook_dir is required", i, p.Name)
		}
	}
	return nil
}

// WorkDirFor derives a repo's working directory from the index of the first
// project referencing it, keeping directory assignment stable across
// restarts as long as the project list order is stable.
func (c *Config) WorkDirFor(firstProjectIndex int) string {
	return filepath.Join(c.WorkDirRoot, fmt.Sprintf("repo-%d", firstProjectIndex))
}
