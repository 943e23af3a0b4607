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

// Command narwhald is the continuous deployment control plane process: it
// loads the static project configuration, builds both registries, starts
// the orchestration engine loop and the two HTTP surfaces (public webhook
// receiver, private admin/status), and wires completion events from the VCS
// and runtime adapters back into the engine's single intake queue.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/codepr/narwhal/internal/adminserver"
	"github.com/codepr/narwhal/internal/config"
	"github.com/codepr/narwhal/internal/engine"
	"github.com/codepr/narwhal/internal/intake"
	"github.com/codepr/narwhal/internal/registry"
	"github.com/codepr/narwhal/internal/runtimeadapter"
	"github.com/codepr/narwhal/internal/status"
	"github.com/codepr/narwhal/internal/vcsadapter"
	"github.com/codepr/narwhal/internal/webhookserver"
)

var (
	configPath       string
	webhookAddr      string
	adminAddr        string
	webhookSecret    string
	queueCapacity    int
	readinessRetries int
)

func main() {
	flag.StringVar(&configPath, "config", "narwhal.yml", "Project configuration path")
	flag.StringVar(&webhookAddr, "webhook-addr", ":28919", "Public webhook server listening address")
	flag.StringVar(&adminAddr, "admin-addr", ":28920", "Private admin/status server listening address")
	flag.StringVar(&webhookSecret, "webhook-secret", "", "Shared secret used to validate webhook payloads")
	flag.IntVar(&queueCapacity, "queue-capacity", 256, "Intake queue buffer size")
	flag.IntVar(&readinessRetries, "readiness-retries", engine.DefaultReadinessRetryBudget, "Container start retries per rotation before aborting the cycle")
	flag.Parse()

	logger := log.New(os.Stdout, "[narwhald] ", log.LstdFlags)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("configuration error: %v", err)
	}

	repos := registry.NewRepoRegistry()
	projects := registry.NewProjectRegistry()

	for i, pc := range cfg.Projects {
		repo := repos.GetOrCreate(pc.CloneURL, cfg.WorkDirFor(firstIndexFor(cfg, pc.CloneURL)))
		project := registry.NewProject(i, pc.Name, repo, pc.Dockerfile, pc.HookDir, pc.Name, pc.MinMax[0], pc.MinMax[1])
		project.CIRecipePath = pc.Recipe
		projects.Add(project)
	}

	vcs := vcsadapter.NewGitAdapter()
	runtime, err := runtimeadapter.NewDockerAdapter()
	if err != nil {
		logger.Fatalf("docker adapter: %v", err)
	}

	queue := intake.NewQueue(queueCapacity, logger)
	amqpForwarder := intake.NewAMQPForwarder(cfg.AMQPURL, "narwhal.webhooks", logger)

	eng := engine.New(repos, projects, vcs, runtime, queue, logger)
	eng.SetReadinessRetryBudget(readinessRetries)

	reporter := status.NewReporter(repos, projects)
	admin := adminserver.New(adminAddr, logger, reporter, queue, eng)
	webhook := webhookserver.New(webhookAddr, logger, webhookSecret, queue, amqpForwarder)

	go func() {
		if err := admin.Run(); err != nil {
			logger.Fatalf("admin server: %v", err)
		}
	}()
	go func() {
		if err := webhook.Run(); err != nil {
			logger.Fatalf("webhook server: %v", err)
		}
	}()

	eng.Start()
	eng.Run()
}

// firstIndexFor returns the index of the first project in cfg referencing
// cloneURL; repos shared by several projects take their working directory
// from the earliest one.
func firstIndexFor(cfg *config.Config, cloneURL string) int {
	for i, pc := range cfg.Projects {
		if pc.CloneURL == cloneURL {
			return i
		}
	}
	return 0
}
