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

// Package runtimeadapter builds images and manages the lifecycle of the
// containers an image spawns: create, exec, list files and stop.
package runtimeadapter

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// handlePattern is the validity check for container handles: the reference
// implementation hands back 64 hex characters (a full container ID) and
// treats anything else as a malformed handle, per the invariant-violation
// error kind in the error handling design.
var handlePattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ValidHandle reports whether handle looks like a real container ID rather
// than a malformed adapter response.
func ValidHandle(handle string) bool {
	return handlePattern.MatchString(handle)
}

// Adapter is the runtime capability set: build an image, create/exec/stop a
// container, and run an ephemeral one-shot command.
type Adapter interface {
	// Build builds and tags an image from recipePath (relative to
	// contextDir) rooted in contextDir.
	Build(ctx context.Context, tag, recipePath, contextDir string) error

	// Create creates a detached container from tag and returns its handle.
	Create(ctx context.Context, tag string) (string, error)

	// Exec runs cmd inside the running container identified by handle and
	// returns its stdout. A non-zero exit status is a failure.
	Exec(ctx context.Context, handle string, cmd []string) (string, error)

	// Run runs cmd in a fresh, auto-removed container from tag and returns
	// its stdout.
	Run(ctx context.Context, tag string, cmd []string) (string, error)

	// Stop terminates and removes the container identified by handle.
	Stop(ctx context.Context, handle string) error

	// ListDir lists file names inside hookDir within a freshly created
	// container from tag. A missing directory is not an error: it yields an
	// empty listing.
	ListDir(ctx context.Context, tag, hookDir string) ([]string, error)
}

// DockerAdapter is the production Adapter, backed by the Docker Engine API.
type DockerAdapter struct {
	cli *client.Client
}

func NewDockerAdapter() (*DockerAdapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerAdapter{cli: cli}, nil
}

func (a *DockerAdapter) Build(ctx context.Context, tag, recipePath, contextDir string) error {
	buildCtx, err := tarDirectory(contextDir)
	if err != nil {
		return fmt.Errorf("tar build context %s: %w", contextDir, err)
	}
	resp, err := a.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: recipePath,
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("build %s: %w", tag, err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("read build output for %s: %w", tag, err)
	}
	return nil
}

func (a *DockerAdapter) Create(ctx context.Context, tag string) (string, error) {
	resp, err := a.cli.ContainerCreate(ctx, &container.Config{Image: tag}, nil, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("create container from %s: %w", tag, err)
	}
	if !ValidHandle(resp.ID) {
		return "", fmt.Errorf("runtime adapter returned malformed handle %q", resp.ID)
	}
	if err := a.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return "", fmt.Errorf("start container %s: %w", resp.ID, err)
	}
	return resp.ID, nil
}

func (a *DockerAdapter) Exec(ctx context.Context, handle string, cmd []string) (string, error) {
	created, err := a.cli.ContainerExecCreate(ctx, handle, types.ExecConfig{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("exec create in %s: %w", handle, err)
	}
	attach, err := a.cli.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return "", fmt.Errorf("exec attach in %s: %w", handle, err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return "", fmt.Errorf("read exec output in %s: %w", handle, err)
	}

	inspect, err := a.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return "", fmt.Errorf("exec inspect in %s: %w", handle, err)
	}
	if inspect.ExitCode != 0 {
		return stdout.String(), fmt.Errorf("exec %v in %s exited %d: %s", cmd, handle, inspect.ExitCode, stderr.String())
	}
	return stdout.String(), nil
}

func (a *DockerAdapter) Run(ctx context.Context, tag string, cmd []string) (string, error) {
	resp, err := a.cli.ContainerCreate(ctx, &container.Config{Image: tag, Cmd: cmd}, nil, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("create ephemeral container from %s: %w", tag, err)
	}
	defer a.cli.ContainerRemove(ctx, resp.ID, types.ContainerRemoveOptions{Force: true})

	if err := a.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return "", fmt.Errorf("start ephemeral container %s: %w", resp.ID, err)
	}
	statusCh, errCh := a.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return "", fmt.Errorf("wait for ephemeral container %s: %w", resp.ID, err)
		}
	case status := <-statusCh:
		if status.StatusCode != 0 {
			return "", fmt.Errorf("ephemeral container %s exited %d", resp.ID, status.StatusCode)
		}
	}
	out, err := a.cli.ContainerLogs(ctx, resp.ID, types.ContainerLogsOptions{ShowStdout: true})
	if err != nil {
		return "", fmt.Errorf("read logs of ephemeral container %s: %w", resp.ID, err)
	}
	defer out.Close()
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, out); err != nil {
		return "", fmt.Errorf("demux logs of ephemeral container %s: %w", resp.ID, err)
	}
	return stdout.String(), nil
}

func (a *DockerAdapter) Stop(ctx context.Context, handle string) error {
	if err := a.cli.ContainerStop(ctx, handle, container.StopOptions{}); err != nil {
		return fmt.Errorf("stop container %s: %w", handle, err)
	}
	if err := a.cli.ContainerRemove(ctx, handle, types.ContainerRemoveOptions{}); err != nil {
		return fmt.Errorf("remove container %s: %w", handle, err)
	}
	return nil
}

// ListDir creates a throwaway container from tag and lists hookDir. A
// missing directory is swallowed and reported as an empty listing, per the
// hook-discovery procedure in the component design.
func (a *DockerAdapter) ListDir(ctx context.Context, tag, hookDir string) ([]string, error) {
	out, err := a.Run(ctx, tag, []string{"ls", "-1", hookDir})
	if err != nil {
		// "directory missing" is swallowed: an absent hooks directory is a
		// valid, empty hook set, not a failure.
		return []string{}, nil
	}
	var names []string
	for _, line := range splitLines(out) {
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func tarDirectory(dir string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

var _ Adapter = (*DockerAdapter)(nil)
