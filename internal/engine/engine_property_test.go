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

package engine

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/codepr/narwhal/internal/intake"
	"github.com/codepr/narwhal/internal/registry"
	"github.com/codepr/narwhal/internal/runtimeadapter"
	"github.com/codepr/narwhal/internal/vcsadapter"
)

// TestPropertyInvariantsHoldAcrossRandomEventSequences drives the engine
// through a long, randomized sequence of webhook and admin events (some
// carrying a new commit, some repeating the last one, interleaved with
// refreshes of either project) and checks the core invariants after every
// single event is enqueued, not just at quiescence: lock_count never goes
// negative, lock_count>0 only while the repo is normal, and each project's
// three container sets stay within the bounds its current state allows.
// Two projects share one repo so the run also continuously exercises the
// independence property: either project may be mid-rotation while the
// other sits normal, and neither one's bookkeeping may leak into the other's.
func TestPropertyInvariantsHoldAcrossRandomEventSequences(t *testing.T) {
	repos := registry.NewRepoRegistry()
	projects := registry.NewProjectRegistry()
	vcs := vcsadapter.NewFake()
	rt := runtimeadapter.NewFake()
	queue := intake.NewQueue(256, discardLogger())
	e := New(repos, projects, vcs, rt, queue, discardLogger())

	repo := repos.GetOrCreate("https://example/r", "/work/r")
	pA := registry.NewProject(0, "a", repo, "Dockerfile", "/hooks", "a", 1, 3)
	pB := registry.NewProject(1, "b", repo, "Dockerfile", "/hooks", "b", 1, 3)
	projects.Add(pA)
	projects.Add(pB)
	all := []*registry.Project{pA, pB}

	go e.Run()
	e.Start()

	checkInvariants := func() {
		t.Helper()
		rs := repo.Snapshot()
		if rs.LockCount < 0 {
			t.Fatalf("lock count went negative: %d", rs.LockCount)
		}
		if rs.LockCount > 0 && rs.State != registry.RepoNormal {
			t.Fatalf("lock count %d held while repo state is %s, want normal", rs.LockCount, rs.State)
		}
		for _, p := range all {
			// Read the container sets under the project's own lock; the
			// engine goroutine mutates them concurrently.
			p.Lock()
			state, image := p.State, p.Image
			active, starting, ending := len(p.Active), len(p.Starting), len(p.Ending)
			for h := range p.Active {
				if _, ok := p.Starting[h]; ok {
					p.Unlock()
					t.Fatalf("project %d: handle %s in both active and starting", p.Index, h)
				}
				if _, ok := p.Ending[h]; ok {
					p.Unlock()
					t.Fatalf("project %d: handle %s in both active and ending", p.Index, h)
				}
			}
			for h := range p.Starting {
				if _, ok := p.Ending[h]; ok {
					p.Unlock()
					t.Fatalf("project %d: handle %s in both starting and ending", p.Index, h)
				}
			}
			p.Unlock()

			switch state {
			case registry.ProjectNormal:
				if starting != 0 || ending != 0 {
					t.Fatalf("project %d normal with starting=%d ending=%d, want both 0", p.Index, starting, ending)
				}
				if active < p.MinContainers || active > p.MaxContainers {
					t.Fatalf("project %d normal with active=%d outside [%d,%d]", p.Index, active, p.MinContainers, p.MaxContainers)
				}
			case registry.ProjectUpdating:
				// The floor only applies once the project has a fleet to
				// rotate; the very first build (still carrying Image=="")
				// is filling from nothing, which has no lower bound.
				if image != "" && active+starting < p.MinContainers {
					t.Fatalf("project %d updating with active+starting=%d below minimum %d", p.Index, active+starting, p.MinContainers)
				}
			}
		}
	}

	rng := rand.New(rand.NewSource(1))
	commitN := 0

	for i := 0; i < 300; i++ {
		switch rng.Intn(3) {
		case 0:
			commitN++
			vcs.Advance(repo.CloneURL, fmt.Sprintf("c%d", commitN))
			queue.Push(intake.Webhook{CloneURL: repo.CloneURL})
		case 1:
			// Same-commit skip: a webhook that doesn't correspond to any new
			// commit must never push a project into updating.
			queue.Push(intake.Webhook{CloneURL: repo.CloneURL})
		case 2:
			queue.Push(intake.AdminRefresh{ProjectIndex: rng.Intn(len(all))})
		}
		checkInvariants()
		time.Sleep(time.Millisecond)
	}

	waitFor(t, 5*time.Second, func() bool {
		rs := repo.Snapshot()
		if rs.State != registry.RepoNormal || rs.LockCount != 0 || rs.UpdatePending {
			return false
		}
		for _, p := range all {
			ps := p.Snapshot()
			if ps.State != registry.ProjectNormal || ps.UpdatePending {
				return false
			}
		}
		return true
	})

	checkInvariants()
	for _, p := range all {
		ps := p.Snapshot()
		if ps.Active < ps.Min || ps.Active > ps.Max {
			t.Fatalf("project %d settled with active=%d outside [%d,%d]", ps.Index, ps.Active, ps.Min, ps.Max)
		}
	}
}

// TestPropertyLockCountNeverNegativeUnderRandomAcquireRelease exercises the
// lock-count protocol in isolation on a normal repo: a random sequence of
// Acquire calls and Release calls (a Release only while at least one lock is
// held) must always be accepted, and lock_count must track the number of
// held locks exactly without ever going negative.
func TestPropertyLockCountNeverNegativeUnderRandomAcquireRelease(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	repo := registry.NewRepo("https://example/r", "/work/r")
	repo.State = registry.RepoNormal

	held := 0
	for i := 0; i < 500; i++ {
		if rng.Intn(2) == 0 {
			if err := repo.Acquire(); err != nil {
				t.Fatalf("acquire unexpectedly rejected on a normal repo: %v", err)
			}
			held++
		} else if held > 0 {
			if _, err := repo.Release(); err != nil {
				t.Fatalf("release unexpectedly rejected with lock_count=%d: %v", held, err)
			}
			held--
		}
		if repo.LockCount < 0 {
			t.Fatalf("lock count went negative at step %d", i)
		}
		if repo.LockCount != held {
			t.Fatalf("lock count = %d, want %d at step %d", repo.LockCount, held, i)
		}
	}
}
