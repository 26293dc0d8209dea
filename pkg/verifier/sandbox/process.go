// Copyright 2026 Forge Works
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sandbox

import (
	"fmt"
	"io"
	"os"
	"os/exec"
)

// workerHandle is one running worker's pipe ends plus a kill switch.
type workerHandle interface {
	Stdin() io.Writer
	Stdout() io.Reader
	Kill()
}

type processHandle struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (h *processHandle) Stdin() io.Writer  { return h.stdin }
func (h *processHandle) Stdout() io.Reader { return h.stdout }

func (h *processHandle) Kill() {
	_ = h.stdin.Close()
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
	// Reap the child so it does not linger as a zombie.
	_ = h.cmd.Wait()
}

// DefaultWorkerCommand re-executes the current binary with the
// verifier-worker subcommand. Worker stderr passes through to the
// server's stderr so plugin load failures stay visible in the logs.
func DefaultWorkerCommand() (workerHandle, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("cannot locate own executable: %w", err)
	}

	cmd := exec.Command(exe, "verifier-worker")
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker process: %w", err)
	}

	return &processHandle{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}
