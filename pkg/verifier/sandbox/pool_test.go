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
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/sidecar/pkg/config"
	"github.com/forgeworks/sidecar/pkg/verifier"
)

// fakeWorker speaks the wire protocol over in-process pipes, with the
// evaluation replaced by a scripted handler.
type fakeWorker struct {
	stdin  *io.PipeWriter
	stdout *io.PipeReader
}

func (w *fakeWorker) Stdin() io.Writer  { return w.stdin }
func (w *fakeWorker) Stdout() io.Reader { return w.stdout }
func (w *fakeWorker) Kill() {
	_ = w.stdin.Close()
	_ = w.stdout.Close()
}

// scriptedCommand returns a WorkerCommand whose workers answer each
// request via handle. A nil response from handle closes the pipes,
// simulating a crash.
func scriptedCommand(handle func(req Request) *Response) WorkerCommand {
	return func() (workerHandle, error) {
		inR, inW := io.Pipe()
		outR, outW := io.Pipe()

		go func() {
			if err := writeFrame(outW, Response{ID: readyID}); err != nil {
				return
			}
			for {
				var req Request
				if err := readFrame(inR, &req); err != nil {
					return
				}
				resp := handle(req)
				if resp == nil {
					_ = outW.Close()
					_ = inR.Close()
					return
				}
				resp.ID = req.ID
				if err := writeFrame(outW, *resp); err != nil {
					return
				}
			}
		}()

		return &fakeWorker{stdin: inW, stdout: outR}, nil
	}
}

func testConfig(workers int) config.VerificationConfig {
	cfg := config.VerificationConfig{
		Sandbox:        true,
		WorkerPoolSize: config.IntPtr(workers),
		CustomTimeout:  200,
		MaxQueueDepth:  2,
	}
	cfg.SetDefaults()
	return cfg
}

func customVerifier(name string) verifier.Verifier {
	return verifier.Verifier{
		Name: name,
		Type: verifier.TypeCustom,
		Spec: map[string]any{"filePath": "/opt/verifiers/" + name + ".so", "exportName": "Check"},
	}
}

func TestPoolDeliversVerdict(t *testing.T) {
	command := scriptedCommand(func(req Request) *Response {
		return &Response{Outcome: "warn", Message: "checked " + req.ToolName}
	})
	pool, err := NewPool(testConfig(1), command)
	require.NoError(t, err)
	defer pool.Close()

	outcome, message := pool.Run(context.Background(), customVerifier("check"),
		"fetch", nil, map[string]any{"text": "ok"}, verifier.RoleAny)
	assert.Equal(t, verifier.OutcomeWarn, outcome)
	assert.Equal(t, "checked fetch", message)
}

func TestPoolTimeoutDegradesPerRole(t *testing.T) {
	command := scriptedCommand(func(req Request) *Response {
		time.Sleep(2 * time.Second)
		return &Response{Outcome: "pass"}
	})
	pool, err := NewPool(testConfig(1), command)
	require.NoError(t, err)
	defer pool.Close()

	outcome, message := pool.Run(context.Background(), customVerifier("slow"),
		"write_file", nil, map[string]any{}, verifier.RoleWrite)
	assert.Equal(t, verifier.OutcomeBlock, outcome)
	assert.Equal(t, "timed out", message)
}

func TestPoolCrashDegradesAndReplacesWorker(t *testing.T) {
	first := true
	command := scriptedCommand(func(req Request) *Response {
		if first {
			first = false
			return nil // crash
		}
		return &Response{Outcome: "pass"}
	})
	pool, err := NewPool(testConfig(1), command)
	require.NoError(t, err)
	defer pool.Close()

	outcome, message := pool.Run(context.Background(), customVerifier("flaky"),
		"fetch", nil, map[string]any{}, verifier.RoleAny)
	assert.Equal(t, verifier.OutcomeWarn, outcome)
	assert.Equal(t, "crashed", message)

	// The replacement worker serves the next submission normally.
	outcome, _ = pool.Run(context.Background(), customVerifier("flaky"),
		"fetch", nil, map[string]any{}, verifier.RoleAny)
	assert.Equal(t, verifier.OutcomePass, outcome)
}

func TestPoolQueueFullRejectsImmediately(t *testing.T) {
	release := make(chan struct{})
	command := scriptedCommand(func(req Request) *Response {
		<-release
		return &Response{Outcome: "pass"}
	})

	cfg := testConfig(1)
	cfg.CustomTimeout = 10_000
	pool, err := NewPool(cfg, command)
	require.NoError(t, err)
	defer func() {
		close(release)
		pool.Close()
	}()

	// One inflight plus maxQueueDepth queued saturates the pool.
	started := make(chan struct{}, 8)
	for i := 0; i < 1+cfg.MaxQueueDepth; i++ {
		go func() {
			started <- struct{}{}
			pool.Run(context.Background(), customVerifier("busy"),
				"fetch", nil, map[string]any{}, verifier.RoleAny)
		}()
	}
	for i := 0; i < 1+cfg.MaxQueueDepth; i++ {
		<-started
	}
	time.Sleep(100 * time.Millisecond)

	outcome, message := pool.Run(context.Background(), customVerifier("late"),
		"write_file", nil, map[string]any{}, verifier.RoleWrite)
	assert.Equal(t, verifier.OutcomeBlock, outcome)
	assert.Contains(t, message, "queue")
}

func TestPoolClosedRejectsSubmissions(t *testing.T) {
	command := scriptedCommand(func(req Request) *Response {
		return &Response{Outcome: "pass"}
	})
	pool, err := NewPool(testConfig(1), command)
	require.NoError(t, err)
	require.NoError(t, pool.Close())

	outcome, message := pool.Run(context.Background(), customVerifier("check"),
		"fetch", nil, map[string]any{}, verifier.RoleAny)
	assert.Equal(t, verifier.OutcomeWarn, outcome)
	assert.Contains(t, message, "shut down")
}

func TestPoolCancelledSubmitterUnblocks(t *testing.T) {
	release := make(chan struct{})
	command := scriptedCommand(func(req Request) *Response {
		<-release
		return &Response{Outcome: "pass"}
	})

	cfg := testConfig(1)
	cfg.CustomTimeout = 10_000
	pool, err := NewPool(cfg, command)
	require.NoError(t, err)
	defer func() {
		close(release)
		pool.Close()
	}()

	// Occupy the only worker.
	go pool.Run(context.Background(), customVerifier("busy"),
		"fetch", nil, map[string]any{}, verifier.RoleAny)
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome, message := pool.Run(ctx, customVerifier("waiting"),
		"fetch", nil, map[string]any{}, verifier.RoleAny)
	assert.Equal(t, verifier.OutcomeWarn, outcome)
	assert.Equal(t, "cancelled", message)
}

func TestWorkerRejectsRelativePath(t *testing.T) {
	loader := newModuleLoader()
	resp := loader.evaluate(Request{
		ID:           "r1",
		VerifierPath: "data:text/plain;base64,AAAA",
		ExportName:   "Check",
	})
	assert.Equal(t, "warn", resp.Outcome)
	assert.Equal(t, "Invalid verifier path", resp.Message)
}

func TestWorkerMissingModuleWarns(t *testing.T) {
	loader := newModuleLoader()
	resp := loader.evaluate(Request{
		ID:           "r2",
		VerifierPath: "/nonexistent/verifier.so",
		ExportName:   "Check",
	})
	assert.Equal(t, "warn", resp.Outcome)
	assert.NotEmpty(t, resp.Message)
}

func TestProtocolRoundTrip(t *testing.T) {
	r, w := io.Pipe()
	req := Request{
		ID:           "abc",
		VerifierPath: "/opt/verifiers/check.so",
		ExportName:   "Check",
		ToolName:     "fetch",
		Args:         map[string]any{"url": "https://example.com"},
		Result:       map[string]any{"text": "ok"},
	}

	go func() {
		_ = writeFrame(w, req)
	}()

	var decoded Request
	require.NoError(t, readFrame(r, &decoded))
	assert.Equal(t, req, decoded)
}
