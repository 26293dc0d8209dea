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
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgeworks/sidecar/pkg/config"
	"github.com/forgeworks/sidecar/pkg/verifier"
)

var errCallTimeout = errors.New("timed out")

type verdict struct {
	outcome verifier.Outcome
	message string
}

type submission struct {
	req  Request
	role verifier.Role
	done chan verdict
}

// Pool runs custom verifiers in a fixed set of worker processes. The
// pending queue is FIFO and process-wide; idle workers pull from it in
// the order they become free. A hostile verifier can pin at most one
// worker per submission: timeouts kill and replace the worker process.
type Pool struct {
	cfg     config.VerificationConfig
	command WorkerCommand

	queue chan *submission
	done  chan struct{}
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// WorkerCommand starts one worker process and returns its pipe ends and
// a kill/wait handle. Factored out so tests can substitute a local pipe
// pair for a real child process.
type WorkerCommand func() (workerHandle, error)

// NewPool starts cfg.PoolSize() workers via command (DefaultWorkerCommand
// in production).
func NewPool(cfg config.VerificationConfig, command WorkerCommand) (*Pool, error) {
	if command == nil {
		command = DefaultWorkerCommand
	}
	p := &Pool{
		cfg:     cfg,
		command: command,
		queue:   make(chan *submission, cfg.MaxQueueDepth),
		done:    make(chan struct{}),
	}

	size := cfg.PoolSize()
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}
	workerGauge.Set(float64(size))
	return p, nil
}

// Run submits one custom verifier evaluation and blocks for its verdict.
// Queue-full, timeout, crash, shutdown and cancellation all resolve to
// the role's degraded outcome instead of an error.
func (p *Pool) Run(ctx context.Context, v verifier.Verifier, toolName string, args, result map[string]any, role verifier.Role) (verifier.Outcome, string) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return role.Degraded(), "worker pool is shut down"
	}

	path, _ := v.Spec["filePath"].(string)
	export, _ := v.Spec["exportName"].(string)
	sub := &submission{
		req: Request{
			ID:           uuid.NewString(),
			VerifierPath: path,
			ExportName:   export,
			ToolName:     toolName,
			Args:         args,
			Result:       result,
		},
		role: role,
		done: make(chan verdict, 1),
	}

	select {
	case p.queue <- sub:
		queueGauge.Inc()
	default:
		executionCounter.WithLabelValues("rejected").Inc()
		return role.Degraded(), "verifier queue is full"
	}

	select {
	case verdict := <-sub.done:
		executionCounter.WithLabelValues(string(verdict.outcome)).Inc()
		return verdict.outcome, verdict.message
	case <-ctx.Done():
		executionCounter.WithLabelValues("cancelled").Inc()
		return role.Degraded(), "cancelled"
	case <-p.done:
		executionCounter.WithLabelValues("shutdown").Inc()
		return role.Degraded(), "worker pool is shut down"
	}
}

// Close stops the pool. Queued submissions resolve degraded; inflight
// calls resolve degraded when their worker is killed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)
	p.wg.Wait()

	// Drain anything still queued so submitters unblock with a verdict.
	for {
		select {
		case sub := <-p.queue:
			queueGauge.Dec()
			sub.done <- verdict{outcome: sub.role.Degraded(), message: "worker pool is shut down"}
		default:
			workerGauge.Set(0)
			return nil
		}
	}
}

func (p *Pool) workerLoop(id int) {
	defer p.wg.Done()

	log := slog.With("worker", id)
	var proc workerHandle

	defer func() {
		if proc != nil {
			proc.Kill()
		}
	}()

	for {
		var sub *submission
		select {
		case <-p.done:
			return
		case sub = <-p.queue:
			queueGauge.Dec()
		}

		if proc == nil {
			started, err := p.startWorker(log)
			if err != nil {
				log.Error("failed to start verifier worker", "error", err)
				sub.done <- verdict{outcome: sub.role.Degraded(), message: "crashed"}
				continue
			}
			proc = started
		}

		busyGauge.Inc()
		resp, err := p.call(proc, sub.req)
		busyGauge.Dec()

		switch {
		case err == nil:
			sub.done <- verdict{outcome: verifier.Outcome(resp.Outcome), message: resp.Message}
		case errors.Is(err, errCallTimeout):
			log.Warn("verifier call timed out, replacing worker",
				"verifier", sub.req.VerifierPath, "tool", sub.req.ToolName)
			proc.Kill()
			proc = nil
			sub.done <- verdict{outcome: sub.role.Degraded(), message: "timed out"}
		default:
			log.Warn("verifier worker crashed, replacing worker", "error", err)
			proc.Kill()
			proc = nil
			sub.done <- verdict{outcome: sub.role.Degraded(), message: "crashed"}
		}
	}
}

// startWorker launches a worker process and waits for its ready frame.
func (p *Pool) startWorker(log *slog.Logger) (workerHandle, error) {
	proc, err := p.command()
	if err != nil {
		return nil, err
	}

	ready := make(chan error, 1)
	go func() {
		var resp Response
		if err := readFrame(proc.Stdout(), &resp); err != nil {
			ready <- err
			return
		}
		if resp.ID != readyID {
			ready <- fmt.Errorf("unexpected first frame %q", resp.ID)
			return
		}
		ready <- nil
	}()

	startTimeout := time.Duration(p.cfg.WorkerStartTimeoutMs) * time.Millisecond
	select {
	case err := <-ready:
		if err != nil {
			proc.Kill()
			return nil, fmt.Errorf("worker handshake failed: %w", err)
		}
		log.Debug("verifier worker started")
		return proc, nil
	case <-time.After(startTimeout):
		proc.Kill()
		return nil, fmt.Errorf("worker did not become ready within %s", startTimeout)
	}
}

// call sends one request and waits for its reply, bounded by the custom
// verifier timeout. A timeout leaves the pipe in an unknown state, so
// the caller must discard the worker afterwards.
func (p *Pool) call(proc workerHandle, req Request) (Response, error) {
	if err := writeFrame(proc.Stdin(), req); err != nil {
		return Response{}, fmt.Errorf("failed to submit to worker: %w", err)
	}

	type result struct {
		resp Response
		err  error
	}
	replied := make(chan result, 1)
	go func() {
		var resp Response
		err := readFrame(proc.Stdout(), &resp)
		replied <- result{resp: resp, err: err}
	}()

	timeout := time.Duration(p.cfg.CustomTimeout) * time.Millisecond
	select {
	case r := <-replied:
		if r.err != nil {
			return Response{}, fmt.Errorf("worker reply failed: %w", r.err)
		}
		if r.resp.ID != req.ID {
			return Response{}, fmt.Errorf("worker replied to %q, expected %q", r.resp.ID, req.ID)
		}
		if !verifier.ValidOutcome(r.resp.Outcome) {
			return Response{}, fmt.Errorf("worker returned invalid outcome %q", r.resp.Outcome)
		}
		return r.resp, nil
	case <-time.After(timeout):
		return Response{}, errCallTimeout
	}
}
