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

// Package sandbox executes custom verifier modules out of process.
//
// A fixed pool of child processes (the server re-executed with the
// verifier-worker subcommand) evaluates one submission at a time over a
// pipe protocol: each message is a 4-byte big-endian length followed by
// a JSON document. Custom verifier modules are Go plugins built with
// -buildmode=plugin that export
//
//	func(toolName string, args, result map[string]any) (outcome, message string)
//
// under the configured export name.
package sandbox

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// maxFrameSize bounds a single protocol message. Tool results larger
// than this fail the submission rather than the process.
const maxFrameSize = 8 << 20

// readyID is the reserved response ID a worker emits once it is able to
// accept submissions.
const readyID = "__ready__"

// Request asks a worker to evaluate one custom verifier.
type Request struct {
	ID           string         `json:"id"`
	VerifierPath string         `json:"verifierPath"`
	ExportName   string         `json:"exportName"`
	ToolName     string         `json:"toolName"`
	Args         map[string]any `json:"args"`
	Result       map[string]any `json:"result"`
}

// Response carries the verdict back to the parent.
type Response struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
	Message string `json:"message,omitempty"`
}

// writeFrame encodes v as JSON behind a length prefix.
func writeFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if len(payload) > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit", len(payload))
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("failed to write frame prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write frame payload: %w", err)
	}
	return nil
}

// readFrame decodes the next length-prefixed JSON message into v.
func readFrame(r io.Reader, v any) error {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return err
	}
	size := binary.BigEndian.Uint32(prefix[:])
	if size > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("truncated frame: %w", err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("malformed frame: %w", err)
	}
	return nil
}
