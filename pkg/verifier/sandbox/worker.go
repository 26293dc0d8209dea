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
	"errors"
	"fmt"
	"io"
)

// WorkerMain is the entry point of the verifier-worker subcommand. It
// announces readiness, then serves one submission at a time from in
// until the pipe closes. It never exits on a bad submission; only a
// broken pipe ends the loop.
func WorkerMain(in io.Reader, out io.Writer) error {
	if err := writeFrame(out, Response{ID: readyID}); err != nil {
		return fmt.Errorf("failed to announce readiness: %w", err)
	}

	loader := newModuleLoader()
	for {
		var req Request
		if err := readFrame(in, &req); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("failed to read submission: %w", err)
		}

		resp := loader.evaluate(req)
		if err := writeFrame(out, resp); err != nil {
			return fmt.Errorf("failed to reply to submission %s: %w", req.ID, err)
		}
	}
}
