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
	"path/filepath"
	"plugin"
	"sync"
)

// VerifierFunc is the signature a custom verifier plugin must export.
type VerifierFunc func(toolName string, args, result map[string]any) (outcome, message string)

// moduleLoader caches loaded plugin symbols keyed by (path, export).
// Plugins cannot be unloaded, so the cache only grows; a redeployed
// verifier needs a new file path.
type moduleLoader struct {
	mu    sync.Mutex
	cache map[string]VerifierFunc
}

func newModuleLoader() *moduleLoader {
	return &moduleLoader{cache: make(map[string]VerifierFunc)}
}

func (l *moduleLoader) load(path, export string) (VerifierFunc, error) {
	key := path + "\x00" + export

	l.mu.Lock()
	defer l.mu.Unlock()
	if fn, ok := l.cache[key]; ok {
		return fn, nil
	}

	mod, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load verifier module %s: %w", path, err)
	}
	sym, err := mod.Lookup(export)
	if err != nil {
		return nil, fmt.Errorf("verifier module %s has no export %q: %w", path, export, err)
	}
	fn, ok := sym.(func(string, map[string]any, map[string]any) (string, string))
	if !ok {
		return nil, fmt.Errorf("export %q in %s has the wrong signature", export, path)
	}

	l.cache[key] = fn
	return fn, nil
}

// evaluate runs one custom verifier to completion in this process. The
// caller owns any timeout. Panics inside the verifier and load failures
// become warnings, matching the protocol's exception handling.
func (l *moduleLoader) evaluate(req Request) (resp Response) {
	resp = Response{ID: req.ID, Outcome: "pass"}
	defer func() {
		if r := recover(); r != nil {
			resp.Outcome = "warn"
			resp.Message = fmt.Sprintf("%v", r)
		}
	}()

	if !filepath.IsAbs(req.VerifierPath) {
		return Response{ID: req.ID, Outcome: "warn", Message: "Invalid verifier path"}
	}

	fn, err := l.load(req.VerifierPath, req.ExportName)
	if err != nil {
		return Response{ID: req.ID, Outcome: "warn", Message: err.Error()}
	}

	outcome, message := fn(req.ToolName, req.Args, req.Result)
	switch outcome {
	case "pass", "warn", "block":
		return Response{ID: req.ID, Outcome: outcome, Message: message}
	default:
		return Response{ID: req.ID, Outcome: "warn",
			Message: fmt.Sprintf("verifier returned invalid outcome %q", outcome)}
	}
}
