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

package verifier

import (
	"context"
	"log/slog"
	"sort"
)

// CustomRunner executes a custom verifier module. Implementations own
// the timeout, crash and queue-full handling: the returned outcome is
// already degraded per role where delivery failed.
type CustomRunner interface {
	Run(ctx context.Context, v Verifier, toolName string, args, result map[string]any, role Role) (Outcome, string)
}

// Pipeline is the per-request verifier index. It is built from a
// snapshot of the bindings table at the start of each request, so admin
// edits mid-request do not change which verifiers run.
type Pipeline struct {
	byTool   map[string][]Verifier
	wildcard []Verifier
	runner   CustomRunner
}

// NewPipeline indexes verifiers by bound tool. Bindings that name an
// unknown verifier are skipped.
func NewPipeline(verifiers []Verifier, bindings []Binding, runner CustomRunner) *Pipeline {
	byName := make(map[string]Verifier, len(verifiers))
	for _, v := range verifiers {
		byName[v.Name] = v
	}

	p := &Pipeline{byTool: make(map[string][]Verifier), runner: runner}
	for _, b := range bindings {
		v, ok := byName[b.VerifierName]
		if !ok {
			slog.Warn("binding references unknown verifier, skipping",
				"verifier", b.VerifierName, "tool", b.ToolName)
			continue
		}
		if b.ToolName == WildcardTool {
			p.wildcard = append(p.wildcard, v)
		} else {
			p.byTool[b.ToolName] = append(p.byTool[b.ToolName], v)
		}
	}
	return p
}

// For returns the verifiers that apply to a tool, in execution order:
// ascending ACIRU key, name as the stable tiebreak.
func (p *Pipeline) For(toolName string) []Verifier {
	bound := p.byTool[toolName]
	applicable := make([]Verifier, 0, len(bound)+len(p.wildcard))
	applicable = append(applicable, bound...)
	applicable = append(applicable, p.wildcard...)

	sort.SliceStable(applicable, func(i, j int) bool {
		if applicable[i].Order != applicable[j].Order {
			return applicable[i].Order < applicable[j].Order
		}
		return applicable[i].Name < applicable[j].Name
	})
	return applicable
}

// Run executes every applicable verifier against one tool result. A
// block aborts the remaining verifiers; its evaluation is the last
// element of the returned slice. Evaluator failures degrade per role
// rather than surfacing as errors.
func (p *Pipeline) Run(ctx context.Context, toolName string, role Role, args, result map[string]any) []Evaluation {
	evaluations := []Evaluation{}
	for _, v := range p.For(toolName) {
		if ctx.Err() != nil {
			return evaluations
		}

		eval := p.runOne(ctx, v, toolName, role, args, result)
		evaluations = append(evaluations, eval)
		if eval.Outcome == OutcomeBlock {
			break
		}
	}
	return evaluations
}

func (p *Pipeline) runOne(ctx context.Context, v Verifier, toolName string, role Role, args, result map[string]any) Evaluation {
	eval := Evaluation{Verifier: v.Name}

	switch v.Type {
	case TypeSchema:
		eval.Outcome, eval.Message = evalSchema(v.Spec, result)
	case TypePattern:
		outcome, message, err := evalPattern(v.Spec, result)
		if err != nil {
			slog.Warn("pattern verifier failed", "verifier", v.Name, "tool", toolName, "error", err)
			eval.Outcome = role.Degraded()
			eval.Message = err.Error()
		} else {
			eval.Outcome = outcome
			eval.Message = message
		}
	case TypeCustom:
		if p.runner == nil {
			eval.Outcome = role.Degraded()
			eval.Message = "custom verifier execution is not available"
		} else {
			eval.Outcome, eval.Message = p.runner.Run(ctx, v, toolName, args, result, role)
		}
	default:
		slog.Warn("unknown verifier type", "verifier", v.Name, "type", v.Type)
		eval.Outcome = role.Degraded()
		eval.Message = "unknown verifier type"
	}
	return eval
}
