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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	workerGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sidecar_verifier_workers",
		Help: "Configured size of the verifier worker pool.",
	})

	busyGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sidecar_verifier_busy_workers",
		Help: "Workers currently evaluating a custom verifier.",
	})

	queueGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sidecar_verifier_queue_depth",
		Help: "Submissions waiting for an idle worker.",
	})

	executionCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sidecar_verifier_executions_total",
		Help: "Custom verifier submissions by resolution.",
	}, []string{"outcome"})
)
