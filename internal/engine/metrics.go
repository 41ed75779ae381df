// Copyright 2025 Tom Barlow
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

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	// commandsTotal counts handled commands by kind and transition.
	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bugjar_engine_commands_total",
			Help: "Commands handled by the session engine by command and outcome",
		},
		[]string{"command", "outcome"},
	)

	// pausesTotal counts stops by the event that caused them.
	pausesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bugjar_engine_pauses_total",
			Help: "Times the program was paused, by reason",
		},
		[]string{"reason"},
	)

	pauseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bugjar_engine_pause_duration_seconds",
			Help:    "Time spent paused waiting for controller commands",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)

	// controllersBound counts accepted controller connections.
	controllersBound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bugjar_engine_controllers_bound_total",
			Help: "Controller connections accepted by the session engine",
		},
	)

	// launches counts program runs by why they started.
	launches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bugjar_engine_launches_total",
			Help: "Program launches by cause (start, finished, requested, postmortem)",
		},
		[]string{"cause"},
	)

	breakpointsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bugjar_engine_breakpoints",
			Help: "Breakpoints currently in the session table",
		},
	)
)

// runDuration is an OTel instrument; it is exported through the meter
// provider installed by the tracing package and is a no-op otherwise.
var runDuration, _ = otel.Meter(tracerName).Float64Histogram(
	"bugjar.engine.run.duration",
	metric.WithUnit("s"),
	metric.WithDescription("Wall time of one program run, launch to exit or unwind"),
)
