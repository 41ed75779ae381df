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

package conn

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// framesReceived counts frames decoded and queued
	framesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bugjar_conn_frames_received_total",
			Help: "Total frames decoded and queued by connection role",
		},
		[]string{"role"},
	)

	// framesDropped counts malformed frames discarded by the receive loop
	framesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bugjar_conn_frames_dropped_total",
			Help: "Total malformed frames dropped by connection role",
		},
		[]string{"role"},
	)

	framesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bugjar_conn_frames_sent_total",
			Help: "Total frames written by connection role",
		},
		[]string{"role"},
	)

	// sendFailures counts writes that failed and were swallowed
	sendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bugjar_conn_send_failures_total",
			Help: "Total failed frame writes by connection role",
		},
		[]string{"role"},
	)

	connectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bugjar_conn_active",
			Help: "Number of currently bound connections by role",
		},
		[]string{"role"},
	)
)
