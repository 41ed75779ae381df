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

/*
Package tracing sets up OpenTelemetry for bugjar.

A Provider installs a global tracer provider, so the spans the engine opens
with otel.Tracer around runs, pauses and commands are exported. It also
installs a global meter provider backed by the Prometheus exporter, so OTel
instruments appear next to the engine's native Prometheus collectors on the
/metrics endpoint.

	p, err := tracing.NewProvider(ctx, tracing.Config{
	    Enabled:     true,
	    Exporter:    tracing.ExporterStdout,
	    ServiceName: "bugjar",
	})
	if err != nil {
	    return err
	}
	defer p.Shutdown(context.Background())

When Enabled is false no exporter is created and the global providers are
left as no-ops.
*/
package tracing
