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

package tracing

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
)

// Exporter names.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config holds observability configuration.
type Config struct {
	// Enabled controls whether spans are exported.
	Enabled bool

	// Exporter is ExporterStdout or ExporterOTLP.
	Exporter string

	// Endpoint is the OTLP/HTTP collector host:port.
	Endpoint string

	// Insecure disables TLS for the OTLP exporter.
	Insecure bool

	// ServiceName identifies this process in traces.
	ServiceName string

	// ServiceVersion is the application version.
	ServiceVersion string

	// SampleRate is the fraction of root spans to keep (0.0 - 1.0). Zero
	// means sample everything.
	SampleRate float64

	// Output receives stdout-exported spans. Defaults to os.Stderr so the
	// console keeps stdout.
	Output io.Writer

	// Registerer receives the OTel Prometheus collector. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Validate checks the exporter settings.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.Exporter {
	case ExporterStdout:
	case ExporterOTLP:
		if c.Endpoint == "" {
			return fmt.Errorf("otlp exporter requires an endpoint")
		}
	default:
		return fmt.Errorf("unknown exporter %q", c.Exporter)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample rate must be between 0 and 1, got %v", c.SampleRate)
	}
	return nil
}
