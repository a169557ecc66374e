// Copyright 2021 DocPipe Authors.
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

package aggregations

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "docpipe"
	subsystem = "pipelines"
)

// Metrics represents pipeline metrics.
type Metrics struct {
	runs      *prometheus.CounterVec
	documents prometheus.Counter
}

// NewMetrics creates new pipeline metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "runs_total",
				Help:      "Total number of pipeline runs.",
			},
			[]string{"result"},
		),
		documents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "documents_total",
				Help:      "Total number of documents emitted by pipelines.",
			},
		),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.runs.Describe(ch)
	m.documents.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.runs.Collect(ch)
	m.documents.Collect(ch)
}

// observeRun records a finished pipeline run.
func (m *Metrics) observeRun(emitted int, err error) {
	if m == nil {
		return
	}

	result := "ok"
	if err != nil {
		result = ErrorCodeOf(err).String()
	}

	m.runs.WithLabelValues(result).Inc()
	m.documents.Add(float64(emitted))
}

// check interfaces
var (
	_ prometheus.Collector = (*Metrics)(nil)
)
