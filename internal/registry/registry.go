// Copyright 2017 Kumina, https://kumina.nl/
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package registry keeps the gauges the exporter has created for the lifetime
// of the process. A metric name is bound to one GaugeVec and one ordered list
// of label names the first time it is seen. Later cycles only update it.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/model"

	"github.com/nanoandrew4/openstack_libvirt_exporter/internal/metric"
)

var (
	// ErrLabelMismatch is returned when a write does not use the label names
	// the metric was created with.
	ErrLabelMismatch = errors.New("label names do not match metric")
	// ErrInvalidName is returned for metric or label names Prometheus rejects.
	ErrInvalidName = errors.New("invalid metric or label name")
)

type entry struct {
	gauge      *prometheus.GaugeVec
	labelNames []string
}

// Registry is a prometheus.Collector over every gauge created so far.
// Upsert is called from the collection loop while Collect is called from
// HTTP handlers.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

var _ prometheus.Collector = (*Registry)(nil)

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Upsert writes samples to the gauge called name, creating it with labelNames
// on first use. Label combinations not present in samples keep their previous
// value.
func (r *Registry) Upsert(name string, labelNames []string, samples []metric.Sample) error {
	for _, s := range samples {
		if !s.Labels.SameNames(labelNames) {
			return errors.Wrapf(ErrLabelMismatch, "%s: sample labels %v, declared %v",
				name, s.Labels.Names(), labelNames)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		if err := validate(name, labelNames); err != nil {
			return err
		}
		e = &entry{
			gauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: name,
				Help: help(name),
			}, labelNames),
			labelNames: append([]string(nil), labelNames...),
		}
		r.entries[name] = e
	} else if !sameNames(e.labelNames, labelNames) {
		return errors.Wrapf(ErrLabelMismatch, "%s: got %v, created with %v", name, labelNames, e.labelNames)
	}

	for _, s := range samples {
		g, err := e.gauge.GetMetricWithLabelValues(s.Labels.Values()...)
		if err != nil {
			return errors.Wrapf(err, "%s%s", name, s.Labels)
		}
		g.Set(s.Value)
	}
	return nil
}

// Describe sends nothing: the set of metrics grows at runtime, so the
// registry is an unchecked collector.
func (r *Registry) Describe(chan<- *prometheus.Desc) {}

// Collect sends the current value of every series.
func (r *Registry) Collect(ch chan<- prometheus.Metric) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		e.gauge.Collect(ch)
	}
}

// Len returns the number of metric names created.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Names returns the metric names created, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LabelNames returns the label names name was created with.
func (r *Registry) LabelNames(name string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), e.labelNames...), true
}

func validate(name string, labelNames []string) error {
	if !model.IsValidMetricName(model.LabelValue(name)) {
		return errors.Wrapf(ErrInvalidName, "metric %q", name)
	}
	for _, l := range labelNames {
		if !model.LabelName(l).IsValid() {
			return errors.Wrapf(ErrInvalidName, "label %q of %s", l, name)
		}
	}
	return nil
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func help(name string) string {
	return fmt.Sprintf("Libvirt domain statistic %s.", strings.TrimPrefix(name, "libvirt_"))
}
