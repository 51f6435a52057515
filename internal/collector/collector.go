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

// Package collector turns one domain's raw libvirt statistics into registry
// writes, family by family.
package collector

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nanoandrew4/openstack_libvirt_exporter/internal/descriptor"
	"github.com/nanoandrew4/openstack_libvirt_exporter/internal/hypervisor"
	"github.com/nanoandrew4/openstack_libvirt_exporter/internal/metric"
	"github.com/nanoandrew4/openstack_libvirt_exporter/internal/normalize"
)

// Upserter stores samples under a metric name.
type Upserter interface {
	Upsert(name string, labelNames []string, samples []metric.Sample) error
}

// Collector writes the statistics of a domain into an Upserter.
type Collector struct {
	registry Upserter
	logger   log.Logger
	failures *prometheus.CounterVec
}

// New returns a Collector writing into registry. Its own failure counter is
// registered on reg.
func New(registry Upserter, reg prometheus.Registerer, logger log.Logger) *Collector {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Collector{
		registry: registry,
		logger:   logger,
		failures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "libvirt",
			Subsystem: "scrape",
			Name:      "errors_total",
			Help:      "Number of statistic families skipped because they could not be collected.",
		}, []string{"family"}),
	}
}

// CollectAll collects every family of dom in order. A family that fails is
// logged and skipped; the returned error lists every skipped family.
func (c *Collector) CollectAll(dom hypervisor.Domain) error {
	name := dom.Name()
	logger := log.With(c.logger, "domain", name)

	desc, base, err := c.resolve(dom)
	if err != nil {
		_ = level.Warn(logger).Log("msg", "Skipping domain, metadata unavailable", "err", err)
		c.failures.WithLabelValues("metadata").Inc()
		return err
	}
	_ = level.Debug(logger).Log("msg", "Resolved domain labels", "labels", base)

	var result *multierror.Error
	for _, family := range metric.Families {
		if err := c.collectFamily(dom, desc, base, family); err != nil {
			if errors.Is(err, normalize.ErrUnknownFamily) {
				panic(err)
			}
			_ = level.Warn(logger).Log("msg", "Skipping statistic family", "family", family, "err", err)
			c.failures.WithLabelValues(family.String()).Inc()
			result = multierror.Append(result, errors.Wrap(err, family.String()))
		}
	}
	return result.ErrorOrNil()
}

func (c *Collector) resolve(dom hypervisor.Domain) (*descriptor.Descriptor, metric.Labels, error) {
	raw, err := dom.DescriptorXML()
	if err != nil {
		return nil, nil, err
	}
	desc, err := descriptor.Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	base, err := desc.Labels(dom.Name())
	if err != nil {
		return nil, nil, err
	}
	return desc, base, nil
}

func (c *Collector) collectFamily(dom hypervisor.Domain, desc *descriptor.Descriptor, base metric.Labels, family metric.Family) error {
	bundle, err := fetch(dom, desc, family)
	if err != nil {
		return err
	}
	collection, err := normalize.Normalize(family, bundle, base)
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, field := range collection.Fields() {
		samples := collection[field]
		if len(samples) == 0 {
			continue
		}
		name := family.MetricName(field)
		if err := c.registry.Upsert(name, samples[0].Labels.Names(), samples); err != nil {
			_ = level.Warn(c.logger).Log("msg", "Failed to update metric", "metric", name, "domain", dom.Name(), "err", err)
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// fetch reads the raw statistics of family and wraps them in the bundle type
// the normalizer expects for it.
func fetch(dom hypervisor.Domain, desc *descriptor.Descriptor, family metric.Family) (normalize.Bundle, error) {
	switch family {
	case metric.FamilyCPU:
		stats, err := dom.CPUStats()
		if err != nil {
			return nil, err
		}
		return normalize.CPUBundle{Stats: stats}, nil

	case metric.FamilyMemory:
		stats, err := dom.MemoryStats()
		if err != nil {
			return nil, err
		}
		allocation, err := desc.MemoryKiB()
		if err != nil {
			return nil, err
		}
		return normalize.MemoryBundle{Stats: stats, AllocationKiB: allocation}, nil

	case metric.FamilyBlock:
		bundle := normalize.DeviceBundle{Kind: family}
		for _, target := range desc.DiskTargets() {
			counters, err := dom.BlockStats(target)
			if err != nil {
				return nil, err
			}
			bundle.Devices = append(bundle.Devices, normalize.Device{Target: target, Counters: counters})
		}
		return bundle, nil

	case metric.FamilyInterface:
		bundle := normalize.DeviceBundle{Kind: family}
		for _, iface := range desc.Interfaces() {
			counters, err := dom.InterfaceStats(iface.Target)
			if err != nil {
				return nil, err
			}
			bundle.Devices = append(bundle.Devices, normalize.Device{Target: iface.Target, MAC: iface.MAC, Counters: counters})
		}
		return bundle, nil
	}
	return nil, errors.Wrapf(normalize.ErrUnknownFamily, "fetch %s", family)
}
