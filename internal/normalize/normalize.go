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

// Package normalize converts the raw statistic shapes libvirt returns for a
// domain into metric.Collection values.
//
// Each shape is its own Bundle type, chosen by the caller when the statistics
// are fetched, so the conversion for a family always works on a known shape.
package normalize

import (
	"github.com/pkg/errors"

	"github.com/nanoandrew4/openstack_libvirt_exporter/internal/metric"
)

var (
	// ErrMalformedStats is returned when a bundle does not have the shape
	// its family requires.
	ErrMalformedStats = errors.New("malformed statistics")
	// ErrUnknownFamily marks a family/bundle combination the normalizer has
	// no rule for. It is a programming error, not a runtime condition.
	ErrUnknownFamily = errors.New("unknown statistic family")
)

// Label names added to per-device samples.
const (
	LabelTargetDevice = "target_device"
	LabelMACAddress   = "mac_address"
)

// Positional counter names, in the order libvirt returns them.
var (
	BlockFields = []string{
		"read_requests_issued",
		"read_bytes",
		"write_requests_issued",
		"write_bytes",
		"errors_number",
	}
	InterfaceFields = []string{
		"read_bytes",
		"read_packets",
		"read_errors",
		"read_drops",
		"write_bytes",
		"write_packets",
		"write_errors",
		"write_drops",
	}
)

// nanosecondFields are reported by libvirt in ns and exported in seconds.
var nanosecondFields = map[string]bool{
	"cpu_time":    true,
	"system_time": true,
	"user_time":   true,
}

// Bundle is a raw statistic bundle of one family.
type Bundle interface {
	Family() metric.Family
}

// CPUBundle holds the total CPU statistics: a single row of nanosecond
// counters.
type CPUBundle struct {
	Stats []map[string]uint64
}

func (CPUBundle) Family() metric.Family { return metric.FamilyCPU }

// MemoryBundle holds the balloon statistics in KiB together with the domain's
// configured allocation in KiB, which the utilisation is computed against.
type MemoryBundle struct {
	Stats         map[string]uint64
	AllocationKiB uint64
}

func (MemoryBundle) Family() metric.Family { return metric.FamilyMemory }

// Device is the positional counters of one target device.
type Device struct {
	Target   string
	MAC      string
	Counters []int64
}

// DeviceBundle holds block or interface counters, one Device per target.
type DeviceBundle struct {
	Kind    metric.Family
	Devices []Device
}

func (b DeviceBundle) Family() metric.Family { return b.Kind }

// Normalize converts b into a collection keyed by field name. Every sample
// carries base plus, for device families, the device labels.
func Normalize(family metric.Family, b Bundle, base metric.Labels) (metric.Collection, error) {
	if b == nil || b.Family() != family {
		return nil, errors.Wrapf(ErrUnknownFamily, "%s bundle %T", family, b)
	}
	switch bundle := b.(type) {
	case CPUBundle:
		return normalizeCPU(bundle, base)
	case MemoryBundle:
		return normalizeMemory(bundle, base), nil
	case DeviceBundle:
		switch family {
		case metric.FamilyBlock:
			return normalizeDevices(BlockFields, bundle, base, false)
		case metric.FamilyInterface:
			return normalizeDevices(InterfaceFields, bundle, base, true)
		}
	}
	return nil, errors.Wrapf(ErrUnknownFamily, "%s bundle %T", family, b)
}

func normalizeCPU(b CPUBundle, base metric.Labels) (metric.Collection, error) {
	if len(b.Stats) != 1 {
		return nil, errors.Wrapf(ErrMalformedStats, "cpu stats: want 1 row, got %d", len(b.Stats))
	}
	c := make(metric.Collection, len(b.Stats[0]))
	for field, raw := range b.Stats[0] {
		v := float64(raw)
		if nanosecondFields[field] {
			v /= 1e9
		}
		c.Add(field, v, base)
	}
	return c, nil
}

// normalizeMemory passes the raw fields through and derives used and util.
// Both derivations key used and util from their own computed values, never
// from fields written back into the raw map.
func normalizeMemory(b MemoryBundle, base metric.Labels) metric.Collection {
	c := make(metric.Collection, len(b.Stats)+2)
	for field, raw := range b.Stats {
		c.Add(field, float64(raw), base)
	}

	available, hasAvailable := b.Stats["available"]
	usable, hasUsable := b.Stats["usable"]
	unused, hasUnused := b.Stats["unused"]

	var used float64
	switch {
	case hasUsable && hasAvailable:
		used = float64(available) - float64(usable)
	case hasAvailable && hasUnused:
		used = float64(available) - float64(unused)
	default:
		return c
	}
	c["used"] = []metric.Sample{{Value: used, Labels: base}}
	if b.AllocationKiB > 0 {
		c["util"] = []metric.Sample{{Value: 100 * used / float64(b.AllocationKiB), Labels: base}}
	}
	return c
}

func normalizeDevices(fields []string, b DeviceBundle, base metric.Labels, withMAC bool) (metric.Collection, error) {
	c := make(metric.Collection, len(fields))
	for _, dev := range b.Devices {
		if len(dev.Counters) < len(fields) {
			return nil, errors.Wrapf(ErrMalformedStats, "%s %s: want %d counters, got %d",
				b.Kind, dev.Target, len(fields), len(dev.Counters))
		}
		labels := base.With(LabelTargetDevice, dev.Target)
		if withMAC {
			labels = labels.With(LabelMACAddress, dev.MAC)
		}
		for i, field := range fields {
			c.Add(field, float64(dev.Counters[i]), labels)
		}
	}
	return c, nil
}
