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

// Package descriptor reads the parts of a libvirt domain XML descriptor the
// exporter labels and enumerates devices with: the OpenStack Nova instance
// metadata, the memory allocation and the disk and interface targets.
package descriptor

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nanoandrew4/openstack_libvirt_exporter/internal/metric"
)

// NovaNamespace is the XML namespace of Nova's instance metadata block.
const NovaNamespace = "http://openstack.org/xmlns/libvirt/nova/1.0"

// ErrMissingMetadata is returned when a descriptor lacks a field every metric
// of the domain is labelled with.
var ErrMissingMetadata = errors.New("missing domain metadata")

// Label names of the base label set, in declaration order.
const (
	LabelUUID         = "uuid"
	LabelDomain       = "domain"
	LabelUsername     = "username"
	LabelProjectName  = "project_name"
	LabelInstanceName = "instance_name"
	LabelFlavorRAM    = "flavor_ram"
	LabelFlavorCPU    = "flavor_cpu"
	LabelFlavorDisk   = "flavor_disk"
)

type domainXML struct {
	XMLName xml.Name `xml:"domain"`
	UUID    string   `xml:"uuid"`
	Memory  struct {
		Unit  string `xml:"unit,attr"`
		Value string `xml:",chardata"`
	} `xml:"memory"`
	Metadata struct {
		Instance *novaInstance `xml:"http://openstack.org/xmlns/libvirt/nova/1.0 instance"`
	} `xml:"metadata"`
	Devices struct {
		Disks []struct {
			Device string `xml:"device,attr"`
			Target struct {
				Dev string `xml:"dev,attr"`
			} `xml:"target"`
		} `xml:"disk"`
		Interfaces []struct {
			MAC struct {
				Address string `xml:"address,attr"`
			} `xml:"mac"`
			Target struct {
				Dev string `xml:"dev,attr"`
			} `xml:"target"`
		} `xml:"interface"`
	} `xml:"devices"`
}

type novaInstance struct {
	Name  string `xml:"name"`
	Owner struct {
		User    string `xml:"user"`
		Project string `xml:"project"`
	} `xml:"owner"`
	Flavor struct {
		Memory string `xml:"memory"`
		VCPUs  string `xml:"vcpus"`
		Disk   string `xml:"disk"`
	} `xml:"flavor"`
}

// Interface is a network interface of the domain.
type Interface struct {
	Target string
	MAC    string
}

// Descriptor is a parsed domain descriptor.
type Descriptor struct {
	raw domainXML
}

// Parse decodes a domain XML descriptor. A descriptor that cannot be decoded
// is reported as ErrMissingMetadata, with the decoder error kept as a cause.
func Parse(data []byte) (*Descriptor, error) {
	d := &Descriptor{}
	if err := xml.Unmarshal(data, &d.raw); err != nil {
		return nil, fmt.Errorf("%w: parse domain XML: %w", ErrMissingMetadata, err)
	}
	return d, nil
}

// UUID returns the domain UUID.
func (d *Descriptor) UUID() string {
	return strings.TrimSpace(d.raw.UUID)
}

// Labels returns the identity labels attached to every metric of the domain.
func (d *Descriptor) Labels(domainName string) (metric.Labels, error) {
	inst := d.raw.Metadata.Instance
	if inst == nil {
		return nil, errors.Wrap(ErrMissingMetadata, "no nova:instance block")
	}
	labels := metric.Labels{
		{Name: LabelUUID, Value: d.UUID()},
		{Name: LabelDomain, Value: domainName},
		{Name: LabelUsername, Value: strings.TrimSpace(inst.Owner.User)},
		{Name: LabelProjectName, Value: strings.TrimSpace(inst.Owner.Project)},
		{Name: LabelInstanceName, Value: strings.TrimSpace(inst.Name)},
		{Name: LabelFlavorRAM, Value: strings.TrimSpace(inst.Flavor.Memory)},
		{Name: LabelFlavorCPU, Value: strings.TrimSpace(inst.Flavor.VCPUs)},
		{Name: LabelFlavorDisk, Value: strings.TrimSpace(inst.Flavor.Disk)},
	}
	var missing []string
	for _, l := range labels {
		if l.Name != LabelDomain && l.Value == "" {
			missing = append(missing, l.Name)
		}
	}
	if len(missing) > 0 {
		return nil, errors.Wrapf(ErrMissingMetadata, "empty %s", strings.Join(missing, ", "))
	}
	return labels, nil
}

// MemoryKiB returns the configured memory allocation in KiB.
func (d *Descriptor) MemoryKiB() (uint64, error) {
	v := strings.TrimSpace(d.raw.Memory.Value)
	if v == "" {
		return 0, errors.Wrap(ErrMissingMetadata, "no memory element")
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrMissingMetadata, "memory %q: %v", v, err)
	}
	scale, ok := unitBytes[strings.ToLower(strings.TrimSpace(d.raw.Memory.Unit))]
	if !ok {
		return 0, errors.Wrapf(ErrMissingMetadata, "memory unit %q", d.raw.Memory.Unit)
	}
	return n * scale / 1024, nil
}

// libvirt memory units, in bytes. An empty unit means KiB.
var unitBytes = map[string]uint64{
	"":      1024,
	"b":     1,
	"bytes": 1,
	"kb":    1000,
	"k":     1024,
	"kib":   1024,
	"mb":    1000 * 1000,
	"m":     1024 * 1024,
	"mib":   1024 * 1024,
	"gb":    1000 * 1000 * 1000,
	"g":     1024 * 1024 * 1024,
	"gib":   1024 * 1024 * 1024,
}

// DiskTargets returns the target device names of the domain's disks. CD-ROM
// and floppy drives are skipped.
func (d *Descriptor) DiskTargets() []string {
	var out []string
	for _, disk := range d.raw.Devices.Disks {
		if disk.Device == "cdrom" || disk.Device == "floppy" {
			continue
		}
		dev := strings.TrimSpace(disk.Target.Dev)
		if dev == "" {
			continue
		}
		out = append(out, dev)
	}
	return out
}

// Interfaces returns the domain's network interfaces that have a target
// device.
func (d *Descriptor) Interfaces() []Interface {
	var out []Interface
	for _, iface := range d.raw.Devices.Interfaces {
		dev := strings.TrimSpace(iface.Target.Dev)
		if dev == "" {
			continue
		}
		out = append(out, Interface{
			Target: dev,
			MAC:    strings.TrimSpace(iface.MAC.Address),
		})
	}
	return out
}
