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

package hypervisor

import (
	"net/url"
	"strings"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"
	"github.com/pkg/errors"
)

// Libvirt opens sessions over the libvirt RPC protocol.
type Libvirt struct {
	// Timeout bounds dialing a bare unix socket path.
	Timeout time.Duration
}

// NewLibvirt returns an Opener backed by go-libvirt.
func NewLibvirt(timeout time.Duration) *Libvirt {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Libvirt{Timeout: timeout}
}

// Open connects to uri, which is either a libvirt URI such as qemu:///system,
// qemu+unix:///system?socket=/path or qemu+tcp://host/system, or an absolute
// path to the daemon's unix socket.
func (o *Libvirt) Open(uri string) (Session, error) {
	l, err := o.connect(strings.TrimSpace(uri))
	if err != nil {
		return nil, errors.Wrapf(ErrConnectionFailure, "%s: %v", uri, err)
	}
	return &libvirtSession{l: l}, nil
}

func (o *Libvirt) connect(uri string) (*libvirt.Libvirt, error) {
	if uri == "" {
		uri = string(libvirt.QEMUSystem)
	}
	if strings.HasPrefix(uri, "/") {
		dialer := dialers.NewLocal(dialers.WithSocket(uri), dialers.WithLocalTimeout(o.Timeout))
		l := libvirt.NewWithDialer(dialer)
		if err := l.ConnectToURI(libvirt.QEMUSystem); err != nil {
			return nil, err
		}
		return l, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrap(err, "parse libvirt uri")
	}
	return libvirt.ConnectToURI(u)
}

type libvirtSession struct {
	l *libvirt.Libvirt
}

func (s *libvirtSession) ListRunningDomainIDs() ([]int32, error) {
	n, err := s.l.ConnectNumOfDomains()
	if err != nil {
		return nil, errors.Wrap(err, "ConnectNumOfDomains")
	}
	if n <= 0 {
		return nil, nil
	}
	ids, err := s.l.ConnectListDomains(n)
	if err != nil {
		return nil, errors.Wrap(err, "ConnectListDomains")
	}
	return ids, nil
}

func (s *libvirtSession) LookupByID(id int32) (Domain, error) {
	dom, err := s.l.DomainLookupByID(id)
	if err != nil {
		return nil, errors.Wrapf(err, "DomainLookupByID %d", id)
	}
	return &libvirtDomain{l: s.l, dom: dom}, nil
}

func (s *libvirtSession) Close() error {
	return s.l.Disconnect()
}

type libvirtDomain struct {
	l   *libvirt.Libvirt
	dom libvirt.Domain
}

func (d *libvirtDomain) Name() string { return d.dom.Name }

func (d *libvirtDomain) DescriptorXML() ([]byte, error) {
	desc, err := d.l.DomainGetXMLDesc(d.dom, 0)
	if err != nil {
		return nil, errors.Wrap(err, "DomainGetXMLDesc")
	}
	return []byte(desc), nil
}

// CPUStats asks for the parameter count first, then for the totals
// (start_cpu -1, one row).
func (d *libvirtDomain) CPUStats() ([]map[string]uint64, error) {
	_, n, err := d.l.DomainGetCPUStats(d.dom, 0, -1, 1, 0)
	if err != nil {
		return nil, errors.Wrap(err, "DomainGetCPUStats")
	}
	params, _, err := d.l.DomainGetCPUStats(d.dom, uint32(n), -1, 1, 0)
	if err != nil {
		return nil, errors.Wrap(err, "DomainGetCPUStats")
	}
	stats := make(map[string]uint64, len(params))
	for _, p := range params {
		v, ok := asUint64(p.Value.I)
		if !ok {
			continue
		}
		stats[p.Field] = v
	}
	return []map[string]uint64{stats}, nil
}

func (d *libvirtDomain) MemoryStats() (map[string]uint64, error) {
	raw, err := d.l.DomainMemoryStats(d.dom, uint32(libvirt.DomainMemoryStatNr), 0)
	if err != nil {
		return nil, errors.Wrap(err, "DomainMemoryStats")
	}
	stats := make(map[string]uint64, len(raw))
	for _, s := range raw {
		name, ok := memoryStatNames[libvirt.DomainMemoryStatTags(s.Tag)]
		if !ok {
			continue
		}
		stats[name] = s.Val
	}
	return stats, nil
}

func (d *libvirtDomain) BlockStats(device string) ([]int64, error) {
	rdReq, rdBytes, wrReq, wrBytes, errs, err := d.l.DomainBlockStats(d.dom, device)
	if err != nil {
		return nil, errors.Wrapf(err, "DomainBlockStats %s", device)
	}
	return []int64{rdReq, rdBytes, wrReq, wrBytes, errs}, nil
}

func (d *libvirtDomain) InterfaceStats(device string) ([]int64, error) {
	rxBytes, rxPackets, rxErrs, rxDrop, txBytes, txPackets, txErrs, txDrop, err := d.l.DomainInterfaceStats(d.dom, device)
	if err != nil {
		return nil, errors.Wrapf(err, "DomainInterfaceStats %s", device)
	}
	return []int64{rxBytes, rxPackets, rxErrs, rxDrop, txBytes, txPackets, txErrs, txDrop}, nil
}

// memoryStatNames are the keys libvirt's own bindings use for the memory
// statistic tags.
var memoryStatNames = map[libvirt.DomainMemoryStatTags]string{
	libvirt.DomainMemoryStatSwapIn:         "swap_in",
	libvirt.DomainMemoryStatSwapOut:        "swap_out",
	libvirt.DomainMemoryStatMajorFault:     "major_fault",
	libvirt.DomainMemoryStatMinorFault:     "minor_fault",
	libvirt.DomainMemoryStatUnused:         "unused",
	libvirt.DomainMemoryStatAvailable:      "available",
	libvirt.DomainMemoryStatActualBalloon:  "actual",
	libvirt.DomainMemoryStatRss:            "rss",
	libvirt.DomainMemoryStatUsable:         "usable",
	libvirt.DomainMemoryStatLastUpdate:     "last_update",
	libvirt.DomainMemoryStatDiskCaches:     "disk_caches",
	libvirt.DomainMemoryStatHugetlbPgalloc: "hugetlb_pgalloc",
	libvirt.DomainMemoryStatHugetlbPgfail:  "hugetlb_pgfail",
}

// asUint64 converts a typed parameter value. Strings, negative numbers and
// other values that are not counters are reported as not ok.
func asUint64(v interface{}) (uint64, bool) {
	switch t := v.(type) {
	case uint64:
		return t, true
	case uint32:
		return uint64(t), true
	case int64:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case int32:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case float64:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
