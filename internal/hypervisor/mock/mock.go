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

// Package mock provides in-memory hypervisor sessions for tests.
package mock

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/nanoandrew4/openstack_libvirt_exporter/internal/hypervisor"
)

// Domain is a scripted hypervisor.Domain.
type Domain struct {
	DomainName string
	XML        string
	CPU        []map[string]uint64
	Memory     map[string]uint64
	Blocks     map[string][]int64
	Interfaces map[string][]int64

	// Errs makes the named accessor fail: "xml", "cpu", "memory", "block",
	// "interface".
	Errs map[string]error

	// OnCPUStats runs before CPUStats returns, e.g. to advance a fake clock.
	OnCPUStats func()

	mu    sync.Mutex
	calls []string
}

var _ hypervisor.Domain = (*Domain)(nil)

func (d *Domain) Name() string { return d.DomainName }

func (d *Domain) DescriptorXML() ([]byte, error) {
	d.record("xml")
	if err := d.Errs["xml"]; err != nil {
		return nil, err
	}
	return []byte(d.XML), nil
}

func (d *Domain) CPUStats() ([]map[string]uint64, error) {
	d.record("cpu")
	if d.OnCPUStats != nil {
		d.OnCPUStats()
	}
	if err := d.Errs["cpu"]; err != nil {
		return nil, err
	}
	return d.CPU, nil
}

func (d *Domain) MemoryStats() (map[string]uint64, error) {
	d.record("memory")
	if err := d.Errs["memory"]; err != nil {
		return nil, err
	}
	return d.Memory, nil
}

func (d *Domain) BlockStats(device string) ([]int64, error) {
	d.record("block")
	if err := d.Errs["block"]; err != nil {
		return nil, err
	}
	c, ok := d.Blocks[device]
	if !ok {
		return nil, errors.Errorf("no block device %s", device)
	}
	return c, nil
}

func (d *Domain) InterfaceStats(device string) ([]int64, error) {
	d.record("interface")
	if err := d.Errs["interface"]; err != nil {
		return nil, err
	}
	c, ok := d.Interfaces[device]
	if !ok {
		return nil, errors.Errorf("no interface %s", device)
	}
	return c, nil
}

func (d *Domain) record(call string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
}

// Calls returns the accessors called so far, in order, by the keys used in
// Errs.
func (d *Domain) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// Session replays Enumerations, one entry per ListRunningDomainIDs call. The
// last entry repeats once the script is exhausted.
type Session struct {
	mu sync.Mutex

	Domains      map[int32]*Domain
	Enumerations [][]int32

	listCalls int
	closed    bool
}

var _ hypervisor.Session = (*Session)(nil)

func (s *Session) ListRunningDomainIDs() ([]int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("session closed")
	}
	idx := s.listCalls
	s.listCalls++
	if len(s.Enumerations) == 0 {
		return nil, nil
	}
	if idx >= len(s.Enumerations) {
		idx = len(s.Enumerations) - 1
	}
	return s.Enumerations[idx], nil
}

func (s *Session) LookupByID(id int32) (hypervisor.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.Domains[id]
	if !ok {
		return nil, errors.Errorf("domain %d not found", id)
	}
	return d, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ListCalls returns how many times the domain list was requested.
func (s *Session) ListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Opener hands out Sessions in order; Errs[i] makes the i-th open fail.
type Opener struct {
	mu sync.Mutex

	Sessions []*Session
	Errs     []error

	opens int
	uris  []string
}

var _ hypervisor.Opener = (*Opener)(nil)

func (o *Opener) Open(uri string) (hypervisor.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	idx := o.opens
	o.opens++
	o.uris = append(o.uris, uri)
	if idx < len(o.Errs) && o.Errs[idx] != nil {
		return nil, o.Errs[idx]
	}
	if len(o.Sessions) == 0 {
		return nil, hypervisor.ErrConnectionFailure
	}
	sidx := idx
	if sidx >= len(o.Sessions) {
		sidx = len(o.Sessions) - 1
	}
	return o.Sessions[sidx], nil
}

// Opens returns how many sessions were opened, failed attempts included.
func (o *Opener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

// URIs returns every uri Open was called with.
func (o *Opener) URIs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.uris...)
}
