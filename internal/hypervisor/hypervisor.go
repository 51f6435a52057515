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

// Package hypervisor is the boundary to the libvirt daemon: it opens sessions,
// enumerates running domains and returns raw, unconverted statistics.
package hypervisor

import "github.com/pkg/errors"

// ErrConnectionFailure is returned when a session cannot be opened.
var ErrConnectionFailure = errors.New("libvirt connection failure")

// Opener opens a session against a libvirt URI.
type Opener interface {
	Open(uri string) (Session, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(uri string) (Session, error)

func (f OpenerFunc) Open(uri string) (Session, error) { return f(uri) }

// Session is one open connection to the daemon.
type Session interface {
	ListRunningDomainIDs() ([]int32, error)
	LookupByID(id int32) (Domain, error)
	Close() error
}

// Domain gives access to a running domain's descriptor and raw statistics.
//
// CPUStats returns the total CPU statistics as a one-element list, values in
// nanoseconds. MemoryStats values are KiB. BlockStats and InterfaceStats return
// the positional counters libvirt reports for one target device.
type Domain interface {
	Name() string
	DescriptorXML() ([]byte, error)
	CPUStats() ([]map[string]uint64, error)
	MemoryStats() (map[string]uint64, error)
	BlockStats(device string) ([]int64, error)
	InterfaceStats(device string) ([]int64, error)
}
