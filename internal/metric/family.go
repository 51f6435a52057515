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

package metric

// Family is one category of libvirt domain statistics.
type Family int

const (
	FamilyCPU Family = iota
	FamilyMemory
	FamilyBlock
	FamilyInterface
)

// Families lists every family in the order a domain is processed.
var Families = []Family{FamilyCPU, FamilyMemory, FamilyBlock, FamilyInterface}

// Prefix is the metric name prefix shared by every field of the family.
func (f Family) Prefix() string {
	switch f {
	case FamilyCPU:
		return "libvirt_cpu_stats_"
	case FamilyMemory:
		return "libvirt_mem_stats_"
	case FamilyBlock:
		return "libvirt_block_stats_"
	case FamilyInterface:
		return "libvirt_interface_"
	}
	return ""
}

// Unit is appended to the field name. Only CPU times carry one.
func (f Family) Unit() string {
	if f == FamilyCPU {
		return "_secs"
	}
	return ""
}

// MetricName builds the fully qualified name of field within the family.
func (f Family) MetricName(field string) string {
	return f.Prefix() + field + f.Unit()
}

func (f Family) String() string {
	switch f {
	case FamilyCPU:
		return "cpu"
	case FamilyMemory:
		return "memory"
	case FamilyBlock:
		return "block"
	case FamilyInterface:
		return "interface"
	}
	return "unknown"
}
