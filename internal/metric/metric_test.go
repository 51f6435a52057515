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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabelsWithDoesNotAlias(t *testing.T) {
	base := make(Labels, 0, 4)
	base = append(base, Label{Name: "uuid", Value: "u1"})

	vda := base.With("target_device", "vda")
	vdb := base.With("target_device", "vdb")

	assert.Equal(t, []string{"u1", "vda"}, vda.Values())
	assert.Equal(t, []string{"u1", "vdb"}, vdb.Values())
	assert.Len(t, base, 1)
}

func TestLabelsSameNames(t *testing.T) {
	l := Labels{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}}

	assert.True(t, l.SameNames([]string{"a", "b"}))
	assert.False(t, l.SameNames([]string{"b", "a"}))
	assert.False(t, l.SameNames([]string{"a"}))
	assert.Equal(t, `{a="1",b="2"}`, l.String())

	v, ok := l.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestFamilyMetricName(t *testing.T) {
	tests := []struct {
		family Family
		field  string
		want   string
	}{
		{FamilyCPU, "cpu_time", "libvirt_cpu_stats_cpu_time_secs"},
		{FamilyMemory, "util", "libvirt_mem_stats_util"},
		{FamilyBlock, "read_bytes", "libvirt_block_stats_read_bytes"},
		{FamilyInterface, "write_drops", "libvirt_interface_write_drops"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.family.MetricName(tt.field))
		})
	}
}

func TestCollectionFieldsSorted(t *testing.T) {
	c := Collection{}
	c.Add("user_time", 1, nil)
	c.Add("cpu_time", 2, nil)
	c.Add("system_time", 3, nil)

	assert.Equal(t, []string{"cpu_time", "system_time", "user_time"}, c.Fields())
}
