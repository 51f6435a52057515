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

package registry

import (
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoandrew4/openstack_libvirt_exporter/internal/metric"
)

var names = []string{"uuid", "domain"}

func labels(uuid, domain string) metric.Labels {
	return metric.Labels{{Name: "uuid", Value: uuid}, {Name: "domain", Value: domain}}
}

func TestUpsertOverwritesSameSeries(t *testing.T) {
	r := New()

	require.NoError(t, r.Upsert("libvirt_mem_stats_used", names, []metric.Sample{{Value: 600, Labels: labels("u1", "d1")}}))
	require.NoError(t, r.Upsert("libvirt_mem_stats_used", names, []metric.Sample{{Value: 300, Labels: labels("u1", "d1")}}))

	reg := prometheus.NewRegistry()
	reg.MustRegister(r)

	expected := `
# HELP libvirt_mem_stats_used Libvirt domain statistic mem_stats_used.
# TYPE libvirt_mem_stats_used gauge
libvirt_mem_stats_used{domain="d1",uuid="u1"} 300
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "libvirt_mem_stats_used"))
	assert.Equal(t, 1, testutil.CollectAndCount(r))
	assert.Equal(t, 1, r.Len())
}

func TestUpsertKeepsAbsentSeries(t *testing.T) {
	r := New()

	require.NoError(t, r.Upsert("libvirt_cpu_stats_cpu_time_secs", names, []metric.Sample{
		{Value: 1, Labels: labels("u1", "d1")},
		{Value: 2, Labels: labels("u2", "d2")},
	}))
	require.NoError(t, r.Upsert("libvirt_cpu_stats_cpu_time_secs", names, []metric.Sample{
		{Value: 5, Labels: labels("u1", "d1")},
	}))

	reg := prometheus.NewRegistry()
	reg.MustRegister(r)
	expected := `
# HELP libvirt_cpu_stats_cpu_time_secs Libvirt domain statistic cpu_stats_cpu_time_secs.
# TYPE libvirt_cpu_stats_cpu_time_secs gauge
libvirt_cpu_stats_cpu_time_secs{domain="d1",uuid="u1"} 5
libvirt_cpu_stats_cpu_time_secs{domain="d2",uuid="u2"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))
}

func TestUpsertLabelMismatch(t *testing.T) {
	r := New()
	require.NoError(t, r.Upsert("libvirt_block_stats_read_bytes", names, []metric.Sample{{Value: 1, Labels: labels("u1", "d1")}}))

	withDevice := labels("u1", "d1").With("target_device", "vda")
	err := r.Upsert("libvirt_block_stats_read_bytes", withDevice.Names(), []metric.Sample{{Value: 9, Labels: withDevice}})
	assert.True(t, errors.Is(err, ErrLabelMismatch))

	err = r.Upsert("libvirt_block_stats_read_bytes", []string{"domain", "uuid"}, []metric.Sample{{Value: 9, Labels: metric.Labels{
		{Name: "domain", Value: "d1"}, {Name: "uuid", Value: "u1"},
	}}})
	assert.True(t, errors.Is(err, ErrLabelMismatch))

	err = r.Upsert("libvirt_block_stats_read_bytes", names, []metric.Sample{{Value: 9, Labels: withDevice}})
	assert.True(t, errors.Is(err, ErrLabelMismatch))

	got, ok := r.LabelNames("libvirt_block_stats_read_bytes")
	require.True(t, ok)
	assert.Equal(t, names, got)
	assert.Equal(t, 1, testutil.CollectAndCount(r))
}

func TestUpsertInvalidName(t *testing.T) {
	r := New()

	err := r.Upsert("", names, nil)
	assert.True(t, errors.Is(err, ErrInvalidName))

	err = r.Upsert("libvirt_cpu", []string{""}, nil)
	assert.True(t, errors.Is(err, ErrInvalidName))
	assert.Equal(t, 0, r.Len())
}

func TestUpsertWithoutSamplesCreatesMetric(t *testing.T) {
	r := New()
	require.NoError(t, r.Upsert("libvirt_interface_read_bytes", names, nil))

	assert.Equal(t, []string{"libvirt_interface_read_bytes"}, r.Names())
	assert.Equal(t, 0, testutil.CollectAndCount(r))
}

func TestConcurrentCollectAndUpsert(t *testing.T) {
	r := New()
	reg := prometheus.NewRegistry()
	reg.MustRegister(r)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_, err := reg.Gather()
					assert.NoError(t, err)
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		name := []string{"libvirt_a", "libvirt_b", "libvirt_c"}[i%3]
		require.NoError(t, r.Upsert(name, names, []metric.Sample{{Value: float64(i), Labels: labels("u1", "d1")}}))
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 3, testutil.CollectAndCount(r))
}
