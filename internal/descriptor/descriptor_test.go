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

package descriptor

import (
	"encoding/xml"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const novaDomain = `<domain type='kvm' id='3'>
  <name>instance-0000002a</name>
  <uuid>8f0b4c1e-7d38-4a55-9d0f-1d2e3c4b5a69</uuid>
  <metadata>
    <nova:instance xmlns:nova="http://openstack.org/xmlns/libvirt/nova/1.0">
      <nova:package version="27.1.0"/>
      <nova:name>web-1</nova:name>
      <nova:creationTime>2024-03-01 10:11:12</nova:creationTime>
      <nova:flavor name="m1.small">
        <nova:memory>2048</nova:memory>
        <nova:disk>20</nova:disk>
        <nova:swap>0</nova:swap>
        <nova:ephemeral>0</nova:ephemeral>
        <nova:vcpus>1</nova:vcpus>
      </nova:flavor>
      <nova:owner>
        <nova:user uuid="a1">alice</nova:user>
        <nova:project uuid="p1">demo</nova:project>
      </nova:owner>
    </nova:instance>
  </metadata>
  <memory unit='KiB'>2097152</memory>
  <devices>
    <disk type='file' device='disk'>
      <source file='/var/lib/nova/instances/disk'/>
      <target dev='vda' bus='virtio'/>
    </disk>
    <disk type='file' device='cdrom'>
      <target dev='hda' bus='ide'/>
    </disk>
    <disk type='file' device='disk'>
      <target dev='vdb' bus='virtio'/>
    </disk>
    <interface type='bridge'>
      <mac address='fa:16:3e:00:00:01'/>
      <target dev='tap0001'/>
    </interface>
    <interface type='bridge'>
      <mac address='fa:16:3e:00:00:02'/>
      <target dev='tap0002'/>
    </interface>
    <interface type='bridge'>
      <mac address='fa:16:3e:00:00:03'/>
    </interface>
  </devices>
</domain>`

func TestLabels(t *testing.T) {
	d, err := Parse([]byte(novaDomain))
	require.NoError(t, err)

	labels, err := d.Labels("instance-0000002a")
	require.NoError(t, err)

	assert.Equal(t, []string{
		LabelUUID, LabelDomain, LabelUsername, LabelProjectName,
		LabelInstanceName, LabelFlavorRAM, LabelFlavorCPU, LabelFlavorDisk,
	}, labels.Names())
	assert.Equal(t, []string{
		"8f0b4c1e-7d38-4a55-9d0f-1d2e3c4b5a69", "instance-0000002a", "alice", "demo",
		"web-1", "2048", "1", "20",
	}, labels.Values())
}

func TestLabelsWithoutNovaMetadata(t *testing.T) {
	d, err := Parse([]byte(`<domain><uuid>x</uuid><memory>1024</memory></domain>`))
	require.NoError(t, err)

	_, err = d.Labels("plain")
	assert.True(t, errors.Is(err, ErrMissingMetadata))
}

func TestLabelsWithEmptyField(t *testing.T) {
	d, err := Parse([]byte(`<domain>
  <uuid>x</uuid>
  <metadata>
    <nova:instance xmlns:nova="http://openstack.org/xmlns/libvirt/nova/1.0">
      <nova:name>web</nova:name>
      <nova:owner><nova:user>alice</nova:user></nova:owner>
      <nova:flavor><nova:memory>1</nova:memory><nova:vcpus>1</nova:vcpus><nova:disk>1</nova:disk></nova:flavor>
    </nova:instance>
  </metadata>
</domain>`))
	require.NoError(t, err)

	_, err = d.Labels("web")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingMetadata))
	assert.Contains(t, err.Error(), LabelProjectName)
}

func TestForeignNamespaceIsNotNova(t *testing.T) {
	d, err := Parse([]byte(`<domain>
  <uuid>x</uuid>
  <metadata>
    <other:instance xmlns:other="http://example.com/other"><other:name>web</other:name></other:instance>
  </metadata>
</domain>`))
	require.NoError(t, err)

	_, err = d.Labels("web")
	assert.True(t, errors.Is(err, ErrMissingMetadata))
}

func TestMemoryKiB(t *testing.T) {
	tests := []struct {
		xml     string
		want    uint64
		wantErr bool
	}{
		{`<domain><memory unit='KiB'>2097152</memory></domain>`, 2097152, false},
		{`<domain><memory>4096</memory></domain>`, 4096, false},
		{`<domain><memory unit='MiB'>2048</memory></domain>`, 2097152, false},
		{`<domain><memory unit='GiB'>1</memory></domain>`, 1048576, false},
		{`<domain><memory unit='parsec'>1</memory></domain>`, 0, true},
		{`<domain></domain>`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.xml, func(t *testing.T) {
			d, err := Parse([]byte(tt.xml))
			require.NoError(t, err)
			got, err := d.MemoryKiB()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrMissingMetadata))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDevices(t *testing.T) {
	d, err := Parse([]byte(novaDomain))
	require.NoError(t, err)

	assert.Equal(t, []string{"vda", "vdb"}, d.DiskTargets())
	assert.Equal(t, []Interface{
		{Target: "tap0001", MAC: "fa:16:3e:00:00:01"},
		{Target: "tap0002", MAC: "fa:16:3e:00:00:02"},
	}, d.Interfaces())
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte("<domain"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingMetadata))

	var syntaxErr *xml.SyntaxError
	assert.True(t, errors.As(err, &syntaxErr), "decoder error kept as cause: %v", err)
}
