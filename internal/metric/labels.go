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

// Package metric holds the uniform model every libvirt statistic family is
// converted into before it reaches the registry.
package metric

import "strings"

// Label is a single name/value pair of a time series.
type Label struct {
	Name  string
	Value string
}

// Labels is an ordered label set. The order of names is significant: a gauge
// is created with the names in this order and every later write must follow it.
type Labels []Label

// With returns a copy of l with name=value appended.
func (l Labels) With(name, value string) Labels {
	out := make(Labels, len(l), len(l)+1)
	copy(out, l)
	return append(out, Label{Name: name, Value: value})
}

// Names returns the label names in declaration order.
func (l Labels) Names() []string {
	names := make([]string, len(l))
	for i, lb := range l {
		names[i] = lb.Name
	}
	return names
}

// Values returns the label values in declaration order.
func (l Labels) Values() []string {
	values := make([]string, len(l))
	for i, lb := range l {
		values[i] = lb.Value
	}
	return values
}

// Get returns the value of the named label.
func (l Labels) Get(name string) (string, bool) {
	for _, lb := range l {
		if lb.Name == name {
			return lb.Value, true
		}
	}
	return "", false
}

// SameNames reports whether l declares exactly names, in the same order.
func (l Labels) SameNames(names []string) bool {
	if len(l) != len(names) {
		return false
	}
	for i, lb := range l {
		if lb.Name != names[i] {
			return false
		}
	}
	return true
}

func (l Labels) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, lb := range l {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(lb.Name)
		b.WriteString("=\"")
		b.WriteString(lb.Value)
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}
