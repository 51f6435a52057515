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

import "sort"

// Sample is one observation of a field for one label combination.
type Sample struct {
	Value  float64
	Labels Labels
}

// Collection maps a statistic field name to its samples, one per device
// dimension.
type Collection map[string][]Sample

// Fields returns the field names sorted, so that registry writes happen in a
// stable order from cycle to cycle.
func (c Collection) Fields() []string {
	fields := make([]string, 0, len(c))
	for f := range c {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Add appends a sample for field.
func (c Collection) Add(field string, value float64, labels Labels) {
	c[field] = append(c[field], Sample{Value: value, Labels: labels})
}
