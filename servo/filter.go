/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package servo

import "math/bits"

// defaultFilterShift is the initial smoothing window exponent s.
const defaultFilterShift = 4

// Filter is an exponential smoothing filter with an adaptive window: for
// the first few samples the effective shift is clamped to floor(log2(n)) so
// the filter does not over-smooth before it has enough history.
type Filter struct {
	n uint64
	s uint8
	y int64
}

// NewFilter returns a Filter with the default shift.
func NewFilter() Filter {
	return Filter{s: defaultFilterShift}
}

// Reset clears the sample count and accumulator, as on a clock jump.
func (f *Filter) Reset() {
	f.n = 0
	f.y = 0
}

// Sample folds x into the filter and returns the new smoothed value.
func (f *Filter) Sample(x int64) int64 {
	f.n++
	shift := f.s
	if lg := uint8(bits.Len64(f.n) - 1); lg < shift {
		shift = lg
	}
	f.y = (f.y*((int64(1)<<shift)-1) + x) >> shift
	return f.y
}
