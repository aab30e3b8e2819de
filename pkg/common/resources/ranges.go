/*
 Licensed to the Apache Software Foundation (ASF) under one
 or more contributor license agreements.  See the NOTICE file
 distributed with this work for additional information
 regarding copyright ownership.  The ASF licenses this file
 to you under the Apache License, Version 2.0 (the
 "License"); you may not use this file except in compliance
 with the License.  You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package resources

import "sort"

// mergeRanges normalizes a range list: sorted, overlapping and adjacent
// intervals coalesced.
func mergeRanges(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := append([]Range(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Begin == sorted[j].Begin {
			return sorted[i].End < sorted[j].End
		}
		return sorted[i].Begin < sorted[j].Begin
	})
	out := []Range{sorted[0]}
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if r.Begin <= last.End+1 {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// subtractRanges removes every interval of sub from the normalized base.
func subtractRanges(base, sub []Range) []Range {
	out := mergeRanges(base)
	for _, s := range mergeRanges(sub) {
		var next []Range
		for _, b := range out {
			// no overlap
			if s.End < b.Begin || s.Begin > b.End {
				next = append(next, b)
				continue
			}
			if s.Begin > b.Begin {
				next = append(next, Range{Begin: b.Begin, End: s.Begin - 1})
			}
			if s.End < b.End {
				next = append(next, Range{Begin: s.End + 1, End: b.End})
			}
		}
		out = next
	}
	return out
}

// rangesContain reports whether the normalized pool covers every interval
// of need.
func rangesContain(pool, need []Range) bool {
	for _, n := range mergeRanges(need) {
		covered := false
		for _, p := range pool {
			if n.Begin >= p.Begin && n.End <= p.End {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}

// intersectRanges returns the overlap of two normalized range lists.
func intersectRanges(left, right []Range) []Range {
	var out []Range
	for _, l := range mergeRanges(left) {
		for _, r := range mergeRanges(right) {
			begin, end := l.Begin, l.End
			if r.Begin > begin {
				begin = r.Begin
			}
			if r.End < end {
				end = r.End
			}
			if begin <= end {
				out = append(out, Range{Begin: begin, End: end})
			}
		}
	}
	return mergeRanges(out)
}

func intersectSet(left, right []string) []string {
	keep := make(map[string]bool, len(right))
	for _, item := range right {
		keep[item] = true
	}
	var out []string
	for _, item := range left {
		if keep[item] {
			out = append(out, item)
		}
	}
	return out
}

func unionSet(left, right []string) []string {
	seen := make(map[string]bool, len(left)+len(right))
	for _, item := range left {
		seen[item] = true
	}
	for _, item := range right {
		seen[item] = true
	}
	out := make([]string, 0, len(seen))
	for item := range seen {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

func diffSet(left, right []string) []string {
	drop := make(map[string]bool, len(right))
	for _, item := range right {
		drop[item] = true
	}
	var out []string
	for _, item := range left {
		if !drop[item] {
			out = append(out, item)
		}
	}
	return out
}
