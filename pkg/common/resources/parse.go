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

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse builds a multiset from a text description like
// "cpus:4;mem:2048;ports:[31000-32000];features:{ssd,gpu}".
// A role can be attached per entry: "cpus(prod):2".
// The result is validated before being returned.
func Parse(text string) (Resources, error) {
	out := Resources{}
	for _, part := range strings.Split(text, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.Index(part, ":")
		if idx <= 0 {
			return nil, fmt.Errorf("malformed resource %q: missing value", part)
		}
		tag, value := part[:idx], part[idx+1:]

		name, role := tag, DefaultRole
		if open := strings.Index(tag, "("); open > 0 {
			if !strings.HasSuffix(tag, ")") {
				return nil, fmt.Errorf("malformed resource %q: unbalanced role tag", part)
			}
			name = tag[:open]
			role = tag[open+1 : len(tag)-1]
		}

		resource, err := parseValue(name, role, value)
		if err != nil {
			return nil, err
		}
		if err = Validate(resource); err != nil {
			return nil, err
		}
		out = Add(out, Resources{resource})
	}
	return out, nil
}

// MustParse is Parse for tests and static configuration, it panics on error.
func MustParse(text string) Resources {
	out, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return out
}

func parseValue(name, role, value string) (Resource, error) {
	switch {
	case strings.HasPrefix(value, "["):
		if !strings.HasSuffix(value, "]") {
			return Resource{}, fmt.Errorf("malformed ranges value %q", value)
		}
		ranges, err := parseRanges(value[1 : len(value)-1])
		if err != nil {
			return Resource{}, fmt.Errorf("malformed ranges value %q: %w", value, err)
		}
		return Resource{Name: name, Type: Ranges, Ranges: ranges, Role: role}, nil
	case strings.HasPrefix(value, "{"):
		if !strings.HasSuffix(value, "}") {
			return Resource{}, fmt.Errorf("malformed set value %q", value)
		}
		res := NewSet(name, strings.Split(value[1:len(value)-1], ","))
		res.Role = role
		return res, nil
	default:
		scalar, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Resource{}, fmt.Errorf("malformed scalar value %q: %w", value, err)
		}
		return Resource{Name: name, Type: Scalar, Scalar: scalar, Role: role}, nil
	}
}

func parseRanges(text string) ([]Range, error) {
	var ranges []Range
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bounds := strings.SplitN(part, "-", 2)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("range %q must be begin-end", part)
		}
		begin, err := strconv.ParseUint(bounds[0], 10, 64)
		if err != nil {
			return nil, err
		}
		end, err := strconv.ParseUint(bounds[1], 10, 64)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, Range{Begin: begin, End: end})
	}
	return mergeRanges(ranges), nil
}
