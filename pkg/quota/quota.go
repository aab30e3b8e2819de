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

package quota

import (
	"fmt"

	"github.com/helmsman-scheduler/helmsman-core/pkg/common/resources"
)

// QuotaInfo is a minimum guarantee of scalar resources laid away for a role.
// The guarantee is expressed against the unreserved cluster pool: it carries
// no role, reservation or volume tags of its own.
type QuotaInfo struct {
	Role      string
	Guarantee resources.Resources
}

func (q QuotaInfo) Clone() QuotaInfo {
	return QuotaInfo{
		Role:      q.Role,
		Guarantee: q.Guarantee.Clone(),
	}
}

// Validate checks a quota before it is admitted to the registry.
func Validate(info QuotaInfo) error {
	if info.Role == "" {
		return fmt.Errorf("quota must specify a role")
	}
	if info.Role == resources.DefaultRole {
		return fmt.Errorf("quota cannot be set for the default role %q", resources.DefaultRole)
	}
	if len(info.Guarantee) == 0 {
		return fmt.Errorf("quota for role %q must specify a non-empty guarantee", info.Role)
	}

	seen := make(map[string]bool, len(info.Guarantee))
	for _, r := range info.Guarantee {
		if err := resources.Validate(r); err != nil {
			return fmt.Errorf("invalid guarantee for role %q: %w", info.Role, err)
		}
		if r.Type != resources.Scalar {
			return fmt.Errorf("guarantee %q for role %q is not a scalar", r.Name, info.Role)
		}
		if r.Scalar <= 0 {
			return fmt.Errorf("guarantee %q for role %q must be positive", r.Name, info.Role)
		}
		if !r.IsUnreserved() {
			return fmt.Errorf("guarantee %q for role %q must be unreserved", r.Name, info.Role)
		}
		if r.Disk != nil {
			return fmt.Errorf("guarantee %q for role %q cannot carry volume information", r.Name, info.Role)
		}
		if r.Revocable {
			return fmt.Errorf("guarantee %q for role %q cannot be revocable", r.Name, info.Role)
		}
		if seen[r.Name] {
			return fmt.Errorf("guarantee for role %q repeats resource %q", info.Role, r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}
