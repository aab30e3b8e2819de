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

	"go.uber.org/zap"

	"github.com/helmsman-scheduler/helmsman-core/pkg/locking"
	"github.com/helmsman-scheduler/helmsman-core/pkg/log"
)

// Operation is a durable mutation of the stored quota list. Perform returns
// whether the list actually changed; an operation that finds nothing to do
// is not an error.
type Operation interface {
	Perform(quotas *[]QuotaInfo) (bool, error)
	Name() string
}

// SetQuota stores a quota, replacing an existing entry for the same role in
// place so the stored order stays stable.
type SetQuota struct {
	Quota QuotaInfo
}

func (s SetQuota) Name() string { return "SetQuota" }

func (s SetQuota) Perform(quotas *[]QuotaInfo) (bool, error) {
	if err := Validate(s.Quota); err != nil {
		return false, err
	}
	for i := range *quotas {
		if (*quotas)[i].Role == s.Quota.Role {
			(*quotas)[i] = s.Quota.Clone()
			return true, nil
		}
	}
	*quotas = append(*quotas, s.Quota.Clone())
	return true, nil
}

// RemoveQuota removes the quota for a role if one is stored.
type RemoveQuota struct {
	Role string
}

func (r RemoveQuota) Name() string { return "RemoveQuota" }

func (r RemoveQuota) Perform(quotas *[]QuotaInfo) (bool, error) {
	if r.Role == "" {
		return false, fmt.Errorf("remove quota must specify a role")
	}
	for i := range *quotas {
		if (*quotas)[i].Role == r.Role {
			*quotas = append((*quotas)[:i], (*quotas)[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// Registry persists quota state across failovers. Apply is asynchronous:
// callers receive the outcome on the returned channel once the operation
// has been durably admitted or rejected.
type Registry interface {
	Apply(op Operation) <-chan error
	Recover() ([]QuotaInfo, error)
}

// InMemoryRegistry keeps the quota list in process memory. It honours the
// asynchronous Apply contract so callers are exercised the same way they
// would be against a replicated store.
type InMemoryRegistry struct {
	locking.Mutex
	quotas []QuotaInfo

	// fault, when set, fails every Apply; used to drive store outages
	fault error
}

var _ Registry = (*InMemoryRegistry)(nil)

func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{}
}

func (r *InMemoryRegistry) Apply(op Operation) <-chan error {
	result := make(chan error, 1)

	r.Lock()
	defer r.Unlock()

	if r.fault != nil {
		result <- r.fault
		return result
	}

	mutated, err := op.Perform(&r.quotas)
	if err != nil {
		result <- err
		return result
	}
	log.Log(log.Quota).Debug("applied registry operation",
		zap.String("operation", op.Name()),
		zap.Bool("mutated", mutated))
	result <- nil
	return result
}

func (r *InMemoryRegistry) Recover() ([]QuotaInfo, error) {
	r.Lock()
	defer r.Unlock()

	out := make([]QuotaInfo, 0, len(r.quotas))
	for _, q := range r.quotas {
		out = append(out, q.Clone())
	}
	return out, nil
}

// SetFault makes every subsequent Apply fail with err. A nil err clears the
// fault.
func (r *InMemoryRegistry) SetFault(err error) {
	r.Lock()
	defer r.Unlock()
	r.fault = err
}
