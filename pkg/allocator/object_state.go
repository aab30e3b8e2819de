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

package allocator

import (
	"context"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/helmsman-scheduler/helmsman-core/pkg/log"
)

// ----------------------------------
// entity lifecycle events
// ----------------------------------
type LifecycleEvent int

const (
	ActivateEntity LifecycleEvent = iota
	DeactivateEntity
	RemoveEntity
)

func (le LifecycleEvent) String() string {
	return [...]string{"ActivateEntity", "DeactivateEntity", "RemoveEntity"}[le]
}

// ----------------------------------
// entity lifecycle states
// ----------------------------------
type LifecycleState int

const (
	Active LifecycleState = iota
	Inactive
	Removed
)

func (ls LifecycleState) String() string {
	return [...]string{"Active", "Inactive", "Removed"}[ls]
}

// newLifecycleState builds the state machine shared by agent and framework
// records. Registration starts the entity in its initial state directly, so
// the machine only covers the transitions afterwards. Removed is terminal:
// identity never comes back without a fresh registration.
func newLifecycleState(initial LifecycleState) *fsm.FSM {
	return fsm.NewFSM(
		initial.String(), fsm.Events{
			{
				Name: ActivateEntity.String(),
				Src:  []string{Active.String(), Inactive.String()},
				Dst:  Active.String(),
			}, {
				Name: DeactivateEntity.String(),
				Src:  []string{Active.String(), Inactive.String()},
				Dst:  Inactive.String(),
			}, {
				Name: RemoveEntity.String(),
				Src:  []string{Active.String(), Inactive.String()},
				Dst:  Removed.String(),
			},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, event *fsm.Event) {
				log.Log(log.Allocator).Debug("entity state transition",
					zap.Any("entity", event.Args[0]),
					zap.String("source", event.Src),
					zap.String("destination", event.Dst))
			},
		},
	)
}
