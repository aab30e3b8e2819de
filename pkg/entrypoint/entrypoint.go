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

package entrypoint

import (
	"go.uber.org/zap"

	"github.com/helmsman-scheduler/helmsman-core/pkg/allocator"
	"github.com/helmsman-scheduler/helmsman-core/pkg/common/configs"
	"github.com/helmsman-scheduler/helmsman-core/pkg/log"
	"github.com/helmsman-scheduler/helmsman-core/pkg/quota"
	"github.com/helmsman-scheduler/helmsman-core/pkg/webservice"
)

// ServiceContext holds the running services so a master embedding the
// allocator, or the standalone daemon, can stop them in order.
type ServiceContext struct {
	Allocator        *allocator.Allocator
	WebApp           *webservice.WebService
	whitelistWatcher *configs.WhitelistWatcher
}

// StartAllServices brings up the allocator, the REST interface and, when
// configured, the whitelist watcher. The callbacks connect the allocator
// to whatever turns awards into protocol offers.
func StartAllServices(conf *configs.AllocatorConfig, registry quota.Registry, offerCallback allocator.OfferCallback, rescindCallback allocator.RescindCallback, authorizer webservice.Authorizer) (*ServiceContext, error) {
	alloc, err := allocator.NewAllocator(conf, registry, offerCallback, rescindCallback)
	if err != nil {
		return nil, err
	}
	alloc.Start()

	webapp := webservice.NewWebService(alloc, authorizer)
	webapp.StartWebApp(conf.BindAddress)

	ctx := &ServiceContext{
		Allocator: alloc,
		WebApp:    webapp,
	}
	if conf.WhitelistFile != "" {
		ctx.whitelistWatcher = configs.NewWhitelistWatcher(conf.WhitelistFile, conf.WhitelistInterval, alloc)
		ctx.whitelistWatcher.Run()
	}

	log.Log(log.Entrypoint).Info("all services started",
		zap.String("bindAddress", conf.BindAddress),
		zap.Bool("whitelist", conf.WhitelistFile != ""))
	return ctx, nil
}

func (s *ServiceContext) StopAll() {
	if s.whitelistWatcher != nil {
		s.whitelistWatcher.Stop()
	}
	if err := s.WebApp.StopWebApp(); err != nil {
		log.Log(log.Entrypoint).Error("failed to stop web-app", zap.Error(err))
	}
	s.Allocator.Stop()
	log.Log(log.Entrypoint).Info("all services stopped")
}
