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

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/helmsman-scheduler/helmsman-core/pkg/common/configs"
	"github.com/helmsman-scheduler/helmsman-core/pkg/common/resources"
	"github.com/helmsman-scheduler/helmsman-core/pkg/entrypoint"
	"github.com/helmsman-scheduler/helmsman-core/pkg/log"
	"github.com/helmsman-scheduler/helmsman-core/pkg/quota"
)

func main() {
	configFile := pflag.String("config", "", "path to the allocator configuration file")
	logLevel := pflag.String("log-level", "info", "log level (debug, info, warn, error)")
	pflag.Parse()

	level, err := zapcore.ParseLevel(*logLevel)
	if err != nil {
		panic(err)
	}
	log.InitAndSetLevel(level)

	conf, err := configs.LoadConfig(*configFile)
	if err != nil {
		log.Log(log.Entrypoint).Fatal("failed to load configuration", zap.Error(err))
	}

	// The standalone daemon has no master wired in yet, awards and
	// rescissions are only logged. An embedding master passes its own
	// callbacks through entrypoint.StartAllServices instead.
	offerCallback := func(frameworkID string, offered map[string]resources.Resources) {
		for agentID, res := range offered {
			log.Log(log.Entrypoint).Info("offer",
				zap.String("frameworkID", frameworkID),
				zap.String("agentID", agentID),
				zap.Stringer("resources", res))
		}
	}
	rescindCallback := func(frameworkID, agentID, offerID string) {
		log.Log(log.Entrypoint).Info("rescind",
			zap.String("frameworkID", frameworkID),
			zap.String("agentID", agentID),
			zap.String("offerID", offerID))
	}

	ctx, err := entrypoint.StartAllServices(conf, quota.NewInMemoryRegistry(), offerCallback, rescindCallback, nil)
	if err != nil {
		log.Log(log.Entrypoint).Fatal("failed to start services", zap.Error(err))
	}
	defer ctx.StopAll()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signalChan
	log.Log(log.Entrypoint).Info("shutting down", zap.String("signal", sig.String()))
}
