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

package webservice

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/helmsman-scheduler/helmsman-core/pkg/allocator"
	"github.com/helmsman-scheduler/helmsman-core/pkg/log"
)

// Authorizer decides whether a principal may mutate quota for a role.
// A nil authorizer allows everything.
type Authorizer interface {
	Authorize(principal, role string) bool
}

var allocatorContext *allocator.Allocator
var authorizerRef Authorizer

type WebService struct {
	httpServer *http.Server
}

// NewWebService wires the REST layer to the allocator. The handlers read
// the allocator through a package reference the same way they are reached
// by the router, there is exactly one web service per process.
func NewWebService(alloc *allocator.Allocator, authorizer Authorizer) *WebService {
	allocatorContext = alloc
	authorizerRef = authorizer
	return &WebService{}
}

func newRouter() *httprouter.Router {
	router := httprouter.New()
	for _, webRoute := range webRoutes {
		router.Handle(webRoute.Method, webRoute.Pattern, loggingHandler(webRoute.HandlerFunc, webRoute.Name))
	}
	return router
}

func loggingHandler(inner httprouter.Handle, name string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		start := time.Now()
		inner(w, r, params)
		log.Log(log.Web).Debug("handled request",
			zap.String("name", name),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	}
}

// StartWebApp serves the REST interface on addr until StopWebApp.
func (m *WebService) StartWebApp(addr string) {
	router := newRouter()
	m.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Log(log.Web).Info("web-app started", zap.String("addr", addr))
	go func() {
		err := m.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Log(log.Web).Error("web-app failed", zap.Error(err))
		}
	}()
}

func (m *WebService) StopWebApp() error {
	if m.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return m.httpServer.Shutdown(ctx)
	}
	return nil
}
