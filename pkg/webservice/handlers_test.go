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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/julienschmidt/httprouter"
	"gotest.tools/v3/assert"

	"github.com/helmsman-scheduler/helmsman-core/pkg/allocator"
	"github.com/helmsman-scheduler/helmsman-core/pkg/allocator/events"
	"github.com/helmsman-scheduler/helmsman-core/pkg/common/configs"
	"github.com/helmsman-scheduler/helmsman-core/pkg/common/resources"
	"github.com/helmsman-scheduler/helmsman-core/pkg/quota"
	"github.com/helmsman-scheduler/helmsman-core/pkg/webservice/dao"
)

type denyRoleAuthorizer struct {
	denied string
}

func (d *denyRoleAuthorizer) Authorize(principal, role string) bool {
	return role != d.denied
}

func newTestWebService(t *testing.T, authorizer Authorizer) (*httprouter.Router, *quota.InMemoryRegistry) {
	t.Helper()
	registry := quota.NewInMemoryRegistry()
	alloc, err := allocator.NewAllocator(configs.DefaultConfig(), registry,
		func(string, map[string]resources.Resources) {},
		func(string, string, string) {})
	assert.NilError(t, err)
	alloc.Start()
	t.Cleanup(alloc.Stop)

	alloc.AddAgent("agent1", "host1", resources.MustParse("cpus:8;mem:4096"), nil)
	alloc.AddFramework(events.FrameworkInfo{FrameworkID: "f-a", Role: "prod"}, true, nil)

	NewWebService(alloc, authorizer)
	return newRouter(), registry
}

func doRequest(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestSetQuotaEndpoint(t *testing.T) {
	router, registry := newTestWebService(t, nil)

	resp := doRequest(router, "POST", "/ws/v1/quota",
		`{"role":"prod","guarantee":{"cpus":2,"mem":1024}}`)
	assert.Equal(t, resp.Code, http.StatusOK)

	stored, err := registry.Recover()
	assert.NilError(t, err)
	assert.Equal(t, len(stored), 1)
	assert.Equal(t, stored[0].Role, "prod")
}

func TestSetQuotaValidationFailure(t *testing.T) {
	router, _ := newTestWebService(t, nil)

	// missing role
	resp := doRequest(router, "POST", "/ws/v1/quota", `{"guarantee":{"cpus":2}}`)
	assert.Equal(t, resp.Code, http.StatusBadRequest)

	// empty guarantee
	resp = doRequest(router, "POST", "/ws/v1/quota", `{"role":"prod"}`)
	assert.Equal(t, resp.Code, http.StatusBadRequest)

	// malformed body
	resp = doRequest(router, "POST", "/ws/v1/quota", `{"role":`)
	assert.Equal(t, resp.Code, http.StatusBadRequest)

	var apiError dao.APIError
	assert.NilError(t, json.Unmarshal(resp.Body.Bytes(), &apiError))
	assert.Equal(t, apiError.StatusCode, http.StatusBadRequest)
}

func TestSetQuotaCapacityConflict(t *testing.T) {
	router, _ := newTestWebService(t, nil)

	resp := doRequest(router, "POST", "/ws/v1/quota",
		`{"role":"prod","guarantee":{"cpus":100}}`)
	assert.Equal(t, resp.Code, http.StatusConflict)

	resp = doRequest(router, "POST", "/ws/v1/quota",
		`{"role":"prod","guarantee":{"cpus":100},"force":true}`)
	assert.Equal(t, resp.Code, http.StatusOK)
}

func TestSetQuotaUnauthorized(t *testing.T) {
	router, _ := newTestWebService(t, &denyRoleAuthorizer{denied: "secret"})

	resp := doRequest(router, "POST", "/ws/v1/quota",
		`{"role":"secret","guarantee":{"cpus":1}}`)
	assert.Equal(t, resp.Code, http.StatusUnauthorized)

	resp = doRequest(router, "POST", "/ws/v1/quota",
		`{"role":"prod","guarantee":{"cpus":1}}`)
	assert.Equal(t, resp.Code, http.StatusOK)
}

func TestSetQuotaStoreUnavailable(t *testing.T) {
	router, registry := newTestWebService(t, nil)
	registry.SetFault(errors.New("replica quorum lost"))

	resp := doRequest(router, "POST", "/ws/v1/quota",
		`{"role":"prod","guarantee":{"cpus":1}}`)
	assert.Equal(t, resp.Code, http.StatusServiceUnavailable)
}

func TestRemoveQuotaEndpoint(t *testing.T) {
	router, _ := newTestWebService(t, nil)

	resp := doRequest(router, "POST", "/ws/v1/quota",
		`{"role":"prod","guarantee":{"cpus":1}}`)
	assert.Equal(t, resp.Code, http.StatusOK)

	resp = doRequest(router, "DELETE", "/ws/v1/quota/prod", "")
	assert.Equal(t, resp.Code, http.StatusOK)

	// removing a role without quota is a client error
	resp = doRequest(router, "DELETE", "/ws/v1/quota/prod", "")
	assert.Equal(t, resp.Code, http.StatusBadRequest)
}

func TestGetQuotasEndpoint(t *testing.T) {
	router, _ := newTestWebService(t, nil)

	resp := doRequest(router, "GET", "/ws/v1/quota", "")
	assert.Equal(t, resp.Code, http.StatusOK)
	var quotas []*dao.QuotaDAOInfo
	assert.NilError(t, json.Unmarshal(resp.Body.Bytes(), &quotas))
	assert.Equal(t, len(quotas), 0)

	resp = doRequest(router, "POST", "/ws/v1/quota",
		`{"role":"prod","guarantee":{"cpus":2,"mem":1024}}`)
	assert.Equal(t, resp.Code, http.StatusOK)

	resp = doRequest(router, "GET", "/ws/v1/quota", "")
	assert.Equal(t, resp.Code, http.StatusOK)
	assert.NilError(t, json.Unmarshal(resp.Body.Bytes(), &quotas))
	assert.Equal(t, len(quotas), 1)
	assert.Equal(t, quotas[0].Role, "prod")
	assert.Equal(t, quotas[0].Guarantee["cpus"], 2.0)
	assert.Equal(t, quotas[0].Guarantee["mem"], 1024.0)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestWebService(t, nil)
	resp := doRequest(router, "GET", "/ws/v1/metrics", "")
	assert.Equal(t, resp.Code, http.StatusOK)
	assert.Assert(t, strings.Contains(resp.Body.String(), "helmsman_allocator"),
		"metrics exposition must include allocator metrics")
}
