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

	"github.com/julienschmidt/httprouter"

	"github.com/helmsman-scheduler/helmsman-core/pkg/allocator"
	"github.com/helmsman-scheduler/helmsman-core/pkg/common/resources"
	"github.com/helmsman-scheduler/helmsman-core/pkg/quota"
	"github.com/helmsman-scheduler/helmsman-core/pkg/webservice/dao"
)

func writeHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
}

func buildJSONErrorResponse(w http.ResponseWriter, detail string, code int) {
	writeHeaders(w)
	w.WriteHeader(code)
	errorInfo := dao.NewAPIError(code, detail)
	if err := json.NewEncoder(w).Encode(errorInfo); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// quotaStatusCode maps an allocator-side quota failure to its HTTP status.
func quotaStatusCode(err error) int {
	switch {
	case errors.Is(err, allocator.ErrCapacityExceeded):
		return http.StatusConflict
	case errors.Is(err, allocator.ErrQuotaUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func authorized(r *http.Request, role string) bool {
	if authorizerRef == nil {
		return true
	}
	principal, _, _ := r.BasicAuth()
	return authorizerRef.Authorize(principal, role)
}

func setQuota(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var request dao.QuotaRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		buildJSONErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !authorized(r, request.Role) {
		buildJSONErrorResponse(w, "not authorized to set quota for role "+request.Role, http.StatusUnauthorized)
		return
	}

	guarantee := resources.Resources{}
	for name, value := range request.Guarantee {
		guarantee = append(guarantee, resources.Resource{
			Name:   name,
			Type:   resources.Scalar,
			Scalar: value,
		})
	}
	info := quota.QuotaInfo{Role: request.Role, Guarantee: guarantee}

	result := <-allocatorContext.SetQuota(info, request.Force)
	if result.Err != nil {
		buildJSONErrorResponse(w, result.Err.Error(), quotaStatusCode(result.Err))
		return
	}
	writeHeaders(w)
	w.WriteHeader(http.StatusOK)
}

func removeQuota(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	role := params.ByName("role")
	if !authorized(r, role) {
		buildJSONErrorResponse(w, "not authorized to remove quota for role "+role, http.StatusUnauthorized)
		return
	}

	result := <-allocatorContext.RemoveQuota(role)
	if result.Err != nil {
		buildJSONErrorResponse(w, result.Err.Error(), quotaStatusCode(result.Err))
		return
	}
	writeHeaders(w)
	w.WriteHeader(http.StatusOK)
}

func getQuotas(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	quotas := <-allocatorContext.GetQuotas()

	out := make([]*dao.QuotaDAOInfo, 0, len(quotas))
	for _, q := range quotas {
		out = append(out, &dao.QuotaDAOInfo{
			Role:      q.Role,
			Guarantee: q.Guarantee.ScalarValues(),
		})
	}
	writeHeaders(w)
	if err := json.NewEncoder(w).Encode(out); err != nil {
		buildJSONErrorResponse(w, err.Error(), http.StatusInternalServerError)
	}
}
