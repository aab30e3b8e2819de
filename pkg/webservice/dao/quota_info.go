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

package dao

// QuotaRequest is the body of a set-quota call.
type QuotaRequest struct {
	Role      string             `json:"role"`
	Guarantee map[string]float64 `json:"guarantee"`
	Force     bool               `json:"force,omitempty"`
}

// QuotaDAOInfo is one stored quota as exposed over the REST interface.
type QuotaDAOInfo struct {
	Role      string             `json:"role"`
	Guarantee map[string]float64 `json:"guarantee"`
}

// APIError is the uniform error body for non-2xx responses.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

func NewAPIError(statusCode int, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Message:    message,
	}
}
