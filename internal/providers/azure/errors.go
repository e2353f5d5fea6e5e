/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package azure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"

	"github.com/stratoctl/vmpower/internal/providers/contracts"
)

// classify maps an ARM call error to the provider error taxonomy. The
// control plane's own diagnostic is kept as the error message so callers
// can surface it unchanged.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return contracts.NewCancelledError("request cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return contracts.NewTimeoutError("request timed out", err)
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		msg := armDiagnostic(respErr)
		switch {
		case respErr.StatusCode == http.StatusNotFound,
			respErr.ErrorCode == "ResourceNotFound",
			respErr.ErrorCode == "ResourceGroupNotFound",
			respErr.ErrorCode == "SubscriptionNotFound":
			return contracts.NewNotFoundError(msg, err)
		case respErr.StatusCode == http.StatusUnauthorized,
			respErr.StatusCode == http.StatusForbidden,
			respErr.ErrorCode == "AuthorizationFailed",
			respErr.ErrorCode == "AuthenticationFailed":
			return contracts.NewUnauthorizedError(msg, err)
		case respErr.StatusCode == http.StatusTooManyRequests,
			respErr.ErrorCode == "TooManyRequests":
			return contracts.NewThrottledError(msg, err)
		case respErr.StatusCode >= http.StatusInternalServerError:
			return contracts.NewUnavailableError(msg, err)
		default:
			return contracts.NewInternalError(msg, err)
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return contracts.NewUnavailableError(urlErr.Error(), err)
	}

	return contracts.NewInternalError(err.Error(), err)
}

// armDiagnostic extracts a one-line diagnostic from an ARM error response,
// preferring the error body's own message.
func armDiagnostic(respErr *azcore.ResponseError) string {
	if respErr.RawResponse != nil {
		if body, err := runtime.Payload(respErr.RawResponse); err == nil {
			var armBody struct {
				Error struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			if json.Unmarshal(body, &armBody) == nil && armBody.Error.Message != "" {
				return armBody.Error.Message
			}
		}
	}
	if respErr.ErrorCode != "" {
		return fmt.Sprintf("%s (HTTP %d)", respErr.ErrorCode, respErr.StatusCode)
	}
	return fmt.Sprintf("HTTP %d", respErr.StatusCode)
}

// statusLabel maps a call result to a metrics label
func statusLabel(err error) string {
	if err == nil {
		return "2xx"
	}

	var respErr *azcore.ResponseError
	switch {
	case errors.As(err, &respErr):
		return strconv.Itoa(respErr.StatusCode)
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
