// Package restclient builds the resty clients used to talk to the external
// vendors and turns their failures into apperr.ExternalServiceError values.
package restclient

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/patric-chuzhbe/jjbank/internal/apperr"
	"github.com/patric-chuzhbe/jjbank/internal/logger"
)

// Options configures a vendor client.
type Options struct {
	// Service names the vendor in logs and errors, e.g. "plaid".
	Service string
	BaseURL string
	Timeout time.Duration
	// HTTPClient, when set, is used as the transport (an oauth2 client for example).
	HTTPClient *http.Client
}

// New returns a resty client bound to opts.BaseURL that logs each exchange at debug level.
func New(opts Options) *resty.Client {
	var client *resty.Client
	if opts.HTTPClient != nil {
		client = resty.NewWithClient(opts.HTTPClient)
	} else {
		client = resty.New()
	}

	client.SetBaseURL(opts.BaseURL)
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	// Every vendor answers JSON (or HAL JSON), whatever the declared type.
	client.OnBeforeRequest(func(_ *resty.Client, request *resty.Request) error {
		request.ForceContentType("application/json")
		return nil
	})

	service := opts.Service
	client.OnAfterResponse(func(_ *resty.Client, response *resty.Response) error {
		logger.Log.Debugw(
			"vendor call",
			"service", service,
			"method", response.Request.Method,
			"url", response.Request.URL,
			"status", response.StatusCode(),
			"duration", response.Time(),
		)
		return nil
	})

	return client
}

// Check converts a transport error or a non-2xx response into an
// *apperr.ExternalServiceError. It returns nil for successful responses.
func Check(service, op string, response *resty.Response, err error) error {
	if err != nil {
		return &apperr.ExternalServiceError{Service: service, Op: op, Err: err}
	}
	if response == nil {
		return &apperr.ExternalServiceError{Service: service, Op: op, Message: "empty response"}
	}
	if response.IsError() || response.StatusCode() >= http.StatusMultipleChoices {
		return &apperr.ExternalServiceError{
			Service:    service,
			Op:         op,
			StatusCode: response.StatusCode(),
			Message:    errorMessage(response.Body()),
		}
	}

	return nil
}

// errorMessage picks the human readable part out of the vendors' error bodies:
// Appwrite and Dwolla use "message", Plaid uses "error_message".
func errorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		if len(body) > 200 {
			body = body[:200]
		}
		return string(body)
	}

	for _, key := range []string{"error_message", "message", "error_description", "error"} {
		if value, ok := payload[key].(string); ok && value != "" {
			return value
		}
	}

	return ""
}
