package openai

import (
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// parseAPIError extracts a human-readable error from the API response and wraps
// it with the domain sentinel for status mapping.
func parseAPIError(kind string, err error, wrap error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail != "" {
			return fmt.Errorf("%s API error %d: %s: %w", kind, reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("%s API error %d: %s: %w", kind, reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s API error %d: %s: %w", kind, apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("%s request failed: %w: %w", kind, wrap, err)
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
