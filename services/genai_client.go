package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const genAIHTTPTimeout = 30 * time.Second

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

type genAIError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type genAIErrorEnvelope struct {
	Error *genAIError `json:"error,omitempty"`
}

func newDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: genAIHTTPTimeout}
}

func decodeGenAIError(body []byte) *genAIError {
	if len(body) == 0 {
		return nil
	}

	var envelope genAIErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}

	if envelope.Error == nil {
		return nil
	}

	envelope.Error.Message = strings.TrimSpace(envelope.Error.Message)
	return envelope.Error
}

func buildGenAIAPIError(statusCode int, body []byte) error {
	if apiErr := decodeGenAIError(body); apiErr != nil {
		if apiErr.Code != "" && apiErr.Message != "" {
			return fmt.Errorf("generation api error (%d, %s): %s", statusCode, apiErr.Code, apiErr.Message)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("generation api error (%d): %s", statusCode, apiErr.Message)
		}
		if apiErr.Code != "" {
			return fmt.Errorf("generation api error (%d, %s)", statusCode, apiErr.Code)
		}
	}

	snippet := strings.TrimSpace(string(body))
	if snippet == "" {
		snippet = http.StatusText(statusCode)
	}
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}

	return fmt.Errorf("generation api error (%d): %s", statusCode, snippet)
}
