package gateway

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/bnema/helper-gateway/internal/domain"
	"github.com/goccy/go-json"
)

const (
	maxResponseBytes     = 1 << 20
	maxErrorMessageBytes = 512
)

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r response) ok() bool {
	return r.status >= http.StatusOK && r.status < http.StatusMultipleChoices
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// decodeSuccess normalizes a 2xx body. The backend wraps payloads in
// {success, data, error}; bodies without the wrapper are returned whole.
func decodeSuccess(resp response) domain.Result {
	body := bytes.TrimSpace(resp.body)
	if len(body) == 0 {
		return domain.Result{Success: true, Status: resp.status}
	}
	if !json.Valid(body) {
		raw, err := json.Marshal(string(body))
		if err != nil {
			return domain.Failure(resp.status, "decode response body: %v", err)
		}
		return domain.Result{Success: true, Data: raw, Status: resp.status}
	}

	var env envelope
	if body[0] != '{' || json.Unmarshal(body, &env) != nil {
		return domain.Result{Success: true, Data: json.RawMessage(body), Status: resp.status}
	}
	if env.Success != nil && !*env.Success {
		message := firstNonEmpty(env.Error, env.Message)
		if message == "" {
			message = fmt.Sprintf("Request failed with status %d", resp.status)
		}
		return domain.Result{Success: false, Error: message, Status: resp.status}
	}

	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 {
		if env.Success != nil {
			return domain.Result{Success: true, Status: resp.status}
		}
		data = body
	}
	return domain.Result{Success: true, Data: json.RawMessage(data), Status: resp.status}
}

// errorMessage extracts a message from a non-2xx body: JSON error, then JSON
// message, then the raw text, then a generic status line.
func errorMessage(resp response) string {
	body := bytes.TrimSpace(resp.body)
	if len(body) > 0 && body[0] == '{' {
		var payload struct {
			Error   json.RawMessage `json:"error"`
			Message string          `json:"message"`
		}
		if err := json.Unmarshal(body, &payload); err == nil {
			if message := decodeErrorField(payload.Error); message != "" {
				return message
			}
			if strings.TrimSpace(payload.Message) != "" {
				return strings.TrimSpace(payload.Message)
			}
		}
	}
	if len(body) > 0 {
		return truncateMessage(string(body))
	}
	return fmt.Sprintf("Request failed with status %d", resp.status)
}

// decodeErrorField accepts "error": "text" and "error": {"message": "text"}.
func decodeErrorField(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil {
		return strings.TrimSpace(nested.Message)
	}
	return ""
}

func truncateMessage(message string) string {
	if len(message) <= maxErrorMessageBytes {
		return message
	}
	cut := maxErrorMessageBytes
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut] + "..."
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
