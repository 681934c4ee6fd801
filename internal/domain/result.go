package domain

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Result is the normalized outcome of every backend call. Callers branch on
// Success; failures carry a human readable Error and the HTTP Status when a
// response was received.
type Result struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Status  int             `json:"status,omitempty"`
}

func Failure(status int, format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...), Status: status}
}

// Decode unmarshals Data into v. A failed result decodes into an error
// carrying its message.
func (r Result) Decode(v any) error {
	if !r.Success {
		if r.Error == "" {
			return errors.New("request failed")
		}
		return errors.New(r.Error)
	}
	if len(r.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode result data: %w", err)
	}
	return nil
}

// Err returns nil for a successful result.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return r.Decode(nil)
}
