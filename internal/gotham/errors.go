package gotham

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

const maxErrorMessage = 512

// APIError is the structured error body returned by the Gotham API. Bodies
// that do not decode are synthesized from the HTTP status.
type APIError struct {
	Name            string `json:"name,omitempty"`
	ErrorName       string `json:"errorName,omitempty"`
	ErrorType       string `json:"errorType,omitempty"`
	ErrorInstanceID string `json:"errorInstanceId,omitempty"`
	StatusCode      int    `json:"statusCode,omitempty"`
	Message         string `json:"message,omitempty"`
}

func (e *APIError) Error() string {
	name := e.ErrorName
	if name == "" {
		name = e.Name
	}
	switch {
	case name != "" && e.Message != "":
		return fmt.Sprintf("gotham: %s (%d): %s", name, e.StatusCode, e.Message)
	case name != "":
		return fmt.Sprintf("gotham: %s (%d)", name, e.StatusCode)
	case e.Message != "":
		return fmt.Sprintf("gotham: status %d: %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("gotham: status %d", e.StatusCode)
	}
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{}
	if len(body) > 0 && json.Unmarshal(body, apiErr) == nil {
		// A JSON body without a message keeps it empty so callers can show
		// their own fallback text.
		if apiErr.StatusCode == 0 {
			apiErr.StatusCode = status
		}
		return apiErr
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	if len(msg) > maxErrorMessage {
		cut := maxErrorMessage
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return &APIError{
		Name:       "HTTPError",
		StatusCode: status,
		Message:    msg,
	}
}

// AsAPIError converts any sequence failure into the structured form views
// render. Errors that did not come from the API keep their text as message.
func AsAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		cp := *apiErr
		return &cp
	}
	return &APIError{Name: "Error", Message: err.Error()}
}

// Message returns the human readable part of err, or fallback when there is none.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fallback
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallback
}
