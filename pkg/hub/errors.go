package hub

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// Error is the single error shape for hub calls. Status is zero when the
// request never produced a response.
type Error struct {
	Message string
	Status  int
	Code    string
	// Data holds field-level details such as validation messages.
	Data map[string]string
	Err  error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return "hub request failed: " + e.Message
	}
	if e.Code != "" {
		return fmt.Sprintf("hub error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("hub error %d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var he *Error
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}

// IsNotFound reports whether err is a hub 404.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// IsTransport reports whether err is a hub call that got no response.
func IsTransport(err error) bool {
	var he *Error
	return errors.As(err, &he) && he.Status == 0
}

type errorBody struct {
	Error      json.RawMessage            `json:"error"`
	Message    string                     `json:"message"`
	Code       json.RawMessage            `json:"code"`
	Validation map[string]json.RawMessage `json:"validation"`
}

const maxRawMessage = 512

func transportError(err error) *Error {
	return &Error{Message: err.Error(), Err: err}
}

// parseError builds an Error from a non-2xx response body.
func parseError(status int, body []byte) *Error {
	he := &Error{Status: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		he.Message = fallbackMessage(status, body)
		return he
	}

	he.Message = rawString(eb.Error)
	if he.Message == "" {
		he.Message = eb.Message
	}
	if he.Message == "" {
		he.Message = fallbackMessage(status, nil)
	}
	he.Code = rawString(eb.Code)

	if len(eb.Validation) > 0 {
		he.Data = make(map[string]string, len(eb.Validation))
		for field, raw := range eb.Validation {
			he.Data[field] = flatten(raw)
		}
		he.Message = fmt.Sprintf("%s (%s)", he.Message, formatDetails(he.Data))
	}

	return he
}

func fallbackMessage(status int, body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		if st := http.StatusText(status); st != "" {
			return st
		}
		return "status " + strconv.Itoa(status)
	}
	if len(text) > maxRawMessage {
		text = text[:maxRawMessage] + "..."
	}
	return text
}

// rawString renders a JSON scalar as plain text; strings are unquoted.
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

// flatten reduces a validation value to a single message. Lists of messages
// are joined with "; ".
func flatten(raw json.RawMessage) string {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if s := rawString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	}
	return rawString(raw)
}

func formatDetails(data map[string]string) string {
	fields := make([]string, 0, len(data))
	for field := range data {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+data[field])
	}
	return strings.Join(parts, ", ")
}
