package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// GenericRejection is shown when a rejected submission carries no usable message.
const GenericRejection = "Failed to submit"

// TransportError is a fetch-level failure: network error, non-2xx status or
// an undecodable body.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: backend returned status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RejectionError is a submission the backend refused.
type RejectionError struct {
	StatusCode int
	Message    string
}

func (e *RejectionError) Error() string {
	return e.Message
}

// RejectionMessage picks the best user-facing message from a rejection body:
// a list of field errors, then a detail string, then a message string, then
// the raw text for non-JSON bodies, then GenericRejection.
func RejectionMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	var data map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &data); err != nil {
		var other interface{}
		if json.Unmarshal(trimmed, &other) == nil {
			// Valid JSON that is not an object.
			return GenericRejection
		}
		if text := string(trimmed); text != "" {
			return text
		}
		return GenericRejection
	}

	if detail, ok := data["detail"]; ok {
		var items []json.RawMessage
		if json.Unmarshal(detail, &items) == nil {
			if msg := joinFieldErrors(items); msg != "" {
				return msg
			}
			return GenericRejection
		}
		var s string
		if json.Unmarshal(detail, &s) == nil && s != "" {
			return s
		}
	}
	if raw, ok := data["message"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			return s
		}
	}
	return GenericRejection
}

func joinFieldErrors(items []json.RawMessage) string {
	msgs := make([]string, 0, len(items))
	for _, item := range items {
		var fe struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(item, &fe) == nil && fe.Msg != "" {
			msgs = append(msgs, fe.Msg)
			continue
		}
		var compact bytes.Buffer
		if json.Compact(&compact, item) == nil {
			msgs = append(msgs, compact.String())
		} else {
			msgs = append(msgs, string(item))
		}
	}
	return strings.Join(msgs, ", ")
}
