package sales

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// ErrTransport wraps failures to reach the sales API or read its response.
var ErrTransport = errors.New("sales api transport")

// APIError is a failure reported by the sales API, either through the HTTP
// status or through the statusCode and errors fields of the payload.
type APIError struct {
	Status   int
	Messages []string
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("sales api: status %d", e.Status)
	}
	return fmt.Sprintf("sales api: status %d: %s", e.Status, strings.Join(e.Messages, "; "))
}

// NotFound reports whether the API rejected the call because the resource
// does not exist.
func (e *APIError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// parseError inspects an HTTP response and returns nil when neither the
// status nor the payload signal a failure.
func parseError(status int, body []byte) *APIError {
	env := peekEnvelope(body)

	code := status
	if code < http.StatusBadRequest && env.statusCode >= http.StatusBadRequest {
		code = env.statusCode
	}
	if code < http.StatusBadRequest && len(env.errors) > 0 {
		code = http.StatusUnprocessableEntity
	}
	if code < http.StatusBadRequest {
		return nil
	}

	messages := env.errors
	if len(messages) == 0 && len(env.message) > 0 {
		messages = env.message
	}
	if len(messages) == 0 && status >= http.StatusBadRequest {
		messages = []string{http.StatusText(status)}
	}
	return &APIError{Status: code, Messages: messages}
}

type envelope struct {
	statusCode int
	errors     []string
	message    []string
}

// peekEnvelope reads the error related fields of a JSON object payload,
// ignoring everything else. Malformed payloads yield an empty envelope.
func peekEnvelope(body []byte) envelope {
	var env envelope
	body = bytes.TrimSpace(body)
	if len(body) == 0 || jx.DecodeBytes(body).Next() != jx.Object {
		return env
	}

	_ = jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "statusCode":
			if d.Next() != jx.Number {
				return d.Skip()
			}
			n, err := d.Int()
			if err != nil {
				return err
			}
			env.statusCode = n
			return nil
		case "errors":
			msgs, err := readMessages(d)
			env.errors = msgs
			return err
		case "message":
			msgs, err := readMessages(d)
			env.message = msgs
			return err
		default:
			return d.Skip()
		}
	})
	return env
}

// readMessages accepts a string, an object with a message field, or an
// array of either.
func readMessages(d *jx.Decoder) ([]string, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil || s == "" {
			return nil, err
		}
		return []string{s}, nil
	case jx.Object:
		var msg string
		err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) != "message" || d.Next() != jx.String {
				return d.Skip()
			}
			s, err := d.Str()
			msg = s
			return err
		})
		if err != nil || msg == "" {
			return nil, err
		}
		return []string{msg}, nil
	case jx.Array:
		var out []string
		err := d.Arr(func(d *jx.Decoder) error {
			msgs, err := readMessages(d)
			out = append(out, msgs...)
			return err
		})
		return out, err
	default:
		return nil, d.Skip()
	}
}
