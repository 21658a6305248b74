package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// UnknownRoute is the route echoed for messages that could not be parsed.
const UnknownRoute = "unknown"

// Protocol errors. Both are answered with an error response; neither closes
// the connection.
var (
	ErrMalformed      = errors.New("bridge: malformed request")
	ErrUnhandledRoute = errors.New("unhandled route")
)

// Request is a parsed request envelope.
//
// CorrelationID is kept as raw JSON so the response can echo it verbatim,
// including an explicit null. A nil CorrelationID means the field was absent.
type Request struct {
	URL           string          `json:"url"`
	CorrelationID json.RawMessage `json:"correlationId,omitempty"`
	Body          json.RawMessage `json:"body,omitempty"`
}

// ParseRequest decodes one inbound text message.
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if req.URL == "" {
		return nil, fmt.Errorf("%w: missing url", ErrMalformed)
	}
	return &req, nil
}

// HasBody reports whether the request carries a non-null body.
func (r *Request) HasBody() bool {
	b := bytes.TrimSpace(r.Body)
	return len(b) > 0 && !bytes.Equal(b, []byte("null"))
}

// Decode unmarshals the body into v. A missing body leaves v untouched.
func (r *Request) Decode(v any) error {
	if !r.HasBody() {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: body: %w", ErrMalformed, err)
	}
	return nil
}

// ResponseBody is either {success: true, data?} or {success: false, error}.
type ResponseBody struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Response is a response envelope.
type Response struct {
	URL           string          `json:"url"`
	CorrelationID json.RawMessage `json:"correlationId,omitempty"`
	Body          ResponseBody    `json:"body"`
}

// Success returns the success response to req.
func Success(req *Request, data any) Response {
	return Response{
		URL:           req.URL,
		CorrelationID: req.CorrelationID,
		Body:          ResponseBody{Success: true, Data: data},
	}
}

// Failure returns the error response to req. A nil req produces the
// response for an unparseable message.
func Failure(req *Request, err error) Response {
	resp := Response{
		URL:  UnknownRoute,
		Body: ResponseBody{Success: false, Error: err.Error()},
	}
	if req != nil {
		resp.URL = req.URL
		resp.CorrelationID = req.CorrelationID
	}
	return resp
}

// followUp carries data plus an action that runs after the response has been
// written.
type followUp struct {
	data any
	then func()
}

// Then returns a handler result whose response is data and whose fn runs
// once the response has been written to the connection (or failed to).
func Then(data any, fn func()) any {
	return followUp{data: data, then: fn}
}
