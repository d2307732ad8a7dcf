package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Location is a line/column pair in the query document.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// QueryError is one entry of a GraphQL response's "errors" list.
type QueryError struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e QueryError) Error() string {
	return e.Message
}

// QueryResult is the outcome of one query execution: a possibly partial
// payload plus zero or more independent errors. Both may be set at once.
type QueryResult[T any] struct {
	Data   *T
	Errors []QueryError
}

// HasData reports whether a payload is present.
func (r QueryResult[T]) HasData() bool { return r.Data != nil }

// Response is the untyped result a QueryExecutor delivers.
type Response = QueryResult[json.RawMessage]

// ErrEmptyResponse indicates a response body with neither data nor errors.
var ErrEmptyResponse = errors.New("client: response carries neither data nor errors")

// CodeTransportFailure tags errors synthesized for failed executions.
const CodeTransportFailure = "TRANSPORT_FAILURE"

// CodeDecodeFailure tags errors synthesized when data does not fit the
// expected result shape.
const CodeDecodeFailure = "DECODE_FAILURE"

type wireResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []QueryError    `json:"errors"`
}

// DecodeResponse reads a GraphQL response body.
func DecodeResponse(r io.Reader) (*Response, error) {
	var wr wireResponse
	if err := json.NewDecoder(r).Decode(&wr); err != nil {
		return nil, fmt.Errorf("client: decode response: %w", err)
	}
	res := &Response{Errors: wr.Errors}
	if !isNullJSON(wr.Data) {
		data := wr.Data
		res.Data = &data
	}
	if res.Data == nil && len(res.Errors) == 0 {
		return nil, ErrEmptyResponse
	}
	return res, nil
}

// TransportError converts a failure that produced no result into the single
// error reported for it.
func TransportError(err error) QueryError {
	return QueryError{
		Message:    err.Error(),
		Extensions: map[string]any{"code": CodeTransportFailure},
	}
}

func decode[T any](raw *Response) QueryResult[T] {
	out := QueryResult[T]{Errors: raw.Errors}
	if raw.Data == nil {
		return out
	}
	var v T
	if err := json.Unmarshal(*raw.Data, &v); err != nil {
		out.Errors = append(append([]QueryError(nil), raw.Errors...), QueryError{
			Message:    fmt.Sprintf("decode data: %v", err),
			Extensions: map[string]any{"code": CodeDecodeFailure},
		})
		return out
	}
	out.Data = &v
	return out
}

func isNullJSON(b json.RawMessage) bool {
	b = bytes.TrimSpace(b)
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}
