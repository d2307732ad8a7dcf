package events

import (
	"net/http"
	"time"
)

// HTTPStart is emitted before an HTTP round trip.
// Context carries the query's request ID.
type HTTPStart struct {
	Request *http.Request
}

// HTTPFinish is emitted after the round trip and body read complete.
// Status is 0 when no response was received.
type HTTPFinish struct {
	Request  *http.Request
	Status   int
	Err      error
	Duration time.Duration
}
