package httptp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sony/gobreaker"

	client "github.com/hanpama/gqlfeed/internal/client"
	eventbus "github.com/hanpama/gqlfeed/internal/eventbus"
	events "github.com/hanpama/gqlfeed/internal/events"
	reqid "github.com/hanpama/gqlfeed/internal/reqid"
)

// Transport executes GraphQL queries with HTTP POST. Every Execute runs on its
// own goroutine under a context the returned handle cancels.
type Transport struct {
	endpoint string
	opts     *Options
	breaker  *gobreaker.CircuitBreaker

	mu     sync.Mutex // guards closed and wg.Add against Close
	wg     sync.WaitGroup
	closed bool
}

var _ client.QueryExecutor = (*Transport)(nil)

// New creates a Transport posting to endpoint.
func New(endpoint string, opts ...Option) (*Transport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	if o.Client == nil {
		o.Client = &http.Client{}
	}
	t := &Transport{endpoint: endpoint, opts: o}
	if o.BreakerMaxFailures > 0 {
		t.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    u.Host,
			Timeout: o.BreakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= o.BreakerMaxFailures
			},
			IsSuccessful: countsAsSuccess,
		})
	}
	return t, nil
}

type wireRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Execute implements client.QueryExecutor.
func (t *Transport) Execute(ctx context.Context, op *client.Operation, variables map[string]any, done func(*client.Response, error)) client.RequestHandle {
	ctx, cancel := context.WithCancel(ctx)
	h := client.NewHandle(cancel)
	body, err := json.Marshal(wireRequest{Query: op.Query, OperationName: op.Name, Variables: variables})
	if err != nil {
		h.Finish()
		cancel()
		go done(nil, fmt.Errorf("httptp: encode request: %w", err))
		return h
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		h.Finish()
		cancel()
		go done(nil, ErrClosed)
		return h
	}
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		defer cancel()
		res, err := t.do(ctx, body)
		h.Finish()
		done(res, err)
	}()
	return h
}

func (t *Transport) do(ctx context.Context, body []byte) (*client.Response, error) {
	if t.breaker == nil {
		return t.roundTrip(ctx, body)
	}
	v, err := t.breaker.Execute(func() (interface{}, error) {
		return t.roundTrip(ctx, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("httptp: %w", err)
		}
		return nil, err
	}
	return v.(*client.Response), nil
}

func (t *Transport) roundTrip(ctx context.Context, body []byte) (res *client.Response, err error) {
	if _, ok := ctx.Deadline(); !ok && t.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.RequestTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("httptp: build request: %w", err)
	}
	for k, vs := range t.opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/graphql-response+json, application/json")
	if id, ok := reqid.FromContext(ctx); ok {
		req.Header.Set(reqid.Header, id)
	}

	start := time.Now()
	status := 0
	eventbus.Publish(ctx, events.HTTPStart{Request: req})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{
			Request:  req,
			Status:   status,
			Err:      err,
			Duration: time.Since(start),
		})
	}()

	resp, err := t.opts.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	raw, err := readBody(resp.Body, t.opts.MaxBodyBytes)
	if err != nil {
		return nil, err
	}
	res, decodeErr := client.DecodeResponse(bytes.NewReader(raw))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil {
			return res, nil
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet(raw)}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("httptp: %w", decodeErr)
	}
	return res, nil
}

func readBody(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	raw, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > limit {
		return nil, ErrBodyTooLarge
	}
	return raw, nil
}

func snippet(raw []byte) string {
	const max = 256
	s := string(bytes.TrimSpace(raw))
	if len(s) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}

// countsAsSuccess keeps caller cancellations and client-side statuses from
// tripping the breaker.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode < 500
	}
	return false
}

// Close rejects new requests and waits for in-flight ones to deliver their
// completions.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	t.wg.Wait()
	return nil
}
