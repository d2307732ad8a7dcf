package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockCall is a snapshot of one Execute invocation.
type MockCall struct {
	Operation string
	Variables map[string]any
	// Cancelled is true when the handle was cancelled before completion.
	Cancelled bool
	Completed bool
}

type mockCall struct {
	op        string
	variables map[string]any
	handle    *Handle
	done      func(*Response, error)
	completed bool
}

// MockResponder produces a completion synchronously inside Execute.
type MockResponder func(op *Operation, variables map[string]any) (*Response, error)

// MockExecutor implements QueryExecutor for tests. By default completions are
// held until the test delivers them with Complete, in any order, which makes
// it possible to script late, stale, and cancelled deliveries.
type MockExecutor struct {
	mu        sync.Mutex
	calls     []*mockCall
	responder MockResponder
}

var _ QueryExecutor = (*MockExecutor)(nil)

// NewMockExecutor creates a MockExecutor that holds every completion.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{}
}

// NewMockResponderExecutor creates a MockExecutor that completes each call
// synchronously, before Execute returns, with the responder's result.
func NewMockResponderExecutor(fn MockResponder) *MockExecutor {
	return &MockExecutor{responder: fn}
}

// Execute records the call and returns its handle.
func (m *MockExecutor) Execute(ctx context.Context, op *Operation, variables map[string]any, done func(*Response, error)) RequestHandle {
	_ = ctx
	vars := make(map[string]any, len(variables))
	for k, v := range variables {
		vars[k] = v
	}
	c := &mockCall{op: op.Name, variables: vars, handle: NewHandle(nil), done: done}
	m.mu.Lock()
	m.calls = append(m.calls, c)
	idx := len(m.calls) - 1
	responder := m.responder
	m.mu.Unlock()

	if responder != nil {
		res, err := responder(op, vars)
		m.Complete(idx, res, err)
	}
	return c.handle
}

// Complete delivers the completion of call i. It panics when the call does not
// exist or was already completed, since either is a broken test script.
func (m *MockExecutor) Complete(i int, res *Response, err error) {
	m.mu.Lock()
	if i < 0 || i >= len(m.calls) {
		m.mu.Unlock()
		panic(fmt.Sprintf("mock executor: no call %d (have %d)", i, len(m.calls)))
	}
	c := m.calls[i]
	if c.completed {
		m.mu.Unlock()
		panic(fmt.Sprintf("mock executor: call %d already completed", i))
	}
	c.completed = true
	m.mu.Unlock()

	c.handle.Finish()
	c.done(res, err)
}

// CompleteJSON decodes body as a GraphQL response and delivers it to call i.
func (m *MockExecutor) CompleteJSON(i int, body string) {
	res, err := DecodeResponse(strings.NewReader(body))
	if err != nil {
		panic(fmt.Sprintf("mock executor: bad response body: %v", err))
	}
	m.Complete(i, res, nil)
}

// Calls returns a snapshot of recorded Execute invocations.
func (m *MockExecutor) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	for i, c := range m.calls {
		out[i] = MockCall{
			Operation: c.op,
			Variables: c.variables,
			Cancelled: c.handle.Cancelled(),
			Completed: c.completed,
		}
	}
	return out
}

// CallCount returns the number of Execute invocations so far.
func (m *MockExecutor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
