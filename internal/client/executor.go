package client

import (
	"context"
	"time"

	eventbus "github.com/hanpama/gqlfeed/internal/eventbus"
	events "github.com/hanpama/gqlfeed/internal/events"
	reqid "github.com/hanpama/gqlfeed/internal/reqid"
)

// QueryExecutor runs GraphQL queries asynchronously.
//
// Contract
//   - Execute never blocks on the network; completion is delivered through
//     done, on any goroutine.
//   - done is called exactly once per Execute: with a Response when the server
//     produced one, or with a non-nil error when no structured result exists
//     (network failure, undecodable body, cancellation).
//   - Cancelling the returned handle before done fires is always safe. It does
//     not suppress done.
//   - Response.Data and Response.Errors follow the partial-success rules of the
//     GraphQL response format: either may be present, or both.
type QueryExecutor interface {
	Execute(ctx context.Context, op *Operation, variables map[string]any, done func(*Response, error)) RequestHandle
}

// ErrorSink receives errors the controllers cannot surface through return
// values. How they are displayed is up to the host.
type ErrorSink interface {
	Report(errs []QueryError)
}

// SinkFunc adapts a function to ErrorSink.
type SinkFunc func(errs []QueryError)

func (f SinkFunc) Report(errs []QueryError) { f(errs) }

// DiscardSink drops every report.
var DiscardSink ErrorSink = SinkFunc(func([]QueryError) {})

// Fetch executes op through exec and decodes the payload into T. Every call
// gets its own request ID; one already in ctx becomes its parent.
//
// A payload that does not decode into T is dropped and replaced by a
// DECODE_FAILURE error, so done always sees a well-formed QueryResult. err is
// non-nil only for transport failures.
func Fetch[T any](ctx context.Context, exec QueryExecutor, op *Operation, variables map[string]any, done func(QueryResult[T], error)) RequestHandle {
	ctx, _ = reqid.NewContext(ctx)
	start := time.Now()
	eventbus.Publish(ctx, events.QueryStart{OperationName: op.Name, OperationType: op.Type()})
	return exec.Execute(ctx, op, variables, func(raw *Response, err error) {
		if err == nil && raw == nil {
			err = ErrEmptyResponse
		}
		fin := events.QueryFinish{
			OperationName: op.Name,
			OperationType: op.Type(),
			Err:           err,
			Duration:      time.Since(start),
		}
		if err != nil {
			eventbus.Publish(ctx, fin)
			done(QueryResult[T]{}, err)
			return
		}
		res := decode[T](raw)
		fin.HasData = res.Data != nil
		fin.Errors = make([]error, len(res.Errors))
		for i := range res.Errors {
			fin.Errors[i] = res.Errors[i]
		}
		eventbus.Publish(ctx, fin)
		done(res, nil)
	})
}
