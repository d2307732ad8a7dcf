// Package feed drives "load next page" requests against a pagination.State.
//
// A Loader keeps at most one page request in flight. RequestNextPageIfNeeded
// while one is outstanding is a no-op: it neither queues nor restarts. Because
// a second request cannot start before the first completes, pages are applied
// in the order they were requested.
//
// Completion handling
//
//   - Data with a page: the page is applied, then any accompanying errors are
//     reported (partial success).
//   - No data: errors are reported, the state is unchanged.
//   - Transport failure: a single synthesized error is reported, the state is
//     unchanged.
//
// The Loader never retries on its own. Calling RequestNextPageIfNeeded again
// after a failure retries from the same cursor.
//
// Concurrency
//
// Completions may arrive on any goroutine. The Loader serializes them with its
// public methods internally, and hooks and the error sink run outside the lock.
// Each request carries a sequence number; a completion for a request that was
// cancelled or discarded by Reset changes nothing and reports nothing.
package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	client "github.com/hanpama/gqlfeed/internal/client"
	eventbus "github.com/hanpama/gqlfeed/internal/eventbus"
	events "github.com/hanpama/gqlfeed/internal/events"
	pagination "github.com/hanpama/gqlfeed/internal/pagination"
)

// ErrNoPage is reported when a response carries data but no page could be
// extracted from it, and the server sent no errors explaining why.
var ErrNoPage = errors.New("feed: response data contains no page")

// PageQuery binds a paginated GraphQL operation to its result shape R and
// item type T.
type PageQuery[R, T any] struct {
	Operation *client.Operation
	// Variables builds the variables for a page request. after is nil for the
	// first page.
	Variables func(after *pagination.Cursor) map[string]any
	// Page extracts the page from decoded data. Returning nil means the data
	// holds no page.
	Page func(data R) *pagination.Page[T]
}

type options[T any] struct {
	timeout    time.Duration
	stateOpts  []pagination.Option[T]
	onPage     func(added []T, page pagination.Page[T])
	onComplete func()
}

// Option configures a Loader.
type Option[T any] func(*options[T])

// WithTimeout bounds each page request. Zero, the default, means requests may
// stay in flight indefinitely.
func WithTimeout[T any](d time.Duration) Option[T] {
	return func(o *options[T]) { o.timeout = d }
}

// WithKey drops items whose key was already loaded in the current session.
func WithKey[T any](key func(T) string) Option[T] {
	return func(o *options[T]) { o.stateOpts = append(o.stateOpts, pagination.WithKey(key)) }
}

// WithOnPage registers a hook called after each applied page with the items
// that were appended.
func WithOnPage[T any](fn func(added []T, page pagination.Page[T])) Option[T] {
	return func(o *options[T]) { o.onPage = fn }
}

// WithOnComplete registers a hook called after every completion that was not
// stale, once state and error reporting are done.
func WithOnComplete[T any](fn func()) Option[T] {
	return func(o *options[T]) { o.onComplete = fn }
}

type request struct {
	seq     uint64
	handle  client.RequestHandle
	release context.CancelFunc
}

// Loader is the page-load controller for one paginated query.
type Loader[R, T any] struct {
	exec  client.QueryExecutor
	query PageQuery[R, T]
	sink  client.ErrorSink
	opt   options[T]

	mu     sync.Mutex
	state  *pagination.State[T]
	active *request
	seq    uint64
}

// NewLoader creates a Loader with an empty pagination session. A nil sink
// discards errors. It panics when exec, q.Operation or q.Page is nil.
func NewLoader[R, T any](exec client.QueryExecutor, q PageQuery[R, T], sink client.ErrorSink, opts ...Option[T]) *Loader[R, T] {
	if exec == nil || q.Operation == nil || q.Page == nil {
		panic("feed: NewLoader needs an executor, an operation and a page extractor")
	}
	var o options[T]
	for _, f := range opts {
		f(&o)
	}
	if sink == nil {
		sink = client.DiscardSink
	}
	return &Loader[R, T]{
		exec:  exec,
		query: q,
		sink:  sink,
		opt:   o,
		state: pagination.NewState(o.stateOpts...),
	}
}

// RequestNextPageIfNeeded issues a fetch for the next page unless one is
// already in flight or the collection has no further page. It reports whether
// a request was issued.
func (l *Loader[R, T]) RequestNextPageIfNeeded(ctx context.Context) bool {
	l.mu.Lock()
	if l.active != nil {
		l.mu.Unlock()
		return false
	}
	after, pos := l.state.NextCursor()
	if pos == pagination.End {
		l.mu.Unlock()
		return false
	}
	l.seq++
	req := &request{seq: l.seq}
	reqCtx := ctx
	if l.opt.timeout > 0 {
		reqCtx, req.release = context.WithTimeout(ctx, l.opt.timeout)
	}
	l.active = req
	l.mu.Unlock()

	var vars map[string]any
	if l.query.Variables != nil {
		vars = l.query.Variables(after)
	}
	h := client.Fetch(reqCtx, l.exec, l.query.Operation, vars, func(res client.QueryResult[R], err error) {
		l.complete(req, res, err)
	})

	l.mu.Lock()
	if l.active == req {
		req.handle = h
		l.mu.Unlock()
		return true
	}
	l.mu.Unlock()
	// Completed synchronously, or cancelled before Execute returned.
	h.Cancel()
	return true
}

func (l *Loader[R, T]) complete(req *request, res client.QueryResult[R], err error) {
	if req.release != nil {
		req.release()
	}
	l.mu.Lock()
	if l.active != req {
		l.mu.Unlock()
		return
	}
	l.active = nil

	var errs []client.QueryError
	var added []T
	var applied *pagination.Page[T]
	if err != nil {
		errs = []client.QueryError{client.TransportError(err)}
	} else {
		if res.Data != nil {
			if p := l.query.Page(*res.Data); p != nil {
				added = l.state.Apply(*p)
				applied = p
			} else if len(res.Errors) == 0 {
				errs = append(errs, client.QueryError{Message: ErrNoPage.Error()})
			}
		}
		errs = append(errs, res.Errors...)
	}
	total := l.state.Len()
	l.mu.Unlock()

	if applied != nil {
		eventbus.Publish(context.Background(), events.PageApplied{
			OperationName: l.query.Operation.Name,
			Items:         len(added),
			Total:         total,
			HasMore:       applied.HasMore,
		})
		if l.opt.onPage != nil {
			l.opt.onPage(added, *applied)
		}
	}
	if len(errs) > 0 {
		l.sink.Report(errs)
	}
	if l.opt.onComplete != nil {
		l.opt.onComplete()
	}
}

// IsLoading reports whether a page request is in flight.
func (l *Loader[R, T]) IsLoading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active != nil
}

// CancelActive cancels and releases the in-flight request, if any. Its
// completion, should it still arrive, is ignored.
func (l *Loader[R, T]) CancelActive() {
	l.mu.Lock()
	req := l.active
	l.active = nil
	l.mu.Unlock()
	cancelRequest(req)
}

// Reset cancels the in-flight request and starts a new, empty session.
func (l *Loader[R, T]) Reset() {
	l.mu.Lock()
	req := l.active
	l.active = nil
	l.state.Reset()
	l.mu.Unlock()
	cancelRequest(req)
}

// Items returns a copy of the items accumulated in this session.
func (l *Loader[R, T]) Items() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Items()
}

// Len returns the number of accumulated items.
func (l *Loader[R, T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Len()
}

// IsExhausted reports whether the final page was applied.
func (l *Loader[R, T]) IsExhausted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.IsExhausted()
}

// Position reports where the next request would start.
func (l *Loader[R, T]) Position() pagination.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, pos := l.state.NextCursor()
	return pos
}

func cancelRequest(req *request) {
	if req == nil {
		return
	}
	if req.handle != nil {
		req.handle.Cancel()
	}
	if req.release != nil {
		req.release()
	}
}
