// Package detail loads a single record by identifier, independent of any list.
//
// Selecting the identifier of the record already held, or of the request
// already in flight, does not fetch again. Selecting a different identifier
// cancels the in-flight request and fetches the new one. A completion replaces
// the held record only when it carries a record and still belongs to the
// latest selection; a response that arrives after a newer selection is
// dropped.
//
// Failures are reported to the error sink and leave the held record alone.
package detail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	client "github.com/hanpama/gqlfeed/internal/client"
	eventbus "github.com/hanpama/gqlfeed/internal/eventbus"
	events "github.com/hanpama/gqlfeed/internal/events"
)

// ErrRecordNotFound is reported when the response carries data but no record
// for the requested identifier, and no server error explains why.
var ErrRecordNotFound = errors.New("detail: record not found")

// Status is the state of the current selection.
type Status int

const (
	Idle Status = iota
	Fetching
	Loaded
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Record is a loaded value with the identifier it was requested for.
type Record[ID comparable, T any] struct {
	ID    ID
	Value T
}

// RecordQuery binds a by-identifier GraphQL operation to its result shape R
// and record type T.
type RecordQuery[ID comparable, R, T any] struct {
	Operation *client.Operation
	Variables func(id ID) map[string]any
	// Record extracts the record from decoded data. Returning nil means the
	// data holds no record.
	Record func(data R) *T
}

type options[ID comparable, T any] struct {
	timeout    time.Duration
	onLoad     func(Record[ID, T])
	onComplete func()
}

// Option configures a Loader.
type Option[ID comparable, T any] func(*options[ID, T])

// WithTimeout bounds each fetch. Zero, the default, means no bound.
func WithTimeout[ID comparable, T any](d time.Duration) Option[ID, T] {
	return func(o *options[ID, T]) { o.timeout = d }
}

// WithOnLoad registers a hook called after a record replaced the held one.
func WithOnLoad[ID comparable, T any](fn func(Record[ID, T])) Option[ID, T] {
	return func(o *options[ID, T]) { o.onLoad = fn }
}

// WithOnComplete registers a hook called after every completion that was not
// stale.
func WithOnComplete[ID comparable, T any](fn func()) Option[ID, T] {
	return func(o *options[ID, T]) { o.onComplete = fn }
}

type request[ID comparable] struct {
	id      ID
	handle  client.RequestHandle
	release context.CancelFunc
}

// Loader is the detail-record controller for one by-identifier query.
type Loader[ID comparable, R, T any] struct {
	exec  client.QueryExecutor
	query RecordQuery[ID, R, T]
	sink  client.ErrorSink
	opt   options[ID, T]

	mu          sync.Mutex
	held        *Record[ID, T]
	selected    ID
	hasSelected bool
	status      Status
	active      *request[ID]
}

// NewLoader creates an idle Loader. A nil sink discards errors. It panics
// when exec, q.Operation or q.Record is nil.
func NewLoader[ID comparable, R, T any](exec client.QueryExecutor, q RecordQuery[ID, R, T], sink client.ErrorSink, opts ...Option[ID, T]) *Loader[ID, R, T] {
	if exec == nil || q.Operation == nil || q.Record == nil {
		panic("detail: NewLoader needs an executor, an operation and a record extractor")
	}
	var o options[ID, T]
	for _, f := range opts {
		f(&o)
	}
	if sink == nil {
		sink = client.DiscardSink
	}
	return &Loader[ID, R, T]{exec: exec, query: q, sink: sink, opt: o}
}

// Select makes id the current selection and fetches it unless the held
// record or the in-flight request already belongs to id. It reports whether a
// fetch was issued.
func (l *Loader[ID, R, T]) Select(ctx context.Context, id ID) bool {
	l.mu.Lock()
	if l.active != nil && l.active.id == id {
		l.mu.Unlock()
		return false
	}
	prev := l.active
	l.active = nil
	l.selected, l.hasSelected = id, true
	if l.held != nil && l.held.ID == id {
		l.status = Loaded
		l.mu.Unlock()
		cancelRequest(prev)
		return false
	}
	req := &request[ID]{id: id}
	reqCtx := ctx
	if l.opt.timeout > 0 {
		reqCtx, req.release = context.WithTimeout(ctx, l.opt.timeout)
	}
	l.active = req
	l.status = Fetching
	l.mu.Unlock()
	cancelRequest(prev)

	var vars map[string]any
	if l.query.Variables != nil {
		vars = l.query.Variables(id)
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
	h.Cancel()
	return true
}

func (l *Loader[ID, R, T]) complete(req *request[ID], res client.QueryResult[R], err error) {
	if req.release != nil {
		req.release()
	}
	l.mu.Lock()
	if l.active != req || l.selected != req.id {
		l.mu.Unlock()
		return
	}
	l.active = nil

	var errs []client.QueryError
	var loaded *Record[ID, T]
	if err != nil {
		errs = []client.QueryError{client.TransportError(err)}
	} else {
		if res.Data != nil {
			if v := l.query.Record(*res.Data); v != nil {
				loaded = &Record[ID, T]{ID: req.id, Value: *v}
			} else if len(res.Errors) == 0 {
				errs = append(errs, client.QueryError{Message: fmt.Sprintf("%s: %v", ErrRecordNotFound, req.id)})
			}
		}
		errs = append(errs, res.Errors...)
	}
	if loaded != nil {
		l.held = loaded
		l.status = Loaded
	} else {
		l.status = Failed
	}
	l.mu.Unlock()

	if loaded != nil {
		eventbus.Publish(context.Background(), events.RecordLoaded{
			OperationName: l.query.Operation.Name,
			ID:            fmt.Sprint(req.id),
		})
		if l.opt.onLoad != nil {
			l.opt.onLoad(*loaded)
		}
	}
	if len(errs) > 0 {
		l.sink.Report(errs)
	}
	if l.opt.onComplete != nil {
		l.opt.onComplete()
	}
}

// Current returns the held record if it belongs to the current selection.
func (l *Loader[ID, R, T]) Current() (Record[ID, T], bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil || !l.hasSelected || l.held.ID != l.selected {
		return Record[ID, T]{}, false
	}
	return *l.held, true
}

// Last returns the most recently loaded record, whatever is selected now.
func (l *Loader[ID, R, T]) Last() (Record[ID, T], bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		return Record[ID, T]{}, false
	}
	return *l.held, true
}

// Selected returns the current selection.
func (l *Loader[ID, R, T]) Selected() (ID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.selected, l.hasSelected
}

// Status returns the state of the current selection.
func (l *Loader[ID, R, T]) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// IsLoading reports whether a fetch is in flight.
func (l *Loader[ID, R, T]) IsLoading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active != nil
}

// CancelActive cancels the in-flight fetch, if any. The selection is kept and
// the status falls back to Loaded when the held record belongs to it, Idle
// otherwise. Selecting the same id again fetches it.
func (l *Loader[ID, R, T]) CancelActive() {
	l.mu.Lock()
	req := l.active
	l.active = nil
	if req != nil {
		if l.held != nil && l.held.ID == l.selected {
			l.status = Loaded
		} else {
			l.status = Idle
		}
	}
	l.mu.Unlock()
	cancelRequest(req)
}

func cancelRequest[ID comparable](req *request[ID]) {
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
