package detail

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	client "github.com/hanpama/gqlfeed/internal/client"
	eventbus "github.com/hanpama/gqlfeed/internal/eventbus"
	events "github.com/hanpama/gqlfeed/internal/events"
)

var itemOp = client.MustOperation(`query Item($id: ID!) { item(id: $id) { id name } }`)

type item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type itemData struct {
	Item *item `json:"item"`
}

func itemQuery() RecordQuery[string, itemData, item] {
	return RecordQuery[string, itemData, item]{
		Operation: itemOp,
		Variables: func(id string) map[string]any { return map[string]any{"id": id} },
		Record:    func(d itemData) *item { return d.Item },
	}
}

type recordingSink struct {
	mu   sync.Mutex
	msgs []string
}

func (s *recordingSink) Report(errs []client.QueryError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range errs {
		s.msgs = append(s.msgs, e.Message)
	}
}

func TestSelectLoadsRecord(t *testing.T) {
	exec := client.NewMockExecutor()
	l := NewLoader(exec, itemQuery(), nil)
	ctx := context.Background()

	require.Equal(t, Idle, l.Status())
	_, ok := l.Current()
	require.False(t, ok)

	require.True(t, l.Select(ctx, "25"))
	require.Equal(t, Fetching, l.Status())
	require.True(t, l.IsLoading())
	exec.CompleteJSON(0, `{"data":{"item":{"id":"25","name":"Falcon"}}}`)

	rec, ok := l.Current()
	require.True(t, ok)
	want := Record[string, item]{ID: "25", Value: item{ID: "25", Name: "Falcon"}}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, Loaded, l.Status())

	// Selecting the held id again is a no-op.
	require.False(t, l.Select(ctx, "25"))
	require.Equal(t, 1, exec.CallCount())
	again, ok := l.Current()
	require.True(t, ok)
	require.Equal(t, rec, again)
	require.Equal(t, map[string]any{"id": "25"}, exec.Calls()[0].Variables)
}

func TestSelectSameIDWhileInFlight(t *testing.T) {
	exec := client.NewMockExecutor()
	l := NewLoader(exec, itemQuery(), nil)
	ctx := context.Background()

	require.True(t, l.Select(ctx, "7"))
	require.False(t, l.Select(ctx, "7"))
	require.Equal(t, 1, exec.CallCount())
	require.False(t, exec.Calls()[0].Cancelled)
}

func TestStaleResponseDoesNotOverwriteNewerSelection(t *testing.T) {
	exec := client.NewMockExecutor()
	loads := 0
	l := NewLoader(exec, itemQuery(), nil, WithOnLoad(func(Record[string, item]) { loads++ }))
	ctx := context.Background()

	l.Select(ctx, "A")
	l.Select(ctx, "B")
	require.True(t, exec.Calls()[0].Cancelled, "request for A must be cancelled")

	exec.CompleteJSON(1, `{"data":{"item":{"id":"B","name":"bee"}}}`)
	exec.CompleteJSON(0, `{"data":{"item":{"id":"A","name":"ay"}}}`)

	rec, ok := l.Current()
	require.True(t, ok)
	require.Equal(t, "B", rec.ID)
	require.Equal(t, "bee", rec.Value.Name)
	require.Equal(t, 1, loads)
	require.Equal(t, Loaded, l.Status())
}

func TestStaleResponseBeforeNewerCompletes(t *testing.T) {
	exec := client.NewMockExecutor()
	l := NewLoader(exec, itemQuery(), nil)
	ctx := context.Background()

	l.Select(ctx, "A")
	l.Select(ctx, "B")
	exec.CompleteJSON(0, `{"data":{"item":{"id":"A","name":"ay"}}}`)
	_, ok := l.Last()
	require.False(t, ok, "superseded response must not be held")
	require.True(t, l.IsLoading())
	require.Equal(t, Fetching, l.Status())
}

func TestFailureKeepsHeldRecord(t *testing.T) {
	exec := client.NewMockExecutor()
	sink := &recordingSink{}
	l := NewLoader(exec, itemQuery(), sink)
	ctx := context.Background()

	l.Select(ctx, "A")
	exec.CompleteJSON(0, `{"data":{"item":{"id":"A","name":"ay"}}}`)

	l.Select(ctx, "B")
	exec.CompleteJSON(1, `{"data":null,"errors":[{"message":"forbidden"}]}`)
	require.Equal(t, Failed, l.Status())
	require.Equal(t, []string{"forbidden"}, sink.msgs)

	_, ok := l.Current()
	require.False(t, ok, "held record belongs to A, not the selected B")
	last, ok := l.Last()
	require.True(t, ok)
	require.Equal(t, "A", last.ID)
	sel, _ := l.Selected()
	require.Equal(t, "B", sel)

	// Failed is not terminal: the same id can be retried.
	require.True(t, l.Select(ctx, "B"))
	exec.Complete(2, nil, errors.New("timeout"))
	require.Equal(t, []string{"forbidden", "timeout"}, sink.msgs)

	// Going back to A needs no fetch.
	require.False(t, l.Select(ctx, "A"))
	require.Equal(t, 3, exec.CallCount())
	require.Equal(t, Loaded, l.Status())
}

func TestSelectHeldIDCancelsOtherFetch(t *testing.T) {
	exec := client.NewMockExecutor()
	l := NewLoader(exec, itemQuery(), nil)
	ctx := context.Background()

	l.Select(ctx, "A")
	exec.CompleteJSON(0, `{"data":{"item":{"id":"A","name":"ay"}}}`)
	l.Select(ctx, "B")
	require.False(t, l.Select(ctx, "A"))
	require.True(t, exec.Calls()[1].Cancelled)

	exec.CompleteJSON(1, `{"data":{"item":{"id":"B","name":"bee"}}}`)
	rec, ok := l.Current()
	require.True(t, ok)
	require.Equal(t, "A", rec.ID)
}

func TestPartialSuccessLoadsAndReports(t *testing.T) {
	exec := client.NewMockExecutor()
	sink := &recordingSink{}
	l := NewLoader(exec, itemQuery(), sink)

	l.Select(context.Background(), "A")
	exec.CompleteJSON(0, `{"data":{"item":{"id":"A","name":"ay"}},"errors":[{"message":"rocket unavailable","path":["item","rocket"]}]}`)
	rec, ok := l.Current()
	require.True(t, ok)
	require.Equal(t, "ay", rec.Value.Name)
	require.Equal(t, []string{"rocket unavailable"}, sink.msgs)
}

func TestMissingRecordReportsNotFound(t *testing.T) {
	exec := client.NewMockExecutor()
	sink := &recordingSink{}
	l := NewLoader(exec, itemQuery(), sink)

	l.Select(context.Background(), "404")
	exec.CompleteJSON(0, `{"data":{"item":null}}`)
	require.Equal(t, Failed, l.Status())
	require.Equal(t, []string{"detail: record not found: 404"}, sink.msgs)
}

func TestCancelActive(t *testing.T) {
	exec := client.NewMockExecutor()
	sink := &recordingSink{}
	l := NewLoader(exec, itemQuery(), sink)
	ctx := context.Background()

	l.Select(ctx, "A")
	l.CancelActive()
	require.False(t, l.IsLoading())
	require.Equal(t, Idle, l.Status())
	require.True(t, exec.Calls()[0].Cancelled)

	exec.Complete(0, nil, context.Canceled)
	require.Empty(t, sink.msgs)

	require.True(t, l.Select(ctx, "A"))
	require.Equal(t, 2, exec.CallCount())
}

func TestRecordLoadedEvent(t *testing.T) {
	b := eventbus.New()
	eventbus.Use(b)
	defer eventbus.Use(nil)
	var got []events.RecordLoaded
	eventbus.Subscribe(func(_ context.Context, e events.RecordLoaded) { got = append(got, e) })

	exec := client.NewMockResponderExecutor(func(_ *client.Operation, vars map[string]any) (*client.Response, error) {
		return client.DecodeResponse(strings.NewReader(`{"data":{"item":{"id":"` + vars["id"].(string) + `","name":"x"}}}`))
	})
	completes := 0
	l := NewLoader(exec, itemQuery(), nil, WithOnComplete[string, item](func() { completes++ }))
	require.True(t, l.Select(context.Background(), "9"))
	require.False(t, l.IsLoading())
	require.Equal(t, []events.RecordLoaded{{OperationName: "Item", ID: "9"}}, got)
	require.Equal(t, 1, completes)
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "idle", Idle.String())
	require.Equal(t, "fetching", Fetching.String())
	require.Equal(t, "loaded", Loaded.String())
	require.Equal(t, "failed", Failed.String())
	require.Equal(t, "Status(7)", Status(7).String())
}

func TestNewLoaderRequiresQuery(t *testing.T) {
	exec := client.NewMockExecutor()
	q := itemQuery()
	require.NotPanics(t, func() { NewLoader(exec, q, nil) })

	noRecord := q
	noRecord.Record = nil
	require.Panics(t, func() { NewLoader(exec, noRecord, nil) })

	noOp := q
	noOp.Operation = nil
	require.Panics(t, func() { NewLoader(exec, noOp, nil) })

	require.Panics(t, func() { NewLoader[string, itemData, item](nil, q, nil) })
}
