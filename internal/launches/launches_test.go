package launches

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	client "github.com/hanpama/gqlfeed/internal/client"
	detail "github.com/hanpama/gqlfeed/internal/detail"
	pagination "github.com/hanpama/gqlfeed/internal/pagination"
)

func TestOperations(t *testing.T) {
	require.Equal(t, "LaunchList", ListOperation.Name)
	require.Equal(t, []string{"pageSize", "after"}, ListOperation.Variables())
	require.Equal(t, "LaunchDetails", DetailsOperation.Name)
	require.Equal(t, []string{"launchId"}, DetailsOperation.Variables())
}

func TestSchemaRejectsUnknownField(t *testing.T) {
	op := client.MustOperation(`query { launches { cursor rockets } }`)
	require.Error(t, op.Validate(Schema))
}

func TestListLoader(t *testing.T) {
	exec := client.NewMockExecutor()
	l := NewListLoader(exec, nil, 2, ByID())
	ctx := context.Background()

	require.True(t, l.RequestNextPageIfNeeded(ctx))
	require.Equal(t, map[string]any{"pageSize": 2}, exec.Calls()[0].Variables)
	exec.CompleteJSON(0, `{"data":{"launches":{"cursor":"1583556631","hasMore":true,"launches":[
		{"id":"109","site":"CCAFS SLC 40","isBooked":false,"mission":{"name":"Starlink-2","missionPatch":"https://images2.imgbox.com/small.png"},"rocket":{"id":"falcon9","name":"Falcon 9"}},
		{"id":"108","site":"VAFB SLC 4E","isBooked":true,"mission":null,"rocket":{"id":"falcon9","name":"Falcon 9"}}
	]}}}`)

	require.True(t, l.RequestNextPageIfNeeded(ctx))
	require.Equal(t, map[string]any{"pageSize": 2, "after": "1583556631"}, exec.Calls()[1].Variables)
	exec.CompleteJSON(1, `{"data":{"launches":{"cursor":"1581040531","hasMore":false,"launches":[
		{"id":"108","site":"VAFB SLC 4E","isBooked":true,"rocket":{"id":"falcon9","name":"Falcon 9"}},
		null,
		{"id":"107","site":"KSC LC 39A","isBooked":false,"rocket":{"id":"falcon9","name":"Falcon 9"}}
	]}}}`)

	ids := []string{}
	for _, it := range l.Items() {
		ids = append(ids, it.ID)
	}
	require.Equal(t, []string{"109", "108", "107"}, ids)
	require.True(t, l.IsExhausted())
	require.False(t, l.RequestNextPageIfNeeded(ctx))
	require.Equal(t, "Starlink-2", l.Items()[0].Mission.Name)
	require.Nil(t, l.Items()[1].Mission)
}

func TestListDataPage(t *testing.T) {
	require.Nil(t, ListData{}.page())

	p := ListData{Launches: &LaunchConnection{HasMore: false, Launches: []*Launch{{ID: "1"}}}}.page()
	want := &pagination.Page[Launch]{Items: []Launch{{ID: "1"}}}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Fatalf("page mismatch (-want +got):\n%s", diff)
	}
}

func TestDetailLoader(t *testing.T) {
	exec := client.NewMockExecutor()
	var errs []client.QueryError
	l := NewDetailLoader(exec, client.SinkFunc(func(e []client.QueryError) { errs = append(errs, e...) }))
	ctx := context.Background()

	require.True(t, l.Select(ctx, "25"))
	require.Equal(t, map[string]any{"launchId": "25"}, exec.Calls()[0].Variables)
	exec.CompleteJSON(0, `{"data":{"launch":{"id":"25","site":"CCAFS SLC 40","isBooked":false,
		"mission":{"name":"TESS","missionPatch":"https://images2.imgbox.com/large.png"},
		"rocket":{"id":"falcon9","name":"Falcon 9","type":"FT"}}}}`)

	rec, ok := l.Current()
	require.True(t, ok)
	require.Equal(t, "25", rec.ID)
	require.Equal(t, "FT", rec.Value.Rocket.Type)
	require.Equal(t, detail.Loaded, l.Status())

	require.False(t, l.Select(ctx, "25"))
	require.Equal(t, 1, exec.CallCount())

	require.True(t, l.Select(ctx, "9999"))
	exec.CompleteJSON(1, `{"data":{"launch":null}}`)
	require.Equal(t, detail.Failed, l.Status())
	require.Len(t, errs, 1)
	last, ok := l.Last()
	require.True(t, ok)
	require.Equal(t, "25", last.ID)
}
