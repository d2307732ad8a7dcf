// Package launches binds the feed and detail controllers to the launch
// directory API: the LaunchList paginated query and the LaunchDetails lookup.
package launches

import (
	_ "embed"
	"fmt"

	client "github.com/hanpama/gqlfeed/internal/client"
	detail "github.com/hanpama/gqlfeed/internal/detail"
	feed "github.com/hanpama/gqlfeed/internal/feed"
	language "github.com/hanpama/gqlfeed/internal/language"
	pagination "github.com/hanpama/gqlfeed/internal/pagination"
)

//go:embed schema.graphql
var schemaSDL string

const listQuery = `query LaunchList($pageSize: Int, $after: String) {
  launches(pageSize: $pageSize, after: $after) {
    cursor
    hasMore
    launches {
      id
      site
      isBooked
      mission {
        name
        missionPatch(size: SMALL)
      }
      rocket {
        id
        name
      }
    }
  }
}`

const detailsQuery = `query LaunchDetails($launchId: ID!) {
  launch(id: $launchId) {
    id
    site
    isBooked
    mission {
      name
      missionPatch(size: LARGE)
    }
    rocket {
      id
      name
      type
    }
  }
}`

var (
	// Schema is the launch directory schema the operations are checked against.
	Schema = mustSchema()

	ListOperation    = mustOperation(listQuery)
	DetailsOperation = mustOperation(detailsQuery)
)

func mustSchema() *language.Schema {
	s, err := client.LoadSchema("schema.graphql", schemaSDL)
	if err != nil {
		panic(fmt.Sprintf("launches: %v", err))
	}
	return s
}

func mustOperation(query string) *client.Operation {
	op := client.MustOperation(query)
	if err := op.Validate(Schema); err != nil {
		panic(fmt.Sprintf("launches: %v", err))
	}
	return op
}

// DefaultPageSize is the server's page size when none is sent.
const DefaultPageSize = 20

// NewListLoader creates a page loader over LaunchList. pageSize <= 0 leaves
// the server default.
func NewListLoader(exec client.QueryExecutor, sink client.ErrorSink, pageSize int, opts ...feed.Option[Launch]) *feed.Loader[ListData, Launch] {
	q := feed.PageQuery[ListData, Launch]{
		Operation: ListOperation,
		Variables: func(after *pagination.Cursor) map[string]any {
			vars := map[string]any{}
			if pageSize > 0 {
				vars["pageSize"] = pageSize
			}
			if after != nil {
				vars["after"] = string(*after)
			}
			return vars
		},
		Page: ListData.page,
	}
	return feed.NewLoader(exec, q, sink, opts...)
}

// ByID drops launches already loaded in the session. Offset-based servers
// can repeat items when the list shifts between requests.
func ByID() feed.Option[Launch] {
	return feed.WithKey(func(l Launch) string { return l.ID })
}

// NewDetailLoader creates a detail loader over LaunchDetails.
func NewDetailLoader(exec client.QueryExecutor, sink client.ErrorSink, opts ...detail.Option[string, Launch]) *detail.Loader[string, DetailsData, Launch] {
	q := detail.RecordQuery[string, DetailsData, Launch]{
		Operation: DetailsOperation,
		Variables: func(id string) map[string]any { return map[string]any{"launchId": id} },
		Record:    func(d DetailsData) *Launch { return d.Launch },
	}
	return detail.NewLoader(exec, q, sink, opts...)
}
