package reqid

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header carrying the request ID to the server.
const Header = "graphql-request-id"

type (
	key       struct{}
	parentKey struct{}
)

// NewContext returns a copy of parent with a new random request ID stored.
// An ID already present in parent is kept as the parent ID.
// It also returns the generated ID.
func NewContext(parent context.Context) (context.Context, string) {
	id := uuid.NewString()
	ctx := parent
	if prev, ok := FromContext(parent); ok {
		ctx = context.WithValue(ctx, parentKey{}, prev)
	}
	return context.WithValue(ctx, key{}, id), id
}

// FromContext extracts the request ID from ctx.
// It returns the ID and whether it was present.
func FromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(key{})
	id, ok := v.(string)
	return id, ok
}

// ParentFromContext returns the ID that was current when ctx got its own.
func ParentFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(parentKey{})
	id, ok := v.(string)
	return id, ok
}
