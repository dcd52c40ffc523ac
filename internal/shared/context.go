package shared

import "context"

// ActorHeader carries the acting user id on API requests.
const ActorHeader = "X-User-ID"

type actorContextKey struct{}

// ContextWithActor stores the acting user id in context.
func ContextWithActor(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, userID)
}

// ActorFromContext extracts the acting user id from context.
func ActorFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(actorContextKey{}).(int64)
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}
