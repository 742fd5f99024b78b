package shared

import "context"

type actorContextKey struct{}

// AnonymousActor is used when the identity layer supplied no caller id.
const AnonymousActor = "anonymous"

// ContextWithActor stores the opaque caller identifier in context. Identity
// is resolved by an external collaborator; this core never interprets it.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the caller identifier, falling back to
// AnonymousActor when none was set.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorContextKey{}).(string)
	if actor == "" {
		return AnonymousActor
	}
	return actor
}
