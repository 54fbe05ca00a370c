package shared

import "context"

// Role names issued by the external identity service.
const (
	RoleDoctor     = "doctor"
	RolePharmacist = "pharmacist"
	RoleFinance    = "finance"
	RoleAdmin      = "admin"
)

// Actor is the authenticated principal performing a request.
type Actor struct {
	ID   int64
	Role string
}

// IsZero reports whether no actor was resolved.
func (a Actor) IsZero() bool {
	return a.ID == 0 && a.Role == ""
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
