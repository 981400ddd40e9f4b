package privacy

import (
	"context"
	"slices"

	"github.com/syssam/strata"
)

// Actor is the authenticated principal calling an operation.
type Actor interface {
	// GetID returns the actor's unique identifier.
	GetID() string
	// GetTypeName returns the effective actor type, e.g. the name of the
	// transfer type describing the principal.
	GetTypeName() string
	// GetRoles returns the actor's roles.
	GetRoles() []string
}

type actorCtxKey struct{}

// WithActor returns a new context with the actor attached.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, a)
}

// ActorFromContext retrieves the actor from the context.
// Returns nil if no actor is present.
func ActorFromContext(ctx context.Context) Actor {
	a, _ := ctx.Value(actorCtxKey{}).(Actor)
	return a
}

// SimpleActor is a basic implementation of the Actor interface.
type SimpleActor struct {
	ID       string
	TypeName string
	Roles    []string
}

// GetID returns the actor ID.
func (a *SimpleActor) GetID() string { return a.ID }

// GetTypeName returns the actor type name.
func (a *SimpleActor) GetTypeName() string { return a.TypeName }

// GetRoles returns the actor's roles.
func (a *SimpleActor) GetRoles() []string { return a.Roles }

// DenyIfNoActor returns a rule that denies anonymous calls of operations
// that are not public with AUTHENTICATION_REQUIRED.
func DenyIfNoActor() Rule {
	return RuleFunc(func(ctx context.Context, r *Request) error {
		if ActorFromContext(ctx) != nil || r.Operation == nil || r.Operation.Public {
			return Skip
		}
		err := strata.NewAuthorizationError(strata.CodeAuthenticationRequired, r.Operation.Owner.Name, "actor required")
		err.Operation = r.Operation.Name
		return denial(err)
	})
}

// HasRole returns a rule that allows access if the actor has the specified
// role. It skips otherwise.
//
// Example:
//
//	privacy.NewGate(privacy.WithRules(
//	    privacy.HasRole("admin"),
//	))
func HasRole(role string) Rule {
	return HasAnyRole(role)
}

// HasAnyRole returns a rule that allows access if the actor has any of the
// specified roles. It skips otherwise.
func HasAnyRole(roles ...string) Rule {
	return ContextRule(func(ctx context.Context) error {
		a := ActorFromContext(ctx)
		if a == nil {
			return Skip
		}
		for _, role := range roles {
			if slices.Contains(a.GetRoles(), role) {
				return Allow
			}
		}
		return Skip
	})
}

// DenyActorType returns a rule denying actors of the given type.
func DenyActorType(typeName string) Rule {
	return ContextRule(func(ctx context.Context) error {
		if a := ActorFromContext(ctx); a != nil && a.GetTypeName() == typeName {
			return Denyf("privacy: actor type %s is not allowed", typeName)
		}
		return Skip
	})
}
