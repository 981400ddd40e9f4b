package privacy

import (
	"context"
	"errors"
	"fmt"

	"github.com/syssam/strata"
	"github.com/syssam/strata/metamodel"
)

// Policy decision sentinel errors.
//
// These errors are used as return values from rules to indicate how the
// policy evaluation should proceed. Use errors.Is() to check for them:
//
//	if errors.Is(err, privacy.Allow) { ... }
//	if errors.Is(err, privacy.Deny) { ... }
//	if errors.Is(err, privacy.Skip) { ... }
var (
	// Allow may be returned by rules to indicate that the policy
	// evaluation should terminate with an allow decision.
	Allow = errors.New("strata/privacy: allow rule")

	// Deny may be returned by rules to indicate that the policy
	// evaluation should terminate with a deny decision.
	Deny = errors.New("strata/privacy: deny rule")

	// Skip may be returned by rules to indicate that the policy
	// evaluation should continue to the next rule in the chain.
	Skip = errors.New("strata/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// denial is a Deny decision carrying the error reported to the caller.
func denial(err *strata.AuthorizationError) error {
	return fmt.Errorf("%w: %w", err, Deny)
}

// Request is an operation call under authorization.
type Request struct {
	Operation *metamodel.Operation
	// Owner is the signed identifier of the instance a relation operation
	// is called on. Empty for unbound operations.
	Owner string
	// Targets are the signed identifiers of the instances a reference
	// operation links or unlinks.
	Targets []string

	grant Grant
}

// Grant holds the identities verified while authorizing a request.
type Grant struct {
	Owner   *Identity
	Targets []Identity
}

// Rule decides on a request. It returns Allow, Deny, Skip or nil, which
// is equivalent to Skip. Any other error aborts the evaluation.
type Rule interface {
	EvalOperation(context.Context, *Request) error
}

// RuleFunc type is an adapter which allows the use of ordinary functions
// as rules.
type RuleFunc func(context.Context, *Request) error

// EvalOperation returns f(ctx, r).
func (f RuleFunc) EvalOperation(ctx context.Context, r *Request) error {
	return f(ctx, r)
}

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() Rule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() Rule {
	return fixedDecision{Deny}
}

// ContextRule creates a rule from a context evaluation function.
func ContextRule(eval func(context.Context) error) Rule {
	return RuleFunc(func(ctx context.Context, _ *Request) error {
		return eval(ctx)
	})
}

// OnBehaviour evaluates the given rule only for operations of the given
// behaviours.
func OnBehaviour(rule Rule, behaviours ...metamodel.Behaviour) Rule {
	return RuleFunc(func(ctx context.Context, r *Request) error {
		for _, b := range behaviours {
			if r.Operation != nil && r.Operation.Behaviour == b {
				return rule.EvalOperation(ctx, r)
			}
		}
		return Skip
	})
}

// Policy combines rules. The first decision other than Skip wins; a chain
// that only skips allows.
type Policy []Rule

// EvalOperation evaluates the rules in order.
func (p Policy) EvalOperation(ctx context.Context, r *Request) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, rule := range p {
		switch decision := rule.EvalOperation(ctx, r); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

type decisionCtxKey struct{}

// DecisionContext creates a new context from the given parent context with
// a policy decision attached to it. Evaluation under an Allow decision
// context skips every rule.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalOperation(context.Context, *Request) error {
	return f.decision
}
