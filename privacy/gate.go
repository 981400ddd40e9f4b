package privacy

import (
	"context"
	"errors"
	"fmt"

	"github.com/syssam/strata"
	"github.com/syssam/strata/metamodel"
)

// Flag is a CRUD permission flag.
type Flag int

// Permission flags.
const (
	FlagCreate Flag = iota + 1
	FlagUpdate
	FlagDelete
)

// String returns the flag name.
func (f Flag) String() string {
	switch f {
	case FlagCreate:
		return "create"
	case FlagUpdate:
		return "update"
	case FlagDelete:
		return "delete"
	}
	return "flag"
}

func granted(p *metamodel.Permissions, f Flag) bool {
	switch f {
	case FlagCreate:
		return p.Create
	case FlagUpdate:
		return p.Update
	case FlagDelete:
		return p.Delete
	}
	return false
}

// Require checks that every flag is granted by the permissions of a model
// element. A missing annotation is a configuration error; any flag that
// is not granted denies.
func Require(element string, p *metamodel.Permissions, flags ...Flag) error {
	if p == nil {
		return strata.NewConfigError(element, "missing permissions annotation")
	}
	for _, f := range flags {
		if !granted(p, f) {
			return strata.NewAuthorizationError(strata.CodePermissionDenied, element, f.String()+" is not permitted")
		}
	}
	return nil
}

// requireAny checks that at least one of the flags is granted.
func requireAny(element string, p *metamodel.Permissions, flags ...Flag) error {
	if p == nil {
		return strata.NewConfigError(element, "missing permissions annotation")
	}
	for _, f := range flags {
		if granted(p, f) {
			return nil
		}
	}
	return strata.NewAuthorizationError(strata.CodePermissionDenied, element, fmt.Sprintf("none of %v is permitted", flags))
}

// Gate authorizes operation calls. The rule chain runs authentication
// first, then the authorizer of the operation behaviour, the signed
// identifier checks and finally the custom rules.
type Gate struct {
	signer *Signer
	rules  []Rule
	policy Policy
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithSigner enables signed identifier verification for reference
// operations.
func WithSigner(s *Signer) GateOption {
	return func(g *Gate) { g.signer = s }
}

// WithRules appends custom rules evaluated after the built-in checks.
func WithRules(rules ...Rule) GateOption {
	return func(g *Gate) { g.rules = append(g.rules, rules...) }
}

// NewGate returns a gate with the built-in rule chain.
func NewGate(opts ...GateOption) *Gate {
	g := &Gate{}
	for _, opt := range opts {
		opt(g)
	}
	g.policy = append(Policy{DenyIfNoActor(), RuleFunc(authorizeBehaviour), RuleFunc(g.verifyIdentifiers)}, g.rules...)
	return g
}

// Signer returns the signer of the gate, or nil.
func (g *Gate) Signer() *Signer { return g.signer }

// Authorize evaluates the rule chain for r. Denials are returned as
// *strata.AuthorizationError, model defects as *strata.ConfigError.
func (g *Gate) Authorize(ctx context.Context, r *Request) (*Grant, error) {
	if r.Operation == nil || r.Operation.Owner == nil {
		return nil, strata.NewConfigError("operation", "authorization of an unresolved operation")
	}
	r.grant = Grant{}
	err := g.policy.EvalOperation(ctx, r)
	if err == nil {
		grant := r.grant
		return &grant, nil
	}
	var ae *strata.AuthorizationError
	switch {
	case errors.As(err, &ae):
		if ae.Operation == "" {
			ae.Operation = r.Operation.Name
		}
		return nil, ae
	case errors.Is(err, Deny):
		ae = strata.NewAuthorizationError(strata.CodePermissionDenied, r.Operation.Owner.Name, err.Error())
		ae.Operation = r.Operation.Name
		return nil, ae
	}
	return nil, err
}

// Root checks the flags of the transfer type a mutation is planned for.
func (g *Gate) Root(t *metamodel.TransferType, flags ...Flag) error {
	return Require(t.Name, t.Permissions, flags...)
}

// Nested checks the flags of a relation for changes made through a
// payload of its owner, e.g. creating contained children.
func (g *Gate) Nested(rel *metamodel.TransferRelation, flags ...Flag) error {
	return Require(rel.QualifiedName(), rel.Permissions, flags...)
}

// authorizeBehaviour checks the CRUD flags the behaviour of the operation
// needs. It skips when they are granted.
func authorizeBehaviour(_ context.Context, r *Request) error {
	op := r.Operation
	owner := op.Owner
	var err error
	switch op.Behaviour {
	case metamodel.BehaviourList, metamodel.BehaviourRefresh:
	case metamodel.BehaviourCreate, metamodel.BehaviourGetTemplate:
		err = Require(owner.Name, owner.Permissions, FlagCreate)
	case metamodel.BehaviourUpdate:
		err = Require(owner.Name, owner.Permissions, FlagUpdate)
	case metamodel.BehaviourDelete:
		err = Require(owner.Name, owner.Permissions, FlagDelete)
	case metamodel.BehaviourSetReference, metamodel.BehaviourAddReference:
		err = errors.Join(
			Require(owner.Name, owner.Permissions, FlagUpdate),
			Require(op.Relation.QualifiedName(), op.Relation.Permissions, FlagUpdate),
		)
	case metamodel.BehaviourUnsetReference, metamodel.BehaviourRemoveReference:
		err = errors.Join(
			Require(owner.Name, owner.Permissions, FlagUpdate),
			Require(op.Relation.QualifiedName(), op.Relation.Permissions, FlagDelete),
		)
	case metamodel.BehaviourGetRange, metamodel.BehaviourGetInputRange:
		err = requireAny(owner.Name, owner.Permissions, FlagCreate, FlagUpdate)
	default:
		return strata.NewConfigError(op.Name, "no authorizer for behaviour %q", op.Behaviour)
	}
	return decide(err)
}

// decide turns the result of flag checks into a decision: configuration
// errors abort, the first denial denies.
func decide(err error) error {
	if err == nil {
		return Skip
	}
	if strata.IsConfigError(err) {
		var ce *strata.ConfigError
		errors.As(err, &ce)
		return ce
	}
	var ae *strata.AuthorizationError
	if errors.As(err, &ae) {
		return denial(ae)
	}
	return err
}

// verifyIdentifiers checks the signed identifiers of reference operations:
// the owner must be an instance of the owner entity, the targets must have
// been minted by the range of the operation relation.
func (g *Gate) verifyIdentifiers(_ context.Context, r *Request) error {
	op := r.Operation
	if !op.Behaviour.ReferenceBehaviour() {
		return Skip
	}
	if g.signer == nil {
		return Skip
	}
	if r.Owner != "" {
		id, err := g.signer.Verify(r.Owner)
		if err != nil {
			return decide(err)
		}
		if e := op.Owner.Entity; e != nil && id.Entity != e.Name {
			return denial(strata.NewAuthorizationError(strata.CodeSignedIdentifierMismatch, op.Owner.Name,
				fmt.Sprintf("identifier of %s used for %s", id.Entity, e.Name)))
		}
		r.grant.Owner = &id
	}
	want := op.Relation.QualifiedName()
	for _, token := range r.Targets {
		id, err := g.signer.Verify(token)
		if err != nil {
			return decide(err)
		}
		if id.Relation != want {
			return denial(strata.NewAuthorizationError(strata.CodeSignedIdentifierMismatch, want,
				fmt.Sprintf("identifier minted for %q", id.Relation)))
		}
		r.grant.Targets = append(r.grant.Targets, id)
	}
	return Skip
}
