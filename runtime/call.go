package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/executor"
	"github.com/syssam/strata/expr"
	"github.com/syssam/strata/metamodel"
	"github.com/syssam/strata/privacy"
	"github.com/syssam/strata/query"
	"github.com/syssam/strata/statement"
)

// Input is the argument of an operation call.
type Input struct {
	// Payload is the instance to create, update or delete.
	Payload statement.Payload
	// Owner identifies the instance refresh and reference operations are
	// called on: a signed identifier when the gate has a signer, the
	// plain identifier otherwise.
	Owner string
	// Targets identify the instances reference operations link or unlink,
	// the same way as Owner.
	Targets []string
	// Filter and Orders shape list and range results.
	Filter expr.Expr
	Orders []expr.Order
	Limit  int
	Offset int
}

// Call runs the named operation: the gate authorizes it first, then its
// behaviour compiles and executes a query, or plans and applies a
// mutation inside a transaction. Mutations return the instance as stored.
// With a signer, returned instances carry signed identifiers.
func (r *Runtime) Call(ctx context.Context, name string, in Input) ([]statement.Payload, error) {
	op := r.model.Operation(name)
	if op == nil {
		return nil, strata.NewConfigError(name, "unknown operation")
	}
	grant, err := r.gate.Authorize(ctx, &privacy.Request{Operation: op, Owner: in.Owner, Targets: in.Targets})
	if err != nil {
		return nil, err
	}
	start := time.Now()
	out, err := r.call(ctx, op, grant, in)
	if err != nil {
		return nil, err
	}
	r.logger.DebugContext(ctx, "strata: operation called",
		"operation", op.Name, "behaviour", op.Behaviour, "results", len(out), "duration", time.Since(start))
	return out, nil
}

func (r *Runtime) call(ctx context.Context, op *metamodel.Operation, grant *privacy.Grant, in Input) ([]statement.Payload, error) {
	t := op.Owner
	switch op.Behaviour {
	case metamodel.BehaviourList:
		m, _, err := r.Compile(t, in.queryOptions()...)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, strata.NewConfigError(t.Name, "list of an unmapped transfer type")
		}
		return r.collect(ctx, m, "", in)
	case metamodel.BehaviourRefresh:
		id, err := r.owner(grant, in)
		if err != nil {
			return nil, err
		}
		m, err := r.compile(t)
		if err != nil {
			return nil, err
		}
		p, err := r.first(ctx, r.selects, r.driver, m, t, id)
		if err != nil {
			return nil, err
		}
		return r.sign([]statement.Payload{p}, "")
	case metamodel.BehaviourGetTemplate:
		return []statement.Payload{template(t)}, nil
	case metamodel.BehaviourGetRange, metamodel.BehaviourGetInputRange:
		m, err := r.CompileRange(op.Relation)
		if opts := in.queryOptions(); len(opts) > 0 {
			m, err = r.compiler.CompileRange(op.Relation, opts...)
		}
		if err != nil {
			return nil, err
		}
		return r.collect(ctx, m, op.Relation.QualifiedName(), in)
	case metamodel.BehaviourCreate, metamodel.BehaviourUpdate, metamodel.BehaviourDelete,
		metamodel.BehaviourSetReference, metamodel.BehaviourUnsetReference,
		metamodel.BehaviourAddReference, metamodel.BehaviourRemoveReference:
		return r.mutate(ctx, op, grant, in)
	}
	return nil, strata.NewConfigError(op.Name, "behaviour %q is not supported", op.Behaviour)
}

func (in Input) queryOptions() []query.Option {
	var opts []query.Option
	if in.Filter != nil {
		opts = append(opts, query.WithFilter(in.Filter))
	}
	if len(in.Orders) > 0 {
		opts = append(opts, query.WithOrder(in.Orders...))
	}
	return opts
}

func (r *Runtime) collect(ctx context.Context, m *query.Model, relation string, in Input) ([]statement.Payload, error) {
	var out []statement.Payload
	for p, err := range r.Execute(ctx, m, executor.Limit(in.Limit), executor.Offset(in.Offset)) {
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return r.sign(out, relation)
}

// mutate plans and applies a mutation in a transaction and reads back the
// stored instance.
func (r *Runtime) mutate(ctx context.Context, op *metamodel.Operation, grant *privacy.Grant, in Input) ([]statement.Payload, error) {
	t := op.Owner
	m, err := r.compile(t)
	if err != nil {
		return nil, err
	}
	var out []statement.Payload
	err = r.transaction(ctx, func(tx dialect.Tx) error {
		req := statement.Request{Behaviour: op.Behaviour, Type: t, Relation: op.Relation, Payload: in.Payload}
		var id uuid.UUID
		switch op.Behaviour {
		case metamodel.BehaviourCreate:
		case metamodel.BehaviourUpdate, metamodel.BehaviourDelete:
			pid, ok, err := in.Payload.Identifier()
			if err != nil {
				return err
			}
			if !ok {
				return strata.ValidationErrors{{
					Code:    strata.CodeMissingRequired,
					Element: statement.KeyIdentifier,
					Entity:  t.Name,
					Message: "payload without identifier",
				}}
			}
			if req.Original, err = r.first(ctx, r.txSelects, tx, m, t, pid); err != nil {
				return err
			}
			if err := stale(t, pid, in.Payload, req.Original); err != nil {
				return err
			}
			id = pid
		default:
			if id, err = r.owner(grant, in); err != nil {
				return err
			}
			if req.Targets, err = r.targets(grant, in); err != nil {
				return err
			}
			links, err := r.links(op.Relation)
			if err != nil {
				return err
			}
			if req.Original, err = r.first(ctx, r.txSelects, tx, links, t, id); err != nil {
				return err
			}
			req.Owner = id
		}
		stmts, err := r.planner.Plan(ctx, req)
		if err != nil {
			return err
		}
		if err := r.modify.Apply(ctx, tx, stmts); err != nil {
			return err
		}
		switch op.Behaviour {
		case metamodel.BehaviourDelete:
			return nil
		case metamodel.BehaviourCreate:
			id = created(stmts)
		}
		p, err := r.first(ctx, r.txSelects, tx, m, t, id)
		if err != nil {
			return err
		}
		out = []statement.Payload{p}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx)
	return r.sign(out, "")
}

// transaction runs fn in a transaction of the driver, committing on
// success and rolling back on error or panic.
func (r *Runtime) transaction(ctx context.Context, fn func(dialect.Tx) error) error {
	tx, err := r.driver.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback()
			panic(v)
		}
	}()
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return errors.Join(err, &strata.RollbackError{Err: rerr})
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("strata: commit: %w", err)
	}
	return nil
}

func (r *Runtime) compile(t *metamodel.TransferType) (*query.Model, error) {
	m, ok, err := r.Compile(t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, strata.NewConfigError(t.Name, "transfer type is not mapped to an entity type")
	}
	return m, nil
}

// links returns a query loading an owner with the instances it currently
// links through rel, whether or not its transfer type embeds them.
func (r *Runtime) links(rel *metamodel.TransferRelation) (*query.Model, error) {
	return r.compiled.GetOrAdd("links:"+rel.QualifiedName(), func() (*query.Model, error) {
		owner := &metamodel.TransferType{Name: rel.Owner.Name, EntityName: rel.Owner.EntityName, Entity: rel.Owner.Entity}
		target := &metamodel.TransferType{Name: rel.Target.Name, EntityName: rel.Target.EntityName, Entity: rel.Target.Entity}
		link := *rel
		link.Owner, link.Target, link.Embedded = owner, target, true
		link.OrderBy, link.Range = nil, nil
		owner.Relations = []*metamodel.TransferRelation{&link}
		m, _, err := r.compiler.Compile(owner)
		return m, err
	})
}

// first returns the instance id of m, or a *strata.NotFoundError.
func (r *Runtime) first(ctx context.Context, s *executor.Select, db dialect.ExecQuerier, m *query.Model, t *metamodel.TransferType, id uuid.UUID) (statement.Payload, error) {
	for p, err := range s.Run(ctx, db, m, executor.Identifiers(id), executor.Limit(1)) {
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, strata.NewNotFoundError(t.Name, id)
}

// owner resolves the instance a refresh or reference operation is called
// on, preferring the identity verified by the gate.
func (r *Runtime) owner(grant *privacy.Grant, in Input) (uuid.UUID, error) {
	if grant != nil && grant.Owner != nil {
		return grant.Owner.ID, nil
	}
	if in.Owner != "" {
		return r.identifier(in.Owner)
	}
	id, ok, err := in.Payload.Identifier()
	if err != nil {
		return uuid.Nil, err
	}
	if !ok {
		return uuid.Nil, strata.ValidationErrors{{
			Code:    strata.CodeMissingRequired,
			Element: statement.KeyIdentifier,
			Message: "operation called without owner",
		}}
	}
	return id, nil
}

func (r *Runtime) targets(grant *privacy.Grant, in Input) ([]uuid.UUID, error) {
	if grant != nil && len(grant.Targets) > 0 {
		out := make([]uuid.UUID, len(grant.Targets))
		for i, id := range grant.Targets {
			out[i] = id.ID
		}
		return out, nil
	}
	out := make([]uuid.UUID, 0, len(in.Targets))
	for _, s := range in.Targets {
		id, err := r.identifier(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// identifier parses a plain identifier. Signed identifiers are only
// accepted through the gate.
func (r *Runtime) identifier(s string) (uuid.UUID, error) {
	if r.gate.Signer() != nil {
		return uuid.Nil, strata.NewAuthorizationError(strata.CodeInvalidSignedIdentifier, "", "identifier was not verified")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, strata.ValidationErrors{{
			Code:    strata.CodeNotFound,
			Element: statement.KeyIdentifier,
			Message: fmt.Sprintf("malformed identifier %q", s),
		}}
	}
	return id, nil
}

// sign adds signed identifiers to the payloads when the gate has a
// signer. Relation names the range that offered the instances.
func (r *Runtime) sign(ps []statement.Payload, relation string) ([]statement.Payload, error) {
	s := r.gate.Signer()
	if s == nil {
		return ps, nil
	}
	for _, p := range ps {
		id, ok, err := p.Identifier()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.New("strata: sign a payload without identifier")
		}
		entity, _ := p[statement.KeyEntityType].(string)
		version, _ := p.Version()
		token, err := s.Sign(privacy.Identity{Entity: entity, ID: id, Relation: relation, Version: version})
		if err != nil {
			return nil, err
		}
		p[statement.KeySignedIdentifier] = token
	}
	return ps, nil
}

// stale reports a conflict when the payload was read at another version
// than the stored one.
func stale(t *metamodel.TransferType, id uuid.UUID, in, orig statement.Payload) error {
	want, ok := in.Version()
	if !ok {
		return nil
	}
	if got, _ := orig.Version(); got != want {
		return strata.NewConflictError(t.Entity.Name, id, want)
	}
	return nil
}

// created returns the instance inserted last by a create plan: inserts of
// nested instances precede the insert of the root.
func created(stmts []statement.Statement) uuid.UUID {
	var id uuid.UUID
	for _, s := range stmts {
		if s.Kind() == statement.KindInsert {
			id = s.Instance().Identifier
		}
	}
	return id
}

// template returns the empty payload of a new instance of t.
func template(t *metamodel.TransferType) statement.Payload {
	p := statement.Payload{}
	if t.Entity != nil {
		p[statement.KeyEntityType] = t.Entity.Name
	}
	for _, a := range t.Attributes {
		if a.Writable() {
			p[a.Name] = nil
		}
	}
	for _, rel := range t.Relations {
		if rel.Embedded && rel.IsMany() {
			p[rel.Name] = []statement.Payload{}
		}
	}
	return p
}
