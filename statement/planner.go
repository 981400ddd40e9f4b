package statement

import (
	"context"
	"fmt"
	"math/big"
	"reflect"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/syssam/strata"
	"github.com/syssam/strata/metamodel"
	"github.com/syssam/strata/privacy"
)

// Guard checks the permission flags of the planned transfer type and of
// relations changed through a payload of their owner. *privacy.Gate
// implements it.
type Guard interface {
	Root(t *metamodel.TransferType, flags ...privacy.Flag) error
	Nested(rel *metamodel.TransferRelation, flags ...privacy.Flag) error
}

// Request is a mutation to plan.
type Request struct {
	Behaviour metamodel.Behaviour
	Type      *metamodel.TransferType
	// Relation is the relation of reference behaviours.
	Relation *metamodel.TransferRelation
	// Payload is the instance to create or update, or the instance to
	// delete.
	Payload Payload
	// Original is the instance as loaded: the state an update is diffed
	// against, the graph a delete cascades through, or the owner holding
	// the current links of a reference behaviour.
	Original Payload
	// Owner is the instance a reference behaviour is called on. The
	// identifier of Original is used when zero.
	Owner uuid.UUID
	// Targets are the instances a reference behaviour links or unlinks.
	Targets []uuid.UUID
}

// Planner plans the statements persisting a payload graph.
type Planner struct {
	guard Guard
	now   func() time.Time
	newID func() uuid.UUID
}

// Option configures a Planner.
type Option func(*Planner)

// WithGuard sets the relation permission checks. Defaults to a
// privacy.Gate without rules.
func WithGuard(g Guard) Option {
	return func(p *Planner) { p.guard = g }
}

// WithClock sets the time source of audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) { p.now = now }
}

// WithIdentifiers sets the generator of new instance identifiers.
func WithIdentifiers(gen func() uuid.UUID) Option {
	return func(p *Planner) { p.newID = gen }
}

// NewPlanner returns a planner.
func NewPlanner(opts ...Option) *Planner {
	p := &Planner{guard: privacy.NewGate(), now: time.Now, newID: uuid.New}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan returns the statements of a mutation ordered as: validations,
// inserts and updates with contained instances before their containers,
// removed references, added references, deletes. On any failure no
// statement is returned.
func (p *Planner) Plan(ctx context.Context, req Request) ([]Statement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Type == nil || !req.Type.Mapped() {
		return nil, strata.NewConfigError("transfer", "plan for an unmapped transfer type")
	}
	var flag privacy.Flag
	switch req.Behaviour {
	case metamodel.BehaviourCreate:
		flag = privacy.FlagCreate
	case metamodel.BehaviourDelete:
		flag = privacy.FlagDelete
	case metamodel.BehaviourUpdate, metamodel.BehaviourSetReference, metamodel.BehaviourUnsetReference,
		metamodel.BehaviourAddReference, metamodel.BehaviourRemoveReference:
		flag = privacy.FlagUpdate
	default:
		return nil, strata.NewConfigError(string(req.Behaviour), "behaviour does not modify instances")
	}
	if err := p.guard.Root(req.Type, flag); err != nil {
		return nil, err
	}
	pl := &plan{Planner: p, audit: Audit{Timestamp: p.now().UTC()}}
	if a := privacy.ActorFromContext(ctx); a != nil {
		pl.audit.Actor = a.GetID()
	}
	var err error
	switch req.Behaviour {
	case metamodel.BehaviourCreate:
		_, err = pl.create(req.Type, req.Payload, Container{}, nil)
	case metamodel.BehaviourUpdate:
		err = pl.update(req.Type, req.Payload, req.Original)
	case metamodel.BehaviourDelete:
		src := req.Original
		if src == nil {
			src = req.Payload
		}
		err = pl.delete(req.Type, src)
	case metamodel.BehaviourSetReference, metamodel.BehaviourUnsetReference,
		metamodel.BehaviourAddReference, metamodel.BehaviourRemoveReference:
		err = pl.reference(req)
	}
	if err != nil {
		return nil, err
	}
	if err := pl.invalid.Err(); err != nil {
		return nil, err
	}
	out := make([]Statement, 0, len(pl.validations)+len(pl.writes)+len(pl.removes)+len(pl.adds)+len(pl.deletes))
	out = append(out, pl.validations...)
	out = append(out, pl.writes...)
	out = append(out, pl.removes...)
	out = append(out, pl.adds...)
	out = append(out, pl.deletes...)
	return out, nil
}

// plan is the state of one Plan call.
type plan struct {
	*Planner
	audit       Audit
	validations []Statement
	writes      []Statement
	removes     []Statement
	adds        []Statement
	deletes     []Statement
	invalid     strata.ValidationErrors
	// created holds the identifiers of planned inserts.
	created []uuid.UUID
}

func (pl *plan) missing(e *metamodel.EntityType, element string, id uuid.UUID) {
	v := &strata.ValidationError{Code: strata.CodeMissingRequired, Entity: e.Name, Element: element}
	if id != uuid.Nil {
		v.ID = id
	}
	pl.invalid = append(pl.invalid, v)
}

// values collects the writable attributes present in in. Unique values
// are checked ahead of the write.
func (pl *plan) values(t *metamodel.TransferType, id uuid.UUID, in Payload, creating bool) []Value {
	var out []Value
	for _, a := range t.Attributes {
		if !a.Writable() {
			continue
		}
		v, ok := in[a.Name]
		required := a.Required || a.Attribute.Required
		if (!ok && creating || ok && v == nil) && required {
			pl.missing(t.Entity, a.Name, id)
			continue
		}
		if !ok {
			continue
		}
		v, err := Conform(a.Attribute, v)
		if err != nil {
			pl.invalid = append(pl.invalid, &strata.ValidationError{
				Code: strata.CodeInvalidValue, Entity: t.Entity.Name, Element: a.Name, ID: id, Message: err.Error(),
			})
			continue
		}
		out = append(out, Value{Attribute: a.Attribute, Value: v})
		if a.Attribute.Unique && v != nil {
			pl.validations = append(pl.validations, NewCheckUnique(t.Entity, id, a.Attribute, v))
		}
	}
	return out
}

// create plans the insert of in and of its contained instances, which
// are inserted first. back is the reference of t leading to the instance
// being planned that holds in. It is linked by the insert itself for
// containment, or by the link of the holder otherwise, and neither set
// from in nor checked as required.
func (pl *plan) create(t *metamodel.TransferType, in Payload, c Container, back *metamodel.Reference) (uuid.UUID, error) {
	if id, ok, err := in.Identifier(); err != nil {
		return uuid.Nil, err
	} else if ok {
		return uuid.Nil, strata.NewConfigError(t.Name, "payload of a new instance carries identifier %s", id)
	}
	id := pl.newID()
	pl.created = append(pl.created, id)
	values := pl.values(t, id, in, true)
	for _, r := range t.Relations {
		ref := r.Reference
		if ref == nil || ref == back {
			continue
		}
		children, err := in.Related(r.Name)
		if err != nil {
			return uuid.Nil, err
		}
		if ref.Containment {
			if len(children) > 0 {
				if err := pl.guard.Nested(r, privacy.FlagCreate); err != nil {
					return uuid.Nil, err
				}
			}
			for _, child := range children {
				if _, err := pl.create(r.Target, child, Container{Reference: ref, ID: id}, ref.Opposite); err != nil {
					return uuid.Nil, err
				}
			}
			continue
		}
		targets, err := pl.targets(r, children)
		if err != nil {
			return uuid.Nil, err
		}
		if len(targets) == 0 {
			if ref.Required() {
				pl.missing(t.Entity, r.Name, id)
			}
			continue
		}
		pl.link(t.Entity, id, r, targets, nil)
	}
	pl.writes = append(pl.writes, NewInsert(t.Entity, id, c, in.ReferenceID(), values, pl.audit))
	return id, nil
}

// targets returns the identifiers of the instances a non-containment
// relation refers to, creating the new ones. A new instance is not linked
// back through the opposite reference: the link added for the relation
// sets both ends.
func (pl *plan) targets(r *metamodel.TransferRelation, payloads []Payload) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, tp := range payloads {
		id, ok, err := tp.Identifier()
		if err != nil {
			return nil, err
		}
		if !ok {
			if err := pl.guard.Nested(r, privacy.FlagCreate); err != nil {
				return nil, err
			}
			if id, err = pl.create(r.Target, tp, Container{}, r.Reference.Opposite); err != nil {
				return nil, err
			}
		}
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out, nil
}

// link adds references to targets after checking that the stored ones
// exist and are in the range of the relation. Targets inserted by the
// same plan are not checked.
func (pl *plan) link(e *metamodel.EntityType, id uuid.UUID, r *metamodel.TransferRelation, targets, current []uuid.UUID) {
	var stored []uuid.UUID
	for _, tid := range targets {
		if !slices.Contains(pl.created, tid) {
			stored = append(stored, tid)
			pl.validations = append(pl.validations, NewInstanceExists(r.Reference.Target, tid, r.QualifiedName()))
		}
	}
	if r.Range != nil && len(stored) > 0 {
		pl.validations = append(pl.validations, NewValidation(e, id, r, stored))
	}
	pl.adds = append(pl.adds, NewAddReference(e, id, r.Reference, targets, current))
}

// update plans the changes of in against orig. Contained instances are
// inserted, updated or deleted; references are diffed.
func (pl *plan) update(t *metamodel.TransferType, in, orig Payload) error {
	id, ok, err := in.Identifier()
	if err != nil {
		return err
	}
	if !ok {
		return strata.NewConfigError(t.Name, "update payload without identifier")
	}
	if orig == nil {
		return strata.NewNotFoundError(t.Entity.Name, id)
	}
	version, ok := orig.Version()
	if !ok {
		if version, ok = in.Version(); !ok {
			return strata.NewConfigError(t.Name, "update of %s without version", id)
		}
	}
	var changed []Value
	for _, v := range pl.values(t, id, in, false) {
		before, err := Conform(v.Attribute, orig[nameOf(t, v.Attribute)])
		if err != nil || !equalValues(v.Value, before) {
			changed = append(changed, v)
		}
	}
	// Uniqueness only matters for changed values.
	pl.validations = slices.DeleteFunc(pl.validations, func(s Statement) bool {
		cu, ok := s.(*CheckUnique)
		return ok && cu.Identifier == id && !slices.ContainsFunc(changed, func(v Value) bool { return v.Attribute == cu.Attribute })
	})
	for _, r := range t.Relations {
		ref := r.Reference
		if ref == nil || !in.Has(r.Name) {
			continue
		}
		children, err := in.Related(r.Name)
		if err != nil {
			return err
		}
		before, err := orig.Related(r.Name)
		if err != nil {
			return err
		}
		if ref.Containment {
			if err := pl.updateContained(t.Entity, id, r, children, before); err != nil {
				return err
			}
			continue
		}
		targets, err := pl.targets(r, children)
		if err != nil {
			return err
		}
		current, err := identifiers(before)
		if err != nil {
			return err
		}
		pl.diff(t.Entity, id, r, current, targets)
	}
	if len(changed) > 0 {
		pl.writes = append(pl.writes, NewUpdate(t.Entity, id, version, changed, pl.audit))
	}
	return nil
}

func (pl *plan) updateContained(e *metamodel.EntityType, id uuid.UUID, r *metamodel.TransferRelation, children, before []Payload) error {
	byID := make(map[uuid.UUID]Payload, len(before))
	for _, b := range before {
		bid, ok, err := b.Identifier()
		if err != nil {
			return err
		}
		if ok {
			byID[bid] = b
		}
	}
	kept := make(map[uuid.UUID]bool)
	for _, child := range children {
		cid, ok, err := child.Identifier()
		if err != nil {
			return err
		}
		if !ok {
			if err := pl.guard.Nested(r, privacy.FlagCreate); err != nil {
				return err
			}
			if _, err := pl.create(r.Target, child, Container{Reference: r.Reference, ID: id}, r.Reference.Opposite); err != nil {
				return err
			}
			continue
		}
		kept[cid] = true
		n := len(pl.writes) + len(pl.adds) + len(pl.removes)
		if err := pl.update(r.Target, child, byID[cid]); err != nil {
			return err
		}
		if len(pl.writes)+len(pl.adds)+len(pl.removes) > n {
			if err := pl.guard.Nested(r, privacy.FlagUpdate); err != nil {
				return err
			}
		}
	}
	for _, b := range before {
		bid, _, _ := b.Identifier()
		if kept[bid] {
			continue
		}
		if err := pl.guard.Nested(r, privacy.FlagDelete); err != nil {
			return err
		}
		if err := pl.delete(r.Target, b); err != nil {
			return err
		}
	}
	if len(children) == 0 && r.Reference.Required() {
		pl.missing(e, r.Name, id)
	}
	return nil
}

// diff plans the changes turning the current targets of a relation into
// the requested ones. Targets in both sets are left alone.
func (pl *plan) diff(e *metamodel.EntityType, id uuid.UUID, r *metamodel.TransferRelation, current, requested []uuid.UUID) {
	var added, removed []uuid.UUID
	for _, tid := range requested {
		if !slices.Contains(current, tid) {
			added = append(added, tid)
		}
	}
	for _, tid := range current {
		if !slices.Contains(requested, tid) {
			removed = append(removed, tid)
		}
	}
	if len(requested) == 0 && r.Reference.Required() {
		pl.missing(e, r.Name, id)
	}
	if len(removed) > 0 {
		pl.removes = append(pl.removes, NewRemoveReference(e, id, r.Reference, removed))
	}
	if len(added) > 0 {
		pl.link(e, id, r, added, current)
	}
}

// delete plans the delete of an instance after the instances it contains.
func (pl *plan) delete(t *metamodel.TransferType, in Payload) error {
	id, ok, err := in.Identifier()
	if err != nil {
		return err
	}
	if !ok {
		return strata.NewConfigError(t.Name, "delete payload without identifier")
	}
	for _, r := range t.Relations {
		if r.Reference == nil || !r.Reference.Containment {
			continue
		}
		children, err := in.Related(r.Name)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := pl.delete(r.Target, child); err != nil {
				return err
			}
		}
	}
	pl.deletes = append(pl.deletes, NewDelete(t.Entity, id))
	return nil
}

// reference plans set, unset, add and remove reference behaviours.
func (pl *plan) reference(req Request) error {
	r := req.Relation
	if r == nil || r.Reference == nil {
		return strata.NewConfigError(req.Type.Name, "reference behaviour on a relation that does not navigate a reference")
	}
	if r.Reference.Containment {
		return strata.NewConfigError(r.QualifiedName(), "containment relations are changed through their owner")
	}
	owner := req.Owner
	if owner == uuid.Nil {
		id, ok, err := req.Original.Identifier()
		if err != nil {
			return err
		}
		if !ok {
			return strata.NewConfigError(r.QualifiedName(), "reference behaviour without owner")
		}
		owner = id
	}
	before, err := req.Original.Related(r.Name)
	if err != nil {
		return err
	}
	current, err := identifiers(before)
	if err != nil {
		return err
	}
	var requested []uuid.UUID
	switch req.Behaviour {
	case metamodel.BehaviourSetReference:
		requested = slices.Clone(req.Targets)
	case metamodel.BehaviourUnsetReference:
	case metamodel.BehaviourAddReference:
		requested = slices.Clone(current)
		for _, tid := range req.Targets {
			if !slices.Contains(requested, tid) {
				requested = append(requested, tid)
			}
		}
	case metamodel.BehaviourRemoveReference:
		requested = slices.DeleteFunc(slices.Clone(current), func(id uuid.UUID) bool {
			return slices.Contains(req.Targets, id)
		})
	}
	if !r.IsMany() && len(requested) > 1 {
		return fmt.Errorf("statement: %s holds at most one instance, got %d", r.QualifiedName(), len(requested))
	}
	pl.diff(req.Type.Entity, owner, r, current, requested)
	return nil
}

func identifiers(ps []Payload) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(ps))
	for _, p := range ps {
		id, ok, err := p.Identifier()
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func nameOf(t *metamodel.TransferType, a *metamodel.Attribute) string {
	for _, ta := range t.Attributes {
		if ta.Attribute == a {
			return ta.Name
		}
	}
	return a.Name
}

// equalValues compares payload values by meaning rather than by
// representation.
func equalValues(a, b any) bool {
	switch a := a.(type) {
	case decimal.Decimal:
		if b, ok := b.(decimal.Decimal); ok {
			return a.Equal(b)
		}
	case *big.Int:
		if b, ok := b.(*big.Int); ok && a != nil && b != nil {
			return a.Cmp(b) == 0
		}
	case time.Time:
		if b, ok := b.(time.Time); ok {
			return a.Equal(b)
		}
	}
	return reflect.DeepEqual(a, b)
}
