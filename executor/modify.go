package executor

import (
	"context"
	"fmt"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/dialect/sql/sqlgraph"
	"github.com/syssam/strata/metamodel"
	"github.com/syssam/strata/query"
	"github.com/syssam/strata/rdbms"
	"github.com/syssam/strata/statement"
)

// Modify applies planned statements.
type Modify struct {
	builder  *rdbms.Builder
	compiler *query.Compiler
	selects  *Select
	ranges   *strata.CompiledCache[*query.Model]
	options
}

// NewModify returns a modify executor. Range validations compile the
// range conditions of relations with c.
func NewModify(b *rdbms.Builder, c *query.Compiler, opts ...Option) (*Modify, error) {
	ranges, err := strata.NewCompiledCache[*query.Model](0)
	if err != nil {
		return nil, err
	}
	o := newOptions(opts)
	return &Modify{
		builder:  b,
		compiler: c,
		// Range checks never go through the result cache.
		selects: &Select{builder: b, options: options{chunk: o.chunk, logger: o.logger}},
		ranges:  ranges,
		options: o,
	}, nil
}

// Apply runs stmts on tx, which should be a transaction the caller rolls
// back on error. Checks run first and every violation is reported in one
// strata.ValidationErrors, before anything is written. An update whose
// version guard matches no row fails with a *strata.ConflictError.
func (x *Modify) Apply(ctx context.Context, tx dialect.ExecQuerier, stmts []statement.Statement) error {
	var violations strata.ValidationErrors
	for _, s := range stmts {
		vs, err := x.check(ctx, tx, s)
		if err != nil {
			return err
		}
		violations = append(violations, vs...)
	}
	if len(violations) > 0 {
		return violations
	}
	for _, s := range stmts {
		if err := x.write(ctx, tx, s); err != nil {
			return err
		}
	}
	return nil
}

func (x *Modify) check(ctx context.Context, tx dialect.ExecQuerier, s statement.Statement) (strata.ValidationErrors, error) {
	switch s := s.(type) {
	case *statement.InstanceExists:
		found, err := x.exists(ctx, tx, s)
		if err != nil || found {
			return nil, err
		}
		return strata.ValidationErrors{{
			Code:    strata.CodeNotFound,
			Element: s.Element,
			Entity:  s.Entity.Name,
			ID:      s.Identifier,
			Message: "instance does not exist",
		}}, nil
	case *statement.CheckUnique:
		found, err := x.exists(ctx, tx, s)
		if err != nil || !found {
			return nil, err
		}
		return strata.ValidationErrors{{
			Code:    strata.CodeNotUnique,
			Element: s.Attribute.Name,
			Entity:  s.Entity.Name,
			ID:      s.Identifier,
			Message: fmt.Sprintf("value %v is already used", s.Value),
		}}, nil
	case *statement.Validation:
		return x.inRange(ctx, tx, s)
	}
	return nil, nil
}

func (x *Modify) exists(ctx context.Context, tx dialect.ExecQuerier, s statement.Statement) (bool, error) {
	q, err := x.builder.Check(s)
	if err != nil {
		return false, err
	}
	var rows sql.Rows
	if err := tx.Query(ctx, q.SQL, q.Args, &rows); err != nil {
		return false, strata.NewQueryError(s.Instance().Entity.Name, s.Kind().String(), err)
	}
	_, values, err := sql.ScanValues(rows)
	if err != nil {
		return false, strata.NewQueryError(s.Instance().Entity.Name, s.Kind().String(), err)
	}
	return len(values) > 0, nil
}

// inRange reports the targets of a validation that do not satisfy the
// range condition of its relation.
func (x *Modify) inRange(ctx context.Context, tx dialect.ExecQuerier, s *statement.Validation) (strata.ValidationErrors, error) {
	rel := s.Relation
	if rel.Range == nil || len(s.Targets) == 0 {
		return nil, nil
	}
	m, err := x.ranges.GetOrAdd(rel.QualifiedName(), func() (*query.Model, error) {
		return x.compiler.Condition(rangeEntity(rel), rel.Range)
	})
	if err != nil {
		return nil, err
	}
	found, err := x.selects.Matching(ctx, tx, m, s.Targets)
	if err != nil {
		return nil, strata.NewQueryError(rel.QualifiedName(), "range", err)
	}
	var out strata.ValidationErrors
	for _, id := range s.Targets {
		if !found[id] {
			out = append(out, &strata.ValidationError{
				Code:    strata.CodeNotInRange,
				Element: rel.Name,
				Entity:  s.Entity.Name,
				ID:      id,
				Message: "instance is not in the range of " + rel.QualifiedName(),
			})
		}
	}
	return out, nil
}

func rangeEntity(rel *metamodel.TransferRelation) *metamodel.EntityType {
	if rel.Reference != nil {
		return rel.Reference.Target
	}
	return rel.Target.Entity
}

func (x *Modify) write(ctx context.Context, tx dialect.ExecQuerier, s statement.Statement) error {
	switch s.Kind() {
	case statement.KindValidation, statement.KindInstanceExists, statement.KindCheckUnique:
		return nil
	}
	in := s.Instance()
	cmds, err := x.builder.Commands(s)
	if err != nil {
		return err
	}
	for _, c := range cmds {
		var res sql.Result
		if err := tx.Exec(ctx, c.SQL, c.Args, &res); err != nil {
			switch sqlgraph.Classify(err) {
			case sqlgraph.UniqueViolation, sqlgraph.ForeignKeyViolation:
				return sqlgraph.AsValidationError(err, in.Entity.Name, in.Identifier)
			}
			return strata.NewMutationError(in.Entity.Name, s.Kind().String(), err)
		}
		if !c.Versioned {
			continue
		}
		n, err := res.RowsAffected()
		if err != nil {
			return strata.NewMutationError(in.Entity.Name, s.Kind().String(), err)
		}
		if n == 0 {
			return strata.NewConflictError(in.Entity.Name, in.Identifier, s.(*statement.Update).Version)
		}
	}
	x.logger.DebugContext(ctx, "strata: statement applied", "kind", s.Kind(), "entity", in.Entity.Name, "id", in.Identifier, "commands", len(cmds))
	return nil
}
