// Package executor runs compiled query models and planned statements
// against a database.
//
// The Select executor pages the root select of a model and fetches the
// embedded collections of every page with batched relation selects. The
// Modify executor applies the statements of a plan inside a transaction,
// reporting validation failures together and optimistic lock conflicts.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/query"
	"github.com/syssam/strata/rdbms"
	"github.com/syssam/strata/statement"
)

// DefaultChunkSize is the page size of root selects and the number of
// partner identifiers of one relation select.
const DefaultChunkSize = 1000

// Option configures the executors.
type Option func(*options)

type options struct {
	chunk  int
	cache  strata.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// WithChunkSize sets the page and batch size.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunk = n
		}
	}
}

// WithCache caches the rows of executed selects for ttl, encoded with
// msgpack. Zero ttl entries do not expire.
func WithCache(c strata.Cache, ttl time.Duration) Option {
	return func(o *options) {
		o.cache, o.ttl = c, ttl
	}
}

// WithLogger sets the logger of debug and cache messages.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func newOptions(opts []Option) options {
	o := options{chunk: DefaultChunkSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Select maps the rows of compiled query models to payloads.
type Select struct {
	builder *rdbms.Builder
	options
}

// NewSelect returns a select executor rendering with b.
func NewSelect(b *rdbms.Builder, opts ...Option) *Select {
	return &Select{builder: b, options: newOptions(opts)}
}

// RunOption restricts the instances returned by Run.
type RunOption func(*run)

type run struct {
	ids           []uuid.UUID
	hasIDs        bool
	limit, offset int
}

// Identifiers restricts the result to the given instances.
func Identifiers(ids ...uuid.UUID) RunOption {
	return func(r *run) {
		r.ids, r.hasIDs = ids, true
	}
}

// Limit returns at most n instances.
func Limit(n int) RunOption {
	return func(r *run) { r.limit = n }
}

// Offset skips the first n instances.
func Offset(n int) RunOption {
	return func(r *run) { r.offset = n }
}

// Run executes m on db and yields the payload of each root instance in
// the order of the model. Iteration stops at the first error.
func (s *Select) Run(ctx context.Context, db dialect.ExecQuerier, m *query.Model, opts ...RunOption) iter.Seq2[statement.Payload, error] {
	r := &run{}
	for _, opt := range opts {
		opt(r)
	}
	root := m.RootSelect()
	name := transferName(root)
	return func(yield func(statement.Payload, error) bool) {
		offset, remaining := r.offset, r.limit
		for {
			size := s.chunk
			if r.limit > 0 {
				if remaining <= 0 {
					return
				}
				size = min(size, remaining)
			}
			sopts := []rdbms.SelectOption{rdbms.WithPage(size, offset)}
			if r.hasIDs {
				sopts = append(sopts, rdbms.WithIdentifiers(r.ids...))
			}
			page, err := s.page(ctx, db, m, root, sopts...)
			if err != nil {
				yield(nil, strata.NewQueryError(name, "select", err))
				return
			}
			s.logger.DebugContext(ctx, "strata: page selected", "transfer", name, "offset", offset, "rows", len(page))
			for _, row := range page {
				if !yield(row[root.MainTarget], nil) {
					return
				}
			}
			if len(page) < size {
				return
			}
			offset += len(page)
			remaining -= len(page)
		}
	}
}

// All collects the payloads of Run.
func (s *Select) All(ctx context.Context, db dialect.ExecQuerier, m *query.Model, opts ...RunOption) ([]statement.Payload, error) {
	var out []statement.Payload
	for p, err := range s.Run(ctx, db, m, opts...) {
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Matching returns which of ids are selected by a model compiled with
// Compiler.Condition.
func (s *Select) Matching(ctx context.Context, db dialect.ExecQuerier, m *query.Model, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	found := make(map[uuid.UUID]bool, len(ids))
	for chunk := range slices.Chunk(ids, s.chunk) {
		q, err := s.builder.Select(m, m.Root, rdbms.WithIdentifiers(chunk...))
		if err != nil {
			return nil, err
		}
		rows, err := s.fetch(ctx, db, "", q)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			id, err := statement.AsIdentifier(row[0])
			if err != nil {
				return nil, err
			}
			found[id] = true
		}
	}
	return found, nil
}

// page selects and maps one page of sel, then fills the embedded
// collections of its rows.
func (s *Select) page(ctx context.Context, db dialect.ExecQuerier, m *query.Model, sel *query.Select, opts ...rdbms.SelectOption) ([]map[query.TargetID]statement.Payload, error) {
	q, err := s.builder.Select(m, sel.ID(), opts...)
	if err != nil {
		return nil, err
	}
	rows, err := s.fetch(ctx, db, transferName(sel), q)
	if err != nil {
		return nil, err
	}
	mp := newMapper(m, sel, q.Columns)
	out := make([]map[query.TargetID]statement.Payload, len(rows))
	for i, row := range rows {
		if out[i], err = mp.row(row); err != nil {
			return nil, err
		}
	}
	if err := s.expand(ctx, db, m, sel, out); err != nil {
		return nil, err
	}
	return out, nil
}

// expand runs the relation subselects of sel for the partners found in
// rows, in batches of the chunk size, and attaches the mapped elements.
func (s *Select) expand(ctx context.Context, db dialect.ExecQuerier, m *query.Model, sel *query.Select, rows []map[query.TargetID]statement.Payload) error {
	for _, sid := range sel.SubSelects {
		sub := m.SubSelect(sid)
		inner := m.Select(sub.Select)
		var ids []uuid.UUID
		owners := make(map[uuid.UUID][]statement.Payload)
		for _, row := range rows {
			p := row[sub.Target]
			if p == nil {
				continue
			}
			id := p[statement.KeyIdentifier].(uuid.UUID)
			if _, ok := owners[id]; !ok {
				ids = append(ids, id)
			}
			owners[id] = append(owners[id], p)
			p[sub.Relation.Name] = []statement.Payload{}
		}
		if len(ids) == 0 {
			continue
		}
		key := labelIndex(inner, sub.PartnerKey)
		for chunk := range slices.Chunk(ids, s.chunk) {
			q, err := s.builder.Select(m, inner.ID(), rdbms.WithPartners(chunk...))
			if err != nil {
				return err
			}
			raw, err := s.fetch(ctx, db, transferName(inner), q)
			if err != nil {
				return err
			}
			mp := newMapper(m, inner, q.Columns)
			elems := make([]map[query.TargetID]statement.Payload, len(raw))
			for i, row := range raw {
				if elems[i], err = mp.row(row); err != nil {
					return err
				}
			}
			if err := s.expand(ctx, db, m, inner, elems); err != nil {
				return err
			}
			for i, row := range raw {
				partner, err := statement.AsIdentifier(row[key])
				if err != nil {
					return fmt.Errorf("partner of %s: %w", sub.Relation.QualifiedName(), err)
				}
				for _, p := range owners[partner] {
					p[sub.Relation.Name] = append(p[sub.Relation.Name].([]statement.Payload), elems[i][inner.MainTarget])
				}
			}
		}
	}
	return nil
}

// fetch runs q and returns its rows, going through the cache when the
// executor has one.
func (s *Select) fetch(ctx context.Context, db dialect.ExecQuerier, transfer string, q *rdbms.Query) ([][]any, error) {
	var key string
	if s.cache != nil && transfer != "" {
		// Arguments are keyed by their encoding, which keeps the
		// boundaries and types of the values.
		args, err := msgpack.Marshal(q.Args)
		if err != nil {
			s.logger.WarnContext(ctx, "strata: arguments are not cacheable", "error", err)
		} else {
			key = strata.CacheKey{
				Transfer: transfer,
				Dialect:  s.builder.Dialect().Name,
				SQL:      q.SQL,
				Args:     fmt.Sprintf("%x", args),
			}.String()
			if rows, ok := s.cached(ctx, key); ok {
				return rows, nil
			}
		}
	}
	var rows sql.Rows
	if err := db.Query(ctx, q.SQL, q.Args, &rows); err != nil {
		return nil, err
	}
	_, values, err := sql.ScanValues(rows)
	if err != nil {
		return nil, err
	}
	if key != "" {
		s.store(ctx, key, values)
	}
	return values, nil
}

func (s *Select) cached(ctx context.Context, key string) ([][]any, bool) {
	b, err := s.cache.Get(ctx, key)
	if err != nil || b == nil {
		if err != nil {
			s.logger.WarnContext(ctx, "strata: cache get failed", "error", err)
		}
		return nil, false
	}
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	var rows [][]any
	if err := dec.Decode(&rows); err != nil {
		s.logger.WarnContext(ctx, "strata: cache entry is invalid", "key", key, "error", err)
		return nil, false
	}
	return rows, true
}

func (s *Select) store(ctx context.Context, key string, rows [][]any) {
	b, err := msgpack.Marshal(rows)
	if err == nil {
		err = s.cache.Set(ctx, key, b, s.ttl)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "strata: cache set failed", "key", key, "error", err)
	}
}

func transferName(sel *query.Select) string {
	if sel.Transfer != nil {
		return sel.Transfer.Name
	}
	return sel.Entity.Name
}

func labelIndex(sel *query.Select, f query.FeatureID) int {
	for i, id := range sel.Features {
		if id == f {
			return i
		}
	}
	return -1
}
