package sql

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/syssam/strata/dialect"
)

// Stats is a snapshot of the statistics of a StatsDriver.
type Stats struct {
	Queries   int64
	Execs     int64
	Errors    int64
	Slow      int64
	Commits   int64
	Rollbacks int64
	Duration  time.Duration
}

// Avg returns the mean duration of queries and execs.
func (s Stats) Avg() time.Duration {
	if n := s.Queries + s.Execs; n > 0 {
		return s.Duration / time.Duration(n)
	}
	return 0
}

// LogValue groups the statistics in log records.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("queries", s.Queries),
		slog.Int64("execs", s.Execs),
		slog.Int64("errors", s.Errors),
		slog.Int64("slow", s.Slow),
		slog.Int64("commits", s.Commits),
		slog.Int64("rollbacks", s.Rollbacks),
		slog.Duration("duration", s.Duration),
		slog.Duration("avg", s.Avg()),
	)
}

type counters struct {
	queries, execs, errors, slow, commits, rollbacks, nanos atomic.Int64
}

// StatsDriver counts the statements run through a driver and its
// transactions, and logs the slow ones.
type StatsDriver struct {
	dialect.Driver
	c         counters
	threshold time.Duration
	logger    *slog.Logger
}

// StatsOption configures a StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the duration above which statements count as
// slow. Defaults to 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) { s.threshold = d }
}

// WithSlowQueryLog logs slow statements at warn level. A nil logger uses
// slog.Default().
func WithSlowQueryLog(l *slog.Logger) StatsOption {
	return func(s *StatsDriver) {
		if l == nil {
			l = slog.Default()
		}
		s.logger = l
	}
}

// NewStatsDriver wraps drv:
//
//	stats := sql.NewStatsDriver(drv, sql.WithSlowQueryLog(logger))
//	rt, err := runtime.New(model, stats)
func NewStatsDriver(drv dialect.Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{Driver: drv, threshold: 100 * time.Millisecond}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns the current statistics.
func (d *StatsDriver) Stats() Stats {
	return Stats{
		Queries:   d.c.queries.Load(),
		Execs:     d.c.execs.Load(),
		Errors:    d.c.errors.Load(),
		Slow:      d.c.slow.Load(),
		Commits:   d.c.commits.Load(),
		Rollbacks: d.c.rollbacks.Load(),
		Duration:  time.Duration(d.c.nanos.Load()),
	}
}

func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	return d.observe(ctx, &d.c.queries, query, args, func() error {
		return d.Driver.Query(ctx, query, args, v)
	})
}

func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	return d.observe(ctx, &d.c.execs, query, args, func() error {
		return d.Driver.Exec(ctx, query, args, v)
	})
}

func (d *StatsDriver) observe(ctx context.Context, n *atomic.Int64, query string, args any, run func() error) error {
	start := time.Now()
	err := run()
	took := time.Since(start)
	n.Add(1)
	d.c.nanos.Add(int64(took))
	if err != nil {
		d.c.errors.Add(1)
	}
	if took > d.threshold {
		d.c.slow.Add(1)
		if d.logger != nil {
			argv, _ := args.([]any)
			d.logger.WarnContext(ctx, "slow query", "duration", took, "query", query, "args", len(argv))
		}
	}
	return err
}

// Tx begins a transaction whose statements are counted too.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &statsTx{Tx: tx, d: d}, nil
}

type statsTx struct {
	dialect.Tx
	d *StatsDriver
}

func (t *statsTx) Query(ctx context.Context, query string, args, v any) error {
	return t.d.observe(ctx, &t.d.c.queries, query, args, func() error {
		return t.Tx.Query(ctx, query, args, v)
	})
}

func (t *statsTx) Exec(ctx context.Context, query string, args, v any) error {
	return t.d.observe(ctx, &t.d.c.execs, query, args, func() error {
		return t.Tx.Exec(ctx, query, args, v)
	})
}

func (t *statsTx) Commit() error {
	t.d.c.commits.Add(1)
	return t.Tx.Commit()
}

func (t *statsTx) Rollback() error {
	t.d.c.rollbacks.Add(1)
	return t.Tx.Rollback()
}

var _ dialect.Driver = (*StatsDriver)(nil)
