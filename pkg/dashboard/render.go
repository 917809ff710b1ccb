// Package dashboard turns dimension selections into the aggregated tables of
// the emission and period dashboards.
//
// A render opens one executor session, resolves the selections against the
// catalog, runs the pipeline queries in order and closes the session. Queries
// repeated within one render are answered from a memo.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nicktill/carbondash/pkg/emission"
	"github.com/nicktill/carbondash/pkg/relation"
	"github.com/nicktill/carbondash/pkg/storage"
	"github.com/nicktill/carbondash/pkg/telemetry"
)

// Dashboard names used in logs and metrics.
const (
	Emissions = "emissions"
	Periods   = "periods"
)

// Observer is told about successful renders and about renders that failed
// with a server-side error.
type Observer interface {
	RecordSuccess()
	RecordFailure(err error)
}

// Config parameterises a Renderer. Zero fields take defaults.
type Config struct {
	Relation    string
	TopN        int
	PointsPerKG int64
}

// EmissionPage is the emission dashboard.
type EmissionPage struct {
	Selection   Selection     `json:"selection"`
	Options     Options       `json:"options"`
	Empty       bool          `json:"empty"`
	Total       Total         `json:"total"`
	Trend       []SeriesPoint `json:"trend"`
	ByLifestyle *Matrix       `json:"by_lifestyle"`
	ByGender    *Matrix       `json:"by_gender"`
	ByAgeGroup  *Matrix       `json:"by_age_group"`
	TopUsage    []Ranked      `json:"top_usage"`
	Reward      Reward        `json:"reward"`
}

// PeriodPage is the period dashboard.
type PeriodPage struct {
	Selection Selection     `json:"selection"`
	Options   Options       `json:"options"`
	Empty     bool          `json:"empty"`
	Total     Total         `json:"total"`
	Trend     []SeriesPoint `json:"trend"`
	TopUsage  []Ranked      `json:"top_usage"`
	Reward    Reward        `json:"reward"`
}

// Renderer renders dashboards from a warehouse.
type Renderer struct {
	warehouse storage.Warehouse
	catalog   Catalog
	relation  string
	topN      int
	calc      Calculator
	observer  Observer
}

// NewRenderer creates a renderer over warehouse.
func NewRenderer(warehouse storage.Warehouse, cfg Config) *Renderer {
	if cfg.Relation == "" {
		cfg.Relation = emission.DefaultRelation
	}
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	if cfg.PointsPerKG <= 0 {
		cfg.PointsPerKG = DefaultPointsPerKG
	}
	return &Renderer{
		warehouse: warehouse,
		catalog:   Catalog{Relation: cfg.Relation},
		relation:  cfg.Relation,
		topN:      cfg.TopN,
		calc:      Calculator{PointsPerKG: cfg.PointsPerKG},
	}
}

// SetObserver registers o for render outcomes.
func (r *Renderer) SetObserver(o Observer) { r.observer = o }

// Emissions renders the emission dashboard. Missing selections default to
// the first option; unknown ones fail with ErrUnknownOption.
func (r *Renderer) Emissions(ctx context.Context, sel Selection) (*EmissionPage, error) {
	var page *EmissionPage
	err := r.render(ctx, Emissions, func(ctx context.Context, exec Executor) error {
		var err error
		page, err = r.emissions(ctx, exec, sel)
		return err
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Periods renders the period dashboard.
func (r *Renderer) Periods(ctx context.Context, sel Selection) (*PeriodPage, error) {
	var page *PeriodPage
	err := r.render(ctx, Periods, func(ctx context.Context, exec Executor) error {
		var err error
		page, err = r.periods(ctx, exec, sel)
		return err
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Options returns the emission dashboard's option lists, months scoped by year.
func (r *Renderer) Options(ctx context.Context, year string) (Options, error) {
	var opts Options
	err := r.render(ctx, "catalog", func(ctx context.Context, exec Executor) error {
		var err error
		opts, err = r.catalog.Options(ctx, exec, year)
		return err
	})
	return opts, err
}

// render brackets fn with one session, a memo, a span and the bookkeeping.
func (r *Renderer) render(ctx context.Context, name string, fn func(context.Context, Executor) error) (err error) {
	start := time.Now()
	id := uuid.NewString()

	ctx, span := telemetry.Tracer().Start(ctx, "dashboard.render."+name,
		trace.WithAttributes(
			attribute.String("render.id", id),
			attribute.String("relation", r.relation),
		))
	defer span.End()

	memo := newMemo(nil)
	defer func() {
		elapsed := time.Since(start)
		telemetry.RecordRender(name, err, elapsed)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Printf("Render %s failed (id=%s, queries=%d, after %v): %v", name, id, memo.queries, elapsed, err)
		} else {
			span.SetAttributes(attribute.Int("queries", memo.queries), attribute.Int("memo_hits", memo.hits))
			log.Printf("Rendered %s (id=%s, queries=%d, memo hits=%d, %v)", name, id, memo.queries, memo.hits, elapsed)
		}
		// input errors and client disconnects say nothing about upstream health
		switch {
		case r.observer == nil:
		case err == nil:
			r.observer.RecordSuccess()
		case StatusFor(err) >= http.StatusInternalServerError && !errors.Is(err, context.Canceled):
			r.observer.RecordFailure(err)
		}
	}()

	sess, err := r.warehouse.Open(ctx)
	if err != nil {
		return &QueryError{Op: "open session", Err: err}
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Printf("Failed to close session %s: %v", id, cerr)
		}
	}()

	memo.next = sess
	return fn(ctx, memo)
}

func (r *Renderer) emissions(ctx context.Context, exec Executor, sel Selection) (*EmissionPage, error) {
	years, err := r.catalog.DistinctValues(ctx, exec, emission.ColYear)
	if err != nil {
		return nil, err
	}
	var year string
	if len(years) > 0 {
		if year, err = resolve(sel, emission.ColYear, years); err != nil {
			return nil, err
		}
	}

	opts, err := r.catalog.Options(ctx, exec, year)
	if err != nil {
		return nil, err
	}
	if opts.Empty() {
		return emptyEmissionPage(opts), nil
	}
	resolved, err := resolveAll(sel, opts)
	if err != nil {
		return nil, err
	}

	primary, err := BuildPredicate(resolved, PrimaryDims...)
	if err != nil {
		return nil, err
	}
	trendScope, err := BuildPredicate(resolved, TrendDims...)
	if err != nil {
		return nil, err
	}
	base := relation.Scan(r.relation)
	scoped := base.Filter(primary)
	trendRel := base.Filter(trendScope)

	page := &EmissionPage{Selection: resolved, Options: opts}

	if page.Total, err = ScalarTotal(ctx, exec, scoped); err != nil {
		return nil, err
	}
	if page.Trend, err = Trend(ctx, exec, trendRel, emission.ColMonth); err != nil {
		return nil, err
	}
	if page.ByLifestyle, err = TrendBy(ctx, exec, trendRel, emission.ColMonth, emission.ColLifestyle); err != nil {
		return nil, err
	}
	if page.ByGender, err = TrendBy(ctx, exec, trendRel, emission.ColMonth, emission.ColGender); err != nil {
		return nil, err
	}
	if page.ByAgeGroup, err = TrendBy(ctx, exec, trendRel, emission.ColMonth, emission.ColAgeGroup); err != nil {
		return nil, err
	}
	if page.TopUsage, err = TopN(ctx, exec, scoped, r.topN); err != nil {
		return nil, err
	}

	prevMonth, ok, err := PreviousMonth(resolved[emission.ColMonth])
	if err != nil {
		return nil, err
	}
	page.Reward, err = r.compare(ctx, exec, page.Total, resolved, emission.ColMonth, prevMonth, ok, PrimaryDims)
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (r *Renderer) periods(ctx context.Context, exec Executor, sel Selection) (*PeriodPage, error) {
	opts, err := r.catalog.PeriodOptions(ctx, exec)
	if err != nil {
		return nil, err
	}
	if opts.Empty() {
		return emptyPeriodPage(opts), nil
	}
	resolved, err := resolveAll(sel, opts)
	if err != nil {
		return nil, err
	}

	primary, err := BuildPredicate(resolved, PeriodDims...)
	if err != nil {
		return nil, err
	}
	trendScope, err := BuildPredicate(resolved, PeriodTrendDims...)
	if err != nil {
		return nil, err
	}
	base := relation.Scan(r.relation)
	scoped := base.Filter(primary)

	page := &PeriodPage{Selection: resolved, Options: opts}

	if page.Total, err = ScalarTotal(ctx, exec, scoped); err != nil {
		return nil, err
	}
	if page.Trend, err = Trend(ctx, exec, base.Filter(trendScope), emission.ColYearMonth); err != nil {
		return nil, err
	}
	if page.TopUsage, err = TopN(ctx, exec, scoped, r.topN); err != nil {
		return nil, err
	}

	prev, ok, err := PreviousYearMonth(resolved[emission.ColYearMonth])
	if err != nil {
		return nil, err
	}
	page.Reward, err = r.compare(ctx, exec, page.Total, resolved, emission.ColYearMonth, prev, ok, PeriodDims)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// compare totals the previous period (when there is one) and rates current against it.
func (r *Renderer) compare(ctx context.Context, exec Executor, current Total, sel Selection,
	period relation.Column, prev string, ok bool, dims []relation.Column) (Reward, error) {
	if !ok {
		return r.calc.Compare(current, nil, ""), nil
	}
	pred, err := BuildPredicate(sel.With(period, prev), dims...)
	if err != nil {
		return Reward{}, err
	}
	previous, err := ScalarTotal(ctx, exec, relation.Scan(r.relation).Filter(pred))
	if err != nil {
		return Reward{}, err
	}
	return r.calc.Compare(current, &previous, prev), nil
}

func resolve(sel Selection, dim relation.Column, values []string) (string, error) {
	v, ok := sel[dim]
	if !ok || v == "" {
		return values[0], nil
	}
	if !lo.Contains(values, v) {
		return "", fmt.Errorf("%w: %s=%q", ErrUnknownOption, Params[dim], v)
	}
	return v, nil
}

func resolveAll(sel Selection, opts Options) (Selection, error) {
	out := make(Selection, len(opts))
	for _, opt := range opts {
		v, err := resolve(sel, opt.Dimension, opt.Values)
		if err != nil {
			return nil, err
		}
		out[opt.Dimension] = v
	}
	return out, nil
}

func emptyReward() Reward {
	return Calculator{}.Compare(Total{KG: decimal.Zero}, nil, "")
}

func emptyEmissionPage(opts Options) *EmissionPage {
	return &EmissionPage{
		Selection:   Selection{},
		Options:     opts,
		Empty:       true,
		Total:       Total{KG: decimal.Zero},
		Trend:       []SeriesPoint{},
		ByLifestyle: Pivot(nil, emission.ColMonth, emission.ColLifestyle, colTotal),
		ByGender:    Pivot(nil, emission.ColMonth, emission.ColGender, colTotal),
		ByAgeGroup:  Pivot(nil, emission.ColMonth, emission.ColAgeGroup, colTotal),
		TopUsage:    []Ranked{},
		Reward:      emptyReward(),
	}
}

func emptyPeriodPage(opts Options) *PeriodPage {
	return &PeriodPage{
		Selection: Selection{},
		Options:   opts,
		Empty:     true,
		Total:     Total{KG: decimal.Zero},
		Trend:     []SeriesPoint{},
		TopUsage:  []Ranked{},
		Reward:    emptyReward(),
	}
}
