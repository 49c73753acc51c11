package compiler

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Pass is one optimizer stage. Run mutates the program in place.
type Pass interface {
	Name() string
	Run(prog *Program) error
}

// Ordered is implemented by passes that must run before or after other
// specific passes, named by Pass.Name.
type Ordered interface {
	RunsAfter() []string
	RunsBefore() []string
}

// Registry holds the passes of one compiler configuration and the ordering
// constraints between them. It is built once by the driver and never
// shared between unrelated compilers.
type Registry struct {
	passes []Pass
	index  map[string]int
	// before[a][b] records that a runs before b. "b after a" is stored
	// the same way, so each constraint has exactly one representation.
	before map[string]map[string]bool
	log    *zap.Logger
}

// NewRegistry registers passes in order. A nil logger disables logging.
func NewRegistry(log *zap.Logger, passes ...Pass) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		index:  make(map[string]int),
		before: make(map[string]map[string]bool),
		log:    log,
	}
	for _, p := range passes {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds p and records the constraints it declares.
func (r *Registry) Register(p Pass) error {
	name := p.Name()
	if _, dup := r.index[name]; dup {
		return internalErrorf("pass %q registered twice", name)
	}
	r.index[name] = len(r.passes)
	r.passes = append(r.passes, p)

	if o, ok := p.(Ordered); ok {
		for _, other := range o.RunsAfter() {
			r.Order(other, name)
		}
		for _, other := range o.RunsBefore() {
			r.Order(name, other)
		}
	}
	return nil
}

// Order declares that the pass named first runs before the pass named then.
// Constraints naming passes that are never registered have no effect.
func (r *Registry) Order(first, then string) {
	if r.before[first] == nil {
		r.before[first] = make(map[string]bool)
	}
	r.before[first][then] = true
}

// Passes returns the registered passes in registration order.
func (r *Registry) Passes() []Pass {
	return append([]Pass(nil), r.passes...)
}

// Schedule returns the passes in an order that satisfies every declared
// constraint. Unconstrained passes keep their registration order.
func (r *Registry) Schedule() ([]Pass, error) {
	indegree := make([]int, len(r.passes))
	succ := make([][]int, len(r.passes))
	for from, tos := range r.before {
		i, ok := r.index[from]
		if !ok {
			continue
		}
		for to := range tos {
			j, ok := r.index[to]
			if !ok || i == j {
				continue
			}
			succ[i] = append(succ[i], j)
			indegree[j]++
		}
	}

	// ready is kept sorted by registration index.
	var ready []int
	for i, d := range indegree {
		if d == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]Pass, 0, len(r.passes))
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		order = append(order, r.passes[i])
		for _, j := range succ[i] {
			indegree[j]--
			if indegree[j] == 0 {
				ready = append(ready, j)
				sort.Ints(ready)
			}
		}
	}

	if len(order) != len(r.passes) {
		var stuck []string
		for i, d := range indegree {
			if d > 0 {
				stuck = append(stuck, r.passes[i].Name())
			}
		}
		sort.Strings(stuck)
		return nil, internalErrorf("pass ordering constraints form a cycle among %v", stuck)
	}
	return order, nil
}

// Run schedules the passes and applies each exactly once to prog. The
// first failure stops the pipeline; earlier mutations are kept.
func (r *Registry) Run(prog *Program) error {
	order, err := r.Schedule()
	if err != nil {
		return err
	}

	names := make([]string, len(order))
	for i, p := range order {
		names[i] = p.Name()
	}
	r.log.Debug("Pass schedule", zap.String("unit", prog.Name), zap.Strings("passes", names))

	for _, p := range order {
		start := time.Now()
		if err := p.Run(prog); err != nil {
			r.log.Debug("Pass failed", zap.String("pass", p.Name()), zap.Error(err))
			return withOp(p.Name(), err)
		}
		r.log.Debug("Pass finished",
			zap.String("pass", p.Name()),
			zap.Duration("elapsed", time.Since(start)))
	}
	return nil
}

// DefaultRegistry registers the standard pipeline: Importer,
// LimitCondenser, ConstantCondenser and FunctionCondenser.
func DefaultRegistry(loader Loader, log *zap.Logger) (*Registry, error) {
	if loader == nil {
		return nil, fmt.Errorf("default registry: nil loader")
	}
	return NewRegistry(log,
		&Importer{Loader: loader, Log: log},
		LimitCondenser{},
		ConstantCondenser{},
		FunctionCondenser{},
	)
}
