package directives

import "sort"

// Registry is the static set of directives and composites. Directives are
// enumerated here; nothing is resolved by name at runtime.
type Registry struct {
	byID       map[string]Directive
	composites map[string]*Composite
	params     map[string]Params
	tables     map[string][]Weighted
}

// Option configures a Registry
type Option func(*Registry)

// WithParams sets the parameters each directive is run with
func WithParams(params map[string]Params) Option {
	return func(r *Registry) {
		for id, p := range params {
			r.params[id] = p
		}
	}
}

// WithCompositeTable replaces a composite's (child, weight) table or defines a new composite
func WithCompositeTable(id string, table []Weighted) Option {
	return func(r *Registry) {
		r.tables[id] = append([]Weighted(nil), table...)
	}
}

// NewRegistry builds the registry of all base directives and composites
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byID:       make(map[string]Directive),
		composites: make(map[string]*Composite),
		params:     make(map[string]Params),
		tables:     defaultTables(),
	}
	for _, d := range baseDirectives() {
		r.byID[d.ID()] = d
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, id := range sortedTableIDs(r.tables) {
		if _, clash := r.byID[id]; clash {
			// a base directive id cannot be redefined as a composite
			continue
		}
		name, ok := compositeNames[id]
		if !ok {
			name = titleCase(id)
		}
		c := &Composite{id: id, name: name, table: r.tables[id], reg: r}
		r.composites[id] = c
		r.byID[id] = c
	}
	return r
}

func baseDirectives() []Directive {
	return []Directive{
		RSI{},
		MACD{},
		ADX{},
		CCI{},
		EMA{},
		BollingerBands{},
		MFI{},
		OBV{},
		VWAP{},
		Stochastic{},
		Volume{},
		Momentum{},
		MovingAverageCrossover{},
		SupportResistance{},
		Volatility{},
		MondayEffect(),
		FridayPositioning(),
		MidweekMomentum(),
		VolumeRhythm{},
		InstitutionalTiming{},
	}
}

// Get returns a directive or composite by id
func (r *Registry) Get(id string) (Directive, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// IDs returns every registered id, sorted
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsComposite reports whether id names a composite
func (r *Registry) IsComposite(id string) bool {
	_, ok := r.composites[id]
	return ok
}

// Composite returns a composite by id
func (r *Registry) Composite(id string) (*Composite, bool) {
	c, ok := r.composites[id]
	return c, ok
}

// Params returns the configured parameters for id, or nil for defaults
func (r *Registry) Params(id string) Params {
	p, ok := r.params[id]
	if !ok {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
