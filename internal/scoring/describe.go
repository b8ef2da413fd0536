package scoring

import (
	"fmt"
	"sort"

	"github.com/wonny/tradepulse/internal/directives"
)

// Description explains a directive under the effective parameters
type Description struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Composite   bool                  `json:"composite"`
	MaxScore    float64               `json:"max_score"`
	Explanation string                `json:"explanation"`
	Params      directives.Params     `json:"params"`
	Inputs      []string              `json:"inputs"`
	Children    []directives.Weighted `json:"children,omitempty"`
}

// Describe returns the description of id. override is layered over the profile params.
func (e *Engine) Describe(id string, override directives.Params) (Description, error) {
	d, ok := e.reg.Get(id)
	if !ok {
		return Description{}, fmt.Errorf("%w: %s", ErrUnknownDirective, id)
	}

	params := d.Defaults()
	for k, v := range e.reg.Params(id) {
		params[k] = v
	}
	for k, v := range override {
		params[k] = v
	}

	desc := Description{
		ID:          id,
		Name:        d.Name(),
		Composite:   e.reg.IsComposite(id),
		MaxScore:    d.MaxScore(params),
		Explanation: d.Explain(params),
		Params:      params,
	}
	for _, in := range d.Inputs(params) {
		desc.Inputs = append(desc.Inputs, in.Key())
	}
	sort.Strings(desc.Inputs)
	if c, ok := e.reg.Composite(id); ok {
		desc.Children = c.Table()
	}
	return desc, nil
}

// List describes every registered directive with its effective parameters
func (e *Engine) List() []Description {
	ids := e.reg.IDs()
	out := make([]Description, 0, len(ids))
	for _, id := range ids {
		desc, err := e.Describe(id, nil)
		if err != nil {
			continue
		}
		out = append(out, desc)
	}
	return out
}
