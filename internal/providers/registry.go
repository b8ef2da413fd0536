// Package providers holds the static catalog of market-data and brokerage providers.
package providers

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Well-known provider IDs used by the fetchers
const (
	AlphaVantage = "alpha_vantage"
	Alpaca       = "alpaca"
	Finnhub      = "finnhub"
)

// Kind filters the catalog by capability
type Kind string

const (
	KindAll     Kind = ""
	KindTrading Kind = "trading"
	KindData    Kind = "data"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Provider is an immutable catalog entry
type Provider struct {
	ID        string     `yaml:"id" json:"id" validate:"required"`
	Name      string     `yaml:"name" json:"name" validate:"required"`
	AuthType  string     `yaml:"auth_type" json:"auth_type" validate:"required,oneof=api_key key_secret token oauth none"`
	Trading   bool       `yaml:"trading" json:"trading"`
	BaseURL   string     `yaml:"base_url" json:"base_url" validate:"required,url"`
	DocsURL   string     `yaml:"docs_url" json:"docs_url,omitempty" validate:"omitempty,url"`
	Quota     Quota      `yaml:"quota" json:"quota"`
	Endpoints []Endpoint `yaml:"endpoints" json:"endpoints" validate:"required,min=1,dive"`
}

// Quota is the published call allowance. Zero means unlimited for that window.
type Quota struct {
	PerMinute int `yaml:"per_minute" json:"per_minute" validate:"gte=0"`
	PerDay    int `yaml:"per_day" json:"per_day" validate:"gte=0"`
}

// Endpoint is one callable operation of a provider
type Endpoint struct {
	ID          string `yaml:"id" json:"id" validate:"required"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// Kind returns the provider's capability class
func (p Provider) Kind() Kind {
	if p.Trading {
		return KindTrading
	}
	return KindData
}

// HasEndpoint reports whether the provider declares the endpoint
func (p Provider) HasEndpoint(id string) bool {
	for _, e := range p.Endpoints {
		if e.ID == id {
			return true
		}
	}
	return false
}

type catalog struct {
	Providers []Provider `yaml:"providers" validate:"required,min=1,dive"`
}

// Registry is the read-only provider catalog
// ⭐ SSOT: 프로바이더 메타데이터는 여기서만 조회
type Registry struct {
	list []Provider
	byID map[string]Provider
}

// Load builds the registry from the embedded catalog, applying quota overrides
func Load(overrides map[string]Quota) (*Registry, error) {
	return Parse(catalogYAML, overrides)
}

// Parse builds a registry from catalog YAML
func Parse(data []byte, overrides map[string]Quota) (*Registry, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var c catalog
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to parse provider catalog: %w", err)
	}

	if err := validator.New().Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid provider catalog: %w", err)
	}

	r := &Registry{byID: make(map[string]Provider, len(c.Providers))}
	for _, p := range c.Providers {
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("invalid provider catalog: duplicate id %q", p.ID)
		}
		r.byID[p.ID] = p
	}

	for id, q := range overrides {
		p, ok := r.byID[id]
		if !ok {
			return nil, fmt.Errorf("quota override for unknown provider %q", id)
		}
		if q.PerMinute < 0 || q.PerDay < 0 {
			return nil, fmt.Errorf("quota override for %q must not be negative", id)
		}
		p.Quota = q
		r.byID[id] = p
	}

	for _, p := range c.Providers {
		r.list = append(r.list, r.byID[p.ID])
	}
	sort.SliceStable(r.list, func(i, j int) bool { return r.list[i].ID < r.list[j].ID })

	return r, nil
}

// Get returns the provider with the given ID
func (r *Registry) Get(id string) (Provider, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// List returns providers of the given kind ordered by ID
func (r *Registry) List(kind Kind) []Provider {
	out := make([]Provider, 0, len(r.list))
	for _, p := range r.list {
		if kind == KindAll || p.Kind() == kind {
			out = append(out, p)
		}
	}
	return out
}

// IDs returns all provider IDs in order
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.list))
	for i, p := range r.list {
		ids[i] = p.ID
	}
	return ids
}

// ParseKind validates a kind filter from user input
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindAll, KindTrading, KindData:
		return Kind(s), nil
	}
	return KindAll, fmt.Errorf("unknown provider kind %q (want trading or data)", s)
}
