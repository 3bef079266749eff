package engine

import "fmt"

// Registry holds the configured data sources in declaration order.
type Registry struct {
	order []string
	byID  map[string]*DataSource
}

func NewRegistry(sources ...*DataSource) (*Registry, error) {
	registry := &Registry{byID: make(map[string]*DataSource, len(sources))}
	for _, ds := range sources {
		if _, exists := registry.byID[ds.ID()]; exists {
			return nil, fmt.Errorf("duplicate data source id %q", ds.ID())
		}
		registry.byID[ds.ID()] = ds
		registry.order = append(registry.order, ds.ID())
	}
	return registry, nil
}

func (r *Registry) Get(id string) (*DataSource, bool) {
	ds, ok := r.byID[id]
	return ds, ok
}

func (r *Registry) List() []*DataSource {
	sources := make([]*DataSource, 0, len(r.order))
	for _, id := range r.order {
		sources = append(sources, r.byID[id])
	}
	return sources
}

func (r *Registry) Close() error {
	var firstErr error
	for _, ds := range r.List() {
		if err := ds.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
