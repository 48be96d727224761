// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package response

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/relabs-tech/pret/core/query"
)

// Kind decides whether a route's result is wrapped in the standard envelope
type Kind string

// Response kinds
const (
	KindStandard Kind = "standard"
	KindRaw      Kind = "raw"
)

// Feature is an optional list feature of a standard response
type Feature string

// Features, in canonical order
const (
	FeaturePagination Feature = "pagination"
	FeatureSorting    Feature = "sorting"
	FeatureFiltering  Feature = "filtering"
)

var allFeatures = []Feature{FeaturePagination, FeatureSorting, FeatureFiltering}

// RouteKey identifies a handler. A key with an empty Handler addresses the
// whole controller.
type RouteKey struct {
	Controller string
	Handler    string
}

// Key returns the key for a handler of a controller
func Key(controller, handler string) RouteKey {
	return RouteKey{Controller: controller, Handler: handler}
}

func (k RouteKey) String() string {
	if k.Handler == "" {
		return k.Controller
	}
	return k.Controller + "." + k.Handler
}

func (k RouteKey) controller() RouteKey {
	return RouteKey{Controller: k.Controller}
}

// ErrMissingConfig is wrapped by Resolve when a feature is enabled without configuration
var ErrMissingConfig = errors.New("feature enabled without configuration")

// ErrSealed is returned for declarations after the first route was resolved
var ErrSealed = errors.New("registry is sealed")

// Declaration is the response metadata attached to a handler or controller.
// Zero fields are "not declared".
type Declaration struct {
	Kind        Kind
	Description string
	Status      int
	Features    []Feature
	Pagination  *query.PaginationConfig
	Sorting     *query.SortingConfig
	Filtering   *query.FilteringConfig
}

// Options is the declaration surface of a standard response
type Options struct {
	Description string
	// Status is the success status code, defaults to 200
	Status int

	IsPaginated     bool
	MinPageSize     int
	MaxPageSize     int
	DefaultPageSize int
	PageSizeBounds  query.BoundsPolicy

	IsSorted      bool
	SortingFields []string

	IsFiltered      bool
	FilteringFields []string

	// IgnoreUnknownFields drops unknown sort and filter fields instead of
	// rejecting the request
	IgnoreUnknownFields bool
}

// Standard declares a standard response with the given options
func Standard(o Options) Declaration {
	d := Declaration{Kind: KindStandard, Description: o.Description, Status: o.Status}
	if o.IsPaginated {
		d = merge(d, Paginated(query.PaginationConfig{
			MinPageSize:     o.MinPageSize,
			MaxPageSize:     o.MaxPageSize,
			DefaultPageSize: o.DefaultPageSize,
			Bounds:          o.PageSizeBounds,
		}))
	}
	if o.IsSorted {
		d = merge(d, Declaration{
			Features: []Feature{FeatureSorting},
			Sorting:  &query.SortingConfig{Fields: o.SortingFields, IgnoreUnknown: o.IgnoreUnknownFields},
		})
	}
	if o.IsFiltered {
		d = merge(d, Declaration{
			Features:  []Feature{FeatureFiltering},
			Filtering: &query.FilteringConfig{Fields: o.FilteringFields, IgnoreUnknown: o.IgnoreUnknownFields},
		})
	}
	return d
}

// Raw declares a route whose result is sent as is
func Raw(description string) Declaration {
	return Declaration{Kind: KindRaw, Description: description}
}

// Paginated enables pagination
func Paginated(config query.PaginationConfig) Declaration {
	return Declaration{Features: []Feature{FeaturePagination}, Pagination: &config}
}

// Sorted enables sorting over the given fields
func Sorted(fields ...string) Declaration {
	return Declaration{Features: []Feature{FeatureSorting}, Sorting: &query.SortingConfig{Fields: fields}}
}

// Filtered enables filtering over the given fields
func Filtered(fields ...string) Declaration {
	return Declaration{Features: []Feature{FeatureFiltering}, Filtering: &query.FilteringConfig{Fields: fields}}
}

// Registry holds the response declarations of all routes. It is populated
// at startup; once the first route has been resolved it no longer accepts
// declarations and may be read from any goroutine.
type Registry struct {
	// InterceptAll makes routes without a declared kind standard routes.
	// Without it, such routes bypass response shaping altogether.
	InterceptAll bool
	// DefaultKind is the kind of routes without a declared kind
	DefaultKind Kind

	declarations map[RouteKey]Declaration
	sealed       bool
}

// NewRegistry returns a registry which shapes all routes by default
func NewRegistry() *Registry {
	return &Registry{
		InterceptAll: true,
		DefaultKind:  KindStandard,
		declarations: map[RouteKey]Declaration{},
	}
}

// Declare attaches declarations to a handler (or to a controller, if the
// key's Handler is empty). Repeated declarations merge: set scalar fields
// replace earlier ones, features accumulate.
func (r *Registry) Declare(key RouteKey, declarations ...Declaration) error {
	if r.sealed {
		return fmt.Errorf("declare %s: %w", key, ErrSealed)
	}
	if key.Controller == "" {
		return fmt.Errorf("declare %s: missing controller name", key)
	}
	if r.declarations == nil {
		r.declarations = map[RouteKey]Declaration{}
	}
	d := r.declarations[key]
	for _, declaration := range declarations {
		if err := declaration.validate(); err != nil {
			return fmt.Errorf("declare %s: %w", key, err)
		}
		d = merge(d, declaration)
	}
	r.declarations[key] = d
	return nil
}

// DeclareController attaches declarations to all handlers of a controller
func (r *Registry) DeclareController(controller string, declarations ...Declaration) error {
	return r.Declare(RouteKey{Controller: controller}, declarations...)
}

// MustDeclare is Declare, but panics on error
func (r *Registry) MustDeclare(key RouteKey, declarations ...Declaration) {
	if err := r.Declare(key, declarations...); err != nil {
		panic(err)
	}
}

// MustDeclareController is DeclareController, but panics on error
func (r *Registry) MustDeclareController(controller string, declarations ...Declaration) {
	if err := r.DeclareController(controller, declarations...); err != nil {
		panic(err)
	}
}

// ResponseKind returns the effective kind of a handler: the handler's own
// declaration overrides the controller's, which overrides the registry
// default. The second return value is false if the route is not shaped at
// all, which only happens for undeclared routes without InterceptAll.
func (r *Registry) ResponseKind(key RouteKey) (Kind, bool) {
	if d, ok := r.declarations[key]; ok && d.Kind != "" {
		return d.Kind, true
	}
	if d, ok := r.declarations[key.controller()]; ok && d.Kind != "" {
		return d.Kind, true
	}
	if r.InterceptAll {
		kind := r.DefaultKind
		if kind == "" {
			kind = KindStandard
		}
		return kind, true
	}
	return "", false
}

// Features returns the union of the features declared on the handler and
// its controller, in canonical order.
func (r *Registry) Features(key RouteKey) []Feature {
	return unionFeatures(r.declarations[key.controller()].Features, r.declarations[key].Features)
}

// Resolve computes the effective route configuration for a handler. It
// fails with ErrMissingConfig if an enabled feature has no configuration on
// either level. Resolving seals the registry.
func (r *Registry) Resolve(key RouteKey) (*Route, error) {
	r.sealed = true
	controller := r.declarations[key.controller()]
	handler := r.declarations[key]

	kind, intercept := r.ResponseKind(key)
	effective := merge(controller, handler)

	route := &Route{
		Key:         key,
		Kind:        kind,
		Intercept:   intercept,
		Description: effective.Description,
		Status:      effective.Status,
		Features:    r.Features(key),
		Pagination:  effective.Pagination,
		Sorting:     effective.Sorting,
		Filtering:   effective.Filtering,
	}
	if route.Status == 0 {
		route.Status = http.StatusOK
	}

	for _, feature := range route.Features {
		var missing bool
		switch feature {
		case FeaturePagination:
			missing = route.Pagination == nil
		case FeatureSorting:
			missing = route.Sorting == nil
		case FeatureFiltering:
			missing = route.Filtering == nil
		}
		if missing {
			return nil, fmt.Errorf("route %s: %s: %w", key, feature, ErrMissingConfig)
		}
	}
	return route, nil
}

// MustResolve is Resolve, but panics on error
func (r *Registry) MustResolve(key RouteKey) *Route {
	route, err := r.Resolve(key)
	if err != nil {
		panic(err)
	}
	return route
}

// Route is the resolved, immutable response configuration of a handler
type Route struct {
	Key         RouteKey
	Kind        Kind
	Intercept   bool
	Description string
	Status      int
	Features    []Feature
	Pagination  *query.PaginationConfig
	Sorting     *query.SortingConfig
	Filtering   *query.FilteringConfig
}

// Has returns true if the feature is enabled for the route
func (rt *Route) Has(feature Feature) bool {
	if rt == nil {
		return false
	}
	for _, f := range rt.Features {
		if f == feature {
			return true
		}
	}
	return false
}

func (d Declaration) validate() error {
	switch d.Kind {
	case "", KindStandard, KindRaw:
	default:
		return fmt.Errorf("unknown response kind '%s'", d.Kind)
	}
	for _, f := range d.Features {
		switch f {
		case FeaturePagination, FeatureSorting, FeatureFiltering:
		default:
			return fmt.Errorf("unknown feature '%s'", f)
		}
	}
	if d.Status != 0 && (d.Status < 100 || d.Status > 599) {
		return fmt.Errorf("invalid status %d", d.Status)
	}
	if d.Pagination != nil {
		if err := d.Pagination.Validate(); err != nil {
			return err
		}
	}
	if d.Sorting != nil {
		if err := d.Sorting.Validate(); err != nil {
			return err
		}
	}
	if d.Filtering != nil {
		if err := d.Filtering.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// merge lays b over a
func merge(a, b Declaration) Declaration {
	if b.Kind != "" {
		a.Kind = b.Kind
	}
	if b.Description != "" {
		a.Description = b.Description
	}
	if b.Status != 0 {
		a.Status = b.Status
	}
	if b.Pagination != nil {
		a.Pagination = b.Pagination
	}
	if b.Sorting != nil {
		a.Sorting = b.Sorting
	}
	if b.Filtering != nil {
		a.Filtering = b.Filtering
	}
	a.Features = unionFeatures(a.Features, b.Features)
	return a
}

func unionFeatures(a, b []Feature) []Feature {
	var union []Feature
	for _, f := range allFeatures {
		for _, have := range append(append([]Feature{}, a...), b...) {
			if have == f {
				union = append(union, f)
				break
			}
		}
	}
	return union
}
