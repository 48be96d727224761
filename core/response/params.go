// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package response

import (
	"context"
	"net/url"

	"github.com/relabs-tech/pret/core/pointers"
	"github.com/relabs-tech/pret/core/query"
)

// Params carries the parsed list parameters of one request. The handler
// reads them to build its query and may amend them, most importantly to
// report the total count of a paginated list. Params are never shared
// between requests.
type Params struct {
	PaginationInfo query.PaginationInfo
	SortingInfo    query.SortingInfo
	FilteringInfo  query.FilteringInfo
	// Message is an optional human readable message for the envelope
	Message string
}

// ParseParams parses the query parameters for all features enabled on the
// route. Errors of all features are reported together.
func ParseParams(route *Route, values url.Values) (*Params, error) {
	params := &Params{
		SortingInfo:   query.SortingInfo{Sort: []query.SortField{}},
		FilteringInfo: query.FilteringInfo{Filter: query.Filter{AllOf: []query.AnyOf{}}},
	}
	var errs []error
	var err error
	if route.Has(FeaturePagination) {
		params.PaginationInfo, err = query.ParsePagination(values, *route.Pagination)
		errs = append(errs, err)
	}
	if route.Has(FeatureSorting) {
		params.SortingInfo, err = query.ParseSorting(values, *route.Sorting)
		errs = append(errs, err)
	}
	if route.Has(FeatureFiltering) {
		params.FilteringInfo, err = query.ParseFiltering(values, *route.Filtering)
		errs = append(errs, err)
	}
	if err := query.Merge(errs...); err != nil {
		return nil, err
	}
	return params, nil
}

// PaginationPatch holds the pagination fields to change, nil fields stay as they are
type PaginationPatch struct {
	Limit           *int
	Offset          *int
	Count           *int
	MinPageSize     *int
	MaxPageSize     *int
	DefaultPageSize *int
	Query           *string
}

// SortingPatch holds the sorting fields to change, nil fields stay as they are
type SortingPatch struct {
	SortingFields []string
	Sort          []query.SortField
	Query         *string
}

// FilteringPatch holds the filtering fields to change, nil fields stay as they are
type FilteringPatch struct {
	FilteringFields []string
	Filter          *query.Filter
	Query           *string
}

// SetPaginationInfo merges the patch into the pagination info
func (p *Params) SetPaginationInfo(patch PaginationPatch) {
	info := &p.PaginationInfo
	pointers.Assign(&info.Limit, patch.Limit)
	pointers.Assign(&info.Offset, patch.Offset)
	pointers.Assign(&info.MinPageSize, patch.MinPageSize)
	pointers.Assign(&info.MaxPageSize, patch.MaxPageSize)
	pointers.Assign(&info.DefaultPageSize, patch.DefaultPageSize)
	pointers.Assign(&info.Query, patch.Query)
	if patch.Count != nil {
		info.Count = pointers.Int(*patch.Count)
	}
}

// SetSortingInfo merges the patch into the sorting info
func (p *Params) SetSortingInfo(patch SortingPatch) {
	if patch.SortingFields != nil {
		p.SortingInfo.SortingFields = patch.SortingFields
	}
	if patch.Sort != nil {
		p.SortingInfo.Sort = patch.Sort
	}
	pointers.Assign(&p.SortingInfo.Query, patch.Query)
}

// SetFilteringInfo merges the patch into the filtering info
func (p *Params) SetFilteringInfo(patch FilteringPatch) {
	if patch.FilteringFields != nil {
		p.FilteringInfo.FilteringFields = patch.FilteringFields
	}
	pointers.Assign(&p.FilteringInfo.Filter, patch.Filter)
	pointers.Assign(&p.FilteringInfo.Query, patch.Query)
}

// SetCount reports the total number of items of a paginated list
func (p *Params) SetCount(count int) {
	p.SetPaginationInfo(PaginationPatch{Count: &count})
}

// SetMessage sets the envelope message
func (p *Params) SetMessage(message string) {
	p.Message = message
}

type contextKeyParamsType struct{}
type contextKeyRouteType struct{}

var (
	contextKeyParams = &contextKeyParamsType{}
	contextKeyRoute  = &contextKeyRouteType{}
)

// ContextWithParams returns a new context with the params added to it
func ContextWithParams(ctx context.Context, params *Params) context.Context {
	return context.WithValue(ctx, contextKeyParams, params)
}

// ParamsFromContext retrieves the params of the request, or nil
func ParamsFromContext(ctx context.Context) *Params {
	params, _ := ctx.Value(contextKeyParams).(*Params)
	return params
}

// ContextWithRoute returns a new context with the resolved route added to it
func ContextWithRoute(ctx context.Context, route *Route) context.Context {
	return context.WithValue(ctx, contextKeyRoute, route)
}

// RouteFromContext retrieves the resolved route of the request, or nil
func RouteFromContext(ctx context.Context) *Route {
	route, _ := ctx.Value(contextKeyRoute).(*Route)
	return route
}
